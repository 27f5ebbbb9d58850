// Package synclock serializes sync passes per household. Push and pull
// both mutate the same bill sync state and household cursor with no
// optimistic versioning, so two concurrent passes for one household must
// not interleave; a second caller is rejected rather than queued.
package synclock

import "sync"

// Keyed is a set of non-blocking per-key locks.
type Keyed struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewKeyed creates an empty lock set.
func NewKeyed() *Keyed {
	return &Keyed{held: make(map[string]bool)}
}

// TryAcquire takes the lock for key if it is free. It returns a release
// function and true, or nil and false when another holder is active.
func (k *Keyed) TryAcquire(key string) (func(), bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.held[key] {
		return nil, false
	}
	k.held[key] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.held, key)
			k.mu.Unlock()
		})
	}
	return release, true
}
