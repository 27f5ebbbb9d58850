package synclock

import (
	"sync"
	"testing"
)

func TestTryAcquire(t *testing.T) {
	t.Run("second_acquire_rejected_until_release", func(t *testing.T) {
		locks := NewKeyed()

		release, ok := locks.TryAcquire("household-1")
		if !ok {
			t.Fatal("first acquire should succeed")
		}
		if _, ok := locks.TryAcquire("household-1"); ok {
			t.Fatal("second acquire for the same key should be rejected")
		}

		release()
		release2, ok := locks.TryAcquire("household-1")
		if !ok {
			t.Fatal("acquire after release should succeed")
		}
		release2()
	})

	t.Run("independent_keys", func(t *testing.T) {
		locks := NewKeyed()
		r1, ok1 := locks.TryAcquire("a")
		r2, ok2 := locks.TryAcquire("b")
		if !ok1 || !ok2 {
			t.Fatal("different keys must not contend")
		}
		r1()
		r2()
	})

	t.Run("release_is_idempotent", func(t *testing.T) {
		locks := NewKeyed()
		release, _ := locks.TryAcquire("a")
		release()
		release() // double release must not free someone else's hold

		r2, ok := locks.TryAcquire("a")
		if !ok {
			t.Fatal("acquire after double release should succeed")
		}
		if _, ok := locks.TryAcquire("a"); ok {
			t.Fatal("held lock should stay held despite the earlier double release")
		}
		r2()
	})

	t.Run("concurrent_holders", func(t *testing.T) {
		locks := NewKeyed()
		var wg sync.WaitGroup
		winners := make(chan struct{}, 64)

		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if release, ok := locks.TryAcquire("contended"); ok {
					winners <- struct{}{}
					release()
				}
			}()
		}
		wg.Wait()
		close(winners)

		if len(winners) == 0 {
			t.Fatal("at least one goroutine should have acquired the lock")
		}
	})
}
