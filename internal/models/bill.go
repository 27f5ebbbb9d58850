package models

import "time"

// SyncStatus is the outcome of the most recent push or pull attempt for a bill.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
	SyncStatusSkipped SyncStatus = "skipped"
)

// SyncDirection records which side drove the last successful sync.
type SyncDirection string

const (
	SyncDirectionPush SyncDirection = "push"
	SyncDirectionPull SyncDirection = "pull"
)

// BillItem is a single line on a bill, split equally between the users
// listed in SplitBetween.
type BillItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Amount       float64  `json:"amount"`
	SplitBetween []string `json:"split_between"`
}

// BillItems is stored as a JSON column.
type BillItems []BillItem

// Totals maps a user id to the amount that user owes on the bill.
// Shares accumulate fractional cents; rounding happens only when the
// bill is projected to a remote payload or serialized for display.
type Totals map[string]float64

// SyncState tracks a bill's relationship with its Splitwise counterpart.
// It is embedded in Bill and mutated only by the sync engine.
type SyncState struct {
	Status          SyncStatus    `gorm:"default:pending" json:"status"`
	RemoteExpenseID string        `gorm:"index" json:"remote_expense_id,omitempty"`
	SyncedAt        *time.Time    `json:"synced_at,omitempty"`
	LastAttemptAt   *time.Time    `json:"last_attempt_at,omitempty"`
	Error           string        `json:"error,omitempty"`
	RemoteUpdatedAt *time.Time    `json:"remote_updated_at,omitempty"`
	LastLocalEditAt *time.Time    `json:"last_local_edit_at,omitempty"`
	Direction       SyncDirection `json:"last_sync_direction,omitempty"`
	Conflict        bool          `json:"conflict"`
}

// Bill is an itemized local expense belonging to a household.
// Invariant: TotalAmount == sum(Items[].Amount), and Totals[u] is the sum
// over items containing u of amount/len(splitBetween).
type Bill struct {
	Base
	HouseholdID string    `gorm:"type:uuid;not null;index" json:"household_id"`
	BillName    string    `gorm:"not null" json:"bill_name"`
	Items       BillItems `gorm:"serializer:json" json:"items"`
	Totals      Totals    `gorm:"serializer:json" json:"totals"`
	TotalAmount float64   `gorm:"not null" json:"total_amount"`
	CreatedBy   string    `gorm:"type:uuid;not null" json:"created_by"`

	Sync SyncState `gorm:"embedded;embeddedPrefix:sync_" json:"sync"`
}

// LocallyEditedSince reports whether a human touched this bill after the
// last successful sync. This is the local half of the conflict rule.
func (b *Bill) LocallyEditedSince() bool {
	if b.Sync.LastLocalEditAt == nil || b.Sync.SyncedAt == nil {
		return false
	}
	return b.Sync.LastLocalEditAt.After(*b.Sync.SyncedAt)
}
