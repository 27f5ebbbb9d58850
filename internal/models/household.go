package models

import "time"

// Household is a group of users sharing bills. A household can be linked
// 1:1 to a Splitwise group, in which case bills are kept reconciled with
// that group's expenses.
type Household struct {
	Base
	Name    string `gorm:"not null" json:"name"`
	OwnerID string `gorm:"type:uuid;not null;index" json:"owner_id"`
	Members []User `gorm:"many2many:household_members" json:"members,omitempty"`

	SplitwiseGroupID   *string `gorm:"uniqueIndex" json:"splitwise_group_id,omitempty"`
	SplitwiseGroupName string  `json:"splitwise_group_name,omitempty"`

	// SyncCursor is the pull watermark: the most recent remote updated_at
	// observed across all expenses ever pulled for this household. It only
	// moves forward; a pull requests only items updated strictly after it.
	SyncCursor   *time.Time `json:"sync_cursor,omitempty"`
	LastPulledAt *time.Time `json:"last_pulled_at,omitempty"`
}

// Linked reports whether the household is linked to a Splitwise group.
func (h *Household) Linked() bool {
	return h.SplitwiseGroupID != nil && *h.SplitwiseGroupID != ""
}

// HasMember reports whether the given user is a member. Members must be
// preloaded for this to be meaningful.
func (h *Household) HasMember(userID string) bool {
	for _, m := range h.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// MemberIDs returns the ids of all preloaded members.
func (h *Household) MemberIDs() []string {
	ids := make([]string, 0, len(h.Members))
	for _, m := range h.Members {
		ids = append(ids, m.ID)
	}
	return ids
}
