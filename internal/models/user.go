package models

import "time"

// User represents a local account. An account may exist without a password
// when it was created from an imported Splitwise group member; such users
// can only log in after connecting their own Splitwise account.
type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `json:"-"`
	Name         string `gorm:"not null" json:"name"`

	// Splitwise credential. SplitwiseID is globally unique when present:
	// one local account per Splitwise identity.
	SplitwiseID             *string    `gorm:"uniqueIndex" json:"splitwise_id,omitempty"`
	SplitwiseAccessToken    string     `json:"-"`
	SplitwiseRefreshToken   string     `json:"-"`
	SplitwiseTokenType      string     `json:"-"`
	SplitwiseTokenExpiresAt *time.Time `json:"-"`
}

// SplitwiseConnected reports whether the user has a usable Splitwise credential.
func (u *User) SplitwiseConnected() bool {
	return u.SplitwiseAccessToken != ""
}
