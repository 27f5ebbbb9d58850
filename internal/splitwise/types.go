package splitwise

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// Timestamp decodes the provider's inconsistent date representations:
// RFC 3339 strings, unix seconds, and unix milliseconds (numeric or as a
// digit string). The zero value means "absent".
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	s := strings.Trim(string(data), `"`)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			t.Time = time.Time{}
			return nil
		}
		t.Time = fromUnixFlexible(n)
		return nil
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}

	// Unparseable dates are treated as absent rather than failing the
	// whole response decode.
	t.Time = time.Time{}
	return nil
}

// fromUnixFlexible interprets n as milliseconds when it is too large to be
// a plausible seconds value.
func fromUnixFlexible(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// RemoteUser is the provider's representation of a user, as returned by
// get_current_user and embedded in group members and expense shares.
type RemoteUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// DisplayName builds a readable name the way the provider renders one.
func (u *RemoteUser) DisplayName() string {
	full := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if full != "" {
		return full
	}
	if email := strings.TrimSpace(u.Email); email != "" {
		return email
	}
	return strings.TrimSpace("Splitwise User " + strconv.FormatInt(u.ID, 10))
}

// Group is a provider expense group.
type Group struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Members []RemoteUser `json:"members"`
}

// ExpenseUser is one participant row on a remote expense. The provider
// sometimes inlines the user object and sometimes only sends user_id.
type ExpenseUser struct {
	UserID    int64       `json:"user_id"`
	User      *RemoteUser `json:"user,omitempty"`
	PaidShare string      `json:"paid_share"`
	OwedShare string      `json:"owed_share"`
}

// RemoteUserID returns the participant's user id from whichever field is set.
func (e *ExpenseUser) RemoteUserID() int64 {
	if e.UserID != 0 {
		return e.UserID
	}
	if e.User != nil {
		return e.User.ID
	}
	return 0
}

// Expense is a remote ledger expense as returned by get_expenses and the
// create/update endpoints.
type Expense struct {
	ID           int64         `json:"id"`
	GroupID      int64         `json:"group_id"`
	Description  string        `json:"description"`
	Details      string        `json:"details"`
	Cost         string        `json:"cost"`
	CurrencyCode string        `json:"currency_code"`
	Payment      bool          `json:"payment"`
	CreatedAt    Timestamp     `json:"created_at"`
	UpdatedAt    Timestamp     `json:"updated_at"`
	DeletedAt    *Timestamp    `json:"deleted_at,omitempty"`
	Users        []ExpenseUser `json:"users"`
}

// Deleted reports whether the remote expense is marked deleted.
func (e *Expense) Deleted() bool {
	return e.DeletedAt != nil && !e.DeletedAt.IsZero()
}

// RemoteID returns the expense id as the string form stored on local bills.
func (e *Expense) RemoteID() string {
	if e.ID == 0 {
		return ""
	}
	return strconv.FormatInt(e.ID, 10)
}

// ExpenseShare is one participant entry in an outgoing expense payload.
// Money amounts are fixed 2-decimal strings, matching the provider's wire
// format.
type ExpenseShare struct {
	UserID    string
	PaidShare string
	OwedShare string
}

// ExpensePayload is the outgoing representation for create_expense and
// update_expense. It is produced by the projection layer.
type ExpensePayload struct {
	Cost         string
	Description  string
	Details      string
	CurrencyCode string
	GroupID      string
	Users        []ExpenseShare
}

// form converts the payload into the generic nested shape consumed by the
// form encoder: users become users[idx][field] keys on the wire.
func (p *ExpensePayload) form() map[string]any {
	users := make([]any, 0, len(p.Users))
	for _, u := range p.Users {
		users = append(users, map[string]any{
			"user_id":    u.UserID,
			"paid_share": u.PaidShare,
			"owed_share": u.OwedShare,
		})
	}
	body := map[string]any{
		"cost":          p.Cost,
		"description":   p.Description,
		"currency_code": p.CurrencyCode,
		"users":         users,
	}
	if p.Details != "" {
		body["details"] = p.Details
	}
	if p.GroupID != "" {
		body["group_id"] = p.GroupID
	}
	return body
}

// TokenResponse is the OAuth token endpoint response for both the
// authorization_code and refresh_token grants.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExpiresAt converts expires_in into an absolute expiry, or nil when the
// provider did not send one.
func (t *TokenResponse) ExpiresAt(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &at
}
