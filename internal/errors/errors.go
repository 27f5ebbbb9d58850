// Package errors provides custom error types for the Splithaus API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import (
	stderrors "errors"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// HasCode reports whether err carries the given application error code.
// Wrap and WithMessage produce new values, so identity comparison with a
// sentinel is not enough; codes are the stable taxonomy.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "An account with this email already exists", StatusCode: http.StatusConflict}
)

// Household errors.
var (
	ErrHouseholdNotFound = &AppError{Code: "HOUSEHOLD_NOT_FOUND", Message: "Household not found", StatusCode: http.StatusNotFound}
	ErrNotAMember        = &AppError{Code: "NOT_A_MEMBER", Message: "Not a member of this household", StatusCode: http.StatusForbidden}
	ErrNotOwner          = &AppError{Code: "NOT_OWNER", Message: "Only the household owner can do this", StatusCode: http.StatusForbidden}
	ErrAlreadyMember     = &AppError{Code: "ALREADY_MEMBER", Message: "User is already a member", StatusCode: http.StatusConflict}
	ErrOwnerCannotLeave  = &AppError{Code: "OWNER_CANNOT_LEAVE", Message: "Owner cannot remove themselves; transfer ownership or delete the household", StatusCode: http.StatusBadRequest}
)

// Bill errors.
var (
	ErrBillNotFound  = &AppError{Code: "BILL_NOT_FOUND", Message: "Bill not found", StatusCode: http.StatusNotFound}
	ErrInvalidAmount = &AppError{Code: "INVALID_AMOUNT", Message: "Bill total must be greater than zero", StatusCode: http.StatusBadRequest}
)

// Remote ledger errors. These classify failures of calls to the Splitwise
// API: the broad buckets are derived from the HTTP status and the message
// in whichever error envelope the provider chose to return.
var (
	ErrLedgerNotConnected    = &AppError{Code: "LEDGER_NOT_CONNECTED", Message: "Splitwise is not connected for this account", StatusCode: http.StatusBadRequest}
	ErrLedgerUnauthenticated = &AppError{Code: "LEDGER_UNAUTHENTICATED", Message: "Splitwise rejected the access token", StatusCode: http.StatusUnauthorized}
	ErrLedgerForbidden       = &AppError{Code: "LEDGER_FORBIDDEN", Message: "Splitwise denied access to this resource", StatusCode: http.StatusForbidden}
	ErrLedgerRateLimited     = &AppError{Code: "LEDGER_RATE_LIMITED", Message: "Splitwise rate limit reached, try again later", StatusCode: http.StatusTooManyRequests}
	ErrLedgerUnavailable     = &AppError{Code: "LEDGER_UNAVAILABLE", Message: "Splitwise resource not available", StatusCode: http.StatusBadGateway}
	ErrLedgerFailed          = &AppError{Code: "LEDGER_ERROR", Message: "Splitwise request failed", StatusCode: http.StatusBadGateway}
	ErrLedgerRefreshFailed   = &AppError{Code: "LEDGER_REFRESH_FAILED", Message: "Could not refresh the Splitwise access token", StatusCode: http.StatusUnauthorized}
)

// Sync errors.
var (
	ErrHouseholdNotLinked = &AppError{Code: "HOUSEHOLD_NOT_LINKED", Message: "Household is not linked to a Splitwise group", StatusCode: http.StatusBadRequest}
	ErrMissingLedgerLink  = &AppError{Code: "MISSING_LEDGER_LINK", Message: "Some participants have no linked Splitwise account", StatusCode: http.StatusBadRequest}
	ErrSyncConflict       = &AppError{Code: "SYNC_CONFLICT", Message: "Local and Splitwise copies both changed since the last sync", StatusCode: http.StatusConflict}
	ErrSyncInProgress     = &AppError{Code: "SYNC_IN_PROGRESS", Message: "A sync for this household is already running", StatusCode: http.StatusConflict}
)
