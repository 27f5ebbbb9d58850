package splitwise

import (
	"net/http"
	"strings"

	apperrors "splithaus/internal/errors"
)

// hasErrorEnvelope reports whether a decoded response body carries one of
// the provider's error shapes. A 200 status is not sufficient proof of
// success: the provider routinely returns errors inside 200 responses.
func hasErrorEnvelope(data map[string]any) bool {
	if data == nil {
		return false
	}
	if msg, ok := data["error"].(string); ok && strings.TrimSpace(msg) != "" {
		return true
	}
	switch errs := data["errors"].(type) {
	case []any:
		if len(errs) > 0 {
			return true
		}
	case map[string]any:
		if len(errs) > 0 {
			return true
		}
	}
	if success, ok := data["success"].(bool); ok && !success {
		return true
	}
	return false
}

// firstErrorMessage extracts a single human-readable message from whichever
// error shape is present: a top-level error string, the first string in an
// errors array, or the first string value inside an errors object. Returns
// "" when no message can be found.
func firstErrorMessage(data map[string]any) string {
	if data == nil {
		return ""
	}
	if msg, ok := data["error"].(string); ok && strings.TrimSpace(msg) != "" {
		return strings.TrimSpace(msg)
	}

	switch errs := data["errors"].(type) {
	case []any:
		for _, entry := range errs {
			if s, ok := entry.(string); ok && s != "" {
				return s
			}
			if m, ok := entry.(map[string]any); ok {
				if s := firstStringValue(m); s != "" {
					return s
				}
			}
		}
	case map[string]any:
		if s := firstStringValue(errs); s != "" {
			return s
		}
	}

	if desc, ok := data["error_description"].(string); ok && strings.TrimSpace(desc) != "" {
		return strings.TrimSpace(desc)
	}
	return ""
}

func firstStringValue(m map[string]any) string {
	for _, v := range m {
		switch value := v.(type) {
		case string:
			if value != "" {
				return value
			}
		case []any:
			for _, entry := range value {
				if s, ok := entry.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// classify maps a failed provider call to an application error kind by
// inspecting the HTTP status and the extracted message. The message, when
// present, is carried through for the caller to record.
func classify(status int, message string) *apperrors.AppError {
	lower := strings.ToLower(message)

	var sentinel *apperrors.AppError
	switch {
	case status == http.StatusTooManyRequests || strings.Contains(lower, "rate limit"):
		sentinel = apperrors.ErrLedgerRateLimited
	case status == http.StatusUnauthorized ||
		strings.Contains(lower, "invalid token") ||
		strings.Contains(lower, "invalid api request") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "unauthenticated"):
		sentinel = apperrors.ErrLedgerUnauthenticated
	case status == http.StatusForbidden || strings.Contains(lower, "forbidden"):
		sentinel = apperrors.ErrLedgerForbidden
	case status == http.StatusNotFound || strings.Contains(lower, "not found"):
		sentinel = apperrors.ErrLedgerUnavailable
	default:
		sentinel = apperrors.ErrLedgerFailed
	}

	if message != "" {
		return apperrors.WithMessage(sentinel, message)
	}
	return sentinel
}

// IsUnauthenticated reports whether err is an auth-classified provider
// failure. The token broker uses this to decide whether a refresh-and-retry
// is worth attempting.
func IsUnauthenticated(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrLedgerUnauthenticated.Code)
}
