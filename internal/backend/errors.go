package backend

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// SQLSTATE codes the client inspects
const (
	CodeUniqueViolation       = "23505"
	CodeInsufficientPrivilege = "42501"
	CodeUndefinedFunction     = "42883"
	CodeUndefinedTable        = "42P01"
)

// Common backend errors
var (
	ErrNotConfigured = errors.New("backend not configured")
	ErrNotSupported  = errors.New("operation not supported by backend driver")
)

// Error is a failure reported by the backend: an HTTP status for the rest
// driver, a SQLSTATE code for both drivers when the database raised it.
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Status != 0 {
		fmt.Fprintf(&b, "backend error (status %d", e.Status)
	} else {
		b.WriteString("backend error (")
	}
	if e.Code != "" {
		if e.Status != 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "code %s", e.Code)
	}
	b.WriteString("): ")
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(" (")
		b.WriteString(e.Details)
		b.WriteString(")")
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a duplicate-key rejection. A
// conflict status alone is not enough: foreign-key failures share it.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var be *Error
	if errors.As(err, &be) && be.Code != "" {
		return be.Code == CodeUniqueViolation
	}
	// Drivers that report no SQLSTATE
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// IsPermissionDenied reports whether err is an authorization or
// row-level-security rejection
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	var be *Error
	if errors.As(err, &be) {
		if be.Code == CodeInsufficientPrivilege {
			return true
		}
		if be.Status == http.StatusUnauthorized || be.Status == http.StatusForbidden {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "row-level security")
}

// IsMissing reports whether err means the procedure or relation does not exist
func IsMissing(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == CodeUndefinedFunction || be.Code == CodeUndefinedTable || be.Code == "PGRST202"
	}
	return false
}
