package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for conditions the HTTP layer maps to statuses.
var (
	ErrUnauthorized    = errors.New("unauthorized access")
	ErrAccessDenied    = errors.New("access denied")
	ErrNotFound        = errors.New("resource not found")
	ErrValidation      = errors.New("invalid input")
	ErrSetupIncomplete = errors.New("setup not complete")
	ErrMissingAvatar   = errors.New("avatar photo not uploaded")
)

// ExternalServiceError carries a non-2xx response from one of the outbound
// providers. PermissionDenied is set when the provider's message suggests a
// missing scope rather than a transient failure, so operators get a precise
// diagnostic instead of a generic retry hint.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Service, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// PermissionDenied reports whether the provider error text indicates a
// permissions problem. Matching is substring-based and case-insensitive.
func (e *ExternalServiceError) PermissionDenied() bool {
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "permission") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden")
}

// External builds an ExternalServiceError.
func External(service string, statusCode int, message string) *ExternalServiceError {
	return &ExternalServiceError{Service: service, StatusCode: statusCode, Message: message}
}

// Wrap adds context to an error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsPermissionDenied reports whether err (or anything it wraps) is an external
// error classified as a permissions problem.
func IsPermissionDenied(err error) bool {
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext.PermissionDenied()
	}
	return false
}
