package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across components. The API layer maps these to
// HTTP status codes; nothing below the API layer retries on them.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("insufficient permissions")
	ErrUnauthorized = errors.New("authentication required")
	ErrConflict     = errors.New("resource already exists")
)

// ValidationError reports a malformed mutation input. It carries the field
// name so the API layer can surface actionable messages.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the named field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
