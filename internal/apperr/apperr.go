package apperr

import (
	"errors"
	"fmt"
)

// Category sentinels. Package-specific errors wrap one of these so the HTTP
// layer can map them to status codes without knowing every package.
var (
	ErrValidation = errors.New("validation failed")
	ErrState      = errors.New("invalid state")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
)

// ValidationError is a user-correctable input problem on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// State wraps ErrState with a specific message.
func State(message string) error {
	return fmt.Errorf("%w: %s", ErrState, message)
}

// NotFound wraps ErrNotFound with the missing entity name.
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}
