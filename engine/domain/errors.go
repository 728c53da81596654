package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrEmptyQuestion     = errors.New("empty question")
	ErrQuestionTooLong   = errors.New("question too long")
	ErrInvalidTopK       = errors.New("top-k must be positive")
	ErrEmptyFilename     = errors.New("empty filename")
	ErrUnsafeFilename    = errors.New("filename escapes uploads directory")
	ErrNoContent         = errors.New("document has no extractable content")
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// ValidationError wraps a sentinel with the field and value that failed.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
