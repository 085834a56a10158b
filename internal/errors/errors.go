package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy for the identity service. Every error that crosses a
// package boundary wraps one of these sentinels so the HTTP layer can map
// it to a stable status class with errors.Is.
var (
	// Input errors
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("resource already exists")

	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Credential errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Third-party errors
	ErrUpstream        = errors.New("upstream provider error")
	ErrUpstreamTimeout = errors.New("upstream provider timeout")

	// General errors
	ErrInternal = errors.New("internal error")
)

// ValidationError carries field-level detail for malformed input.
// It unwraps to ErrValidation so callers can match on the class.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a failed field. Returns the receiver for chaining.
func (e *ValidationError) Add(field, message string) *ValidationError {
	e.Fields[field] = message
	return e
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
