package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel values for errors.Is checks. Each typed error below matches its sentinel.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrExternalSource   = errors.New("external source failed")
	ErrInsufficientData = errors.New("insufficient data")
)

// ValidationError reports a rejected field. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

func (e ValidationErrors) Is(target error) bool { return target == ErrValidation }

// OrNil returns nil when no errors were collected, so callers can
// `return errs.OrNil()` without producing a typed-nil interface.
func (e ValidationErrors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// NewValidationError is a shorthand for a single field error.
func NewValidationError(field, format string, args ...interface{}) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity (item, rule, price source, forecast).
type NotFoundError struct {
	Entity string
	Key    interface{}
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Entity, e.Key)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ExternalSourceError is returned once a price-source fetch exhausted its retry budget.
type ExternalSourceError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *ExternalSourceError) Error() string {
	return fmt.Sprintf("price source %s failed after %d attempt(s): %v", e.Source, e.Attempts, e.Err)
}

func (e *ExternalSourceError) Unwrap() error { return e.Err }

func (e *ExternalSourceError) Is(target error) bool { return target == ErrExternalSource }

// InsufficientDataError is raised when a forecast has too little history for
// time-series methods. It is not fatal: callers downgrade to a fallback.
type InsufficientDataError struct {
	Required  int
	Available int
}

func (e InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient history: need %d full periods, have %d", e.Required, e.Available)
}

func (e InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }
