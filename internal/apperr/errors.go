// Package apperr defines the error kinds shared by the store, service and transport layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrStore         = errors.New("store error")
)

// Error attaches a kind (one of the sentinels above) and the failing operation to a cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NotFound reports that op found nothing to read or update.
func NotFound(op string) error {
	return &Error{Kind: ErrNotFound, Op: op}
}

// Store wraps a persistence failure.
func Store(op string, err error) error {
	return &Error{Kind: ErrStore, Op: op, Err: err}
}

// Connection wraps a failed dial to the backing store.
func Connection(op string, err error) error {
	return &Error{Kind: ErrConnection, Op: op, Err: err}
}

// Configuration reports a missing or invalid setup value.
func Configuration(op, msg string) error {
	return &Error{Kind: ErrConfiguration, Op: op, Err: errors.New(msg)}
}

// ValidationError carries per-field input errors. Fields is usually an
// ozzo-validation Errors map, which marshals to {"field": "message"}.
type ValidationError struct {
	Fields error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Fields)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Fields}
}

// Validation wraps input errors produced by boundary checks.
func Validation(fields error) error {
	return &ValidationError{Fields: fields}
}
