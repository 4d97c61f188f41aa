package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// NotFoundError identifies the missing entity and its key.
type NotFoundError struct {
	Entity string
	Key    string
}

// NewNotFound builds a NotFoundError for the given entity and key.
func NewNotFound(entity string, key any) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// Unwrap lets errors.Is match ErrNotFound.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError identifies a duplicate entity.
type ConflictError struct {
	Entity string
	Detail string
}

// NewConflict builds a ConflictError.
func NewConflict(entity, detail string) *ConflictError {
	return &ConflictError{Entity: entity, Detail: detail}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Detail)
}

// Unwrap lets errors.Is match ErrConflict.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError carries a field-level validation failure.
type ValidationError struct {
	Field  string
	Detail string
}

// NewValidation builds a ValidationError.
func NewValidation(field, detail string) *ValidationError {
	return &ValidationError{Field: field, Detail: detail}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }
