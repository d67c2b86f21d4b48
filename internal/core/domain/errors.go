package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrStateTransition     = errors.New("invalid state transition")
	ErrClockNotBiddable    = errors.New("auction clock not biddable")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrNotFound            = errors.New("not found")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// ValidationError is a single-aggregate invariant violation.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func NewValidationError(entity, field, message string) *ValidationError {
	return &ValidationError{Entity: entity, Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type StateTransitionError struct {
	ClockID string
	From    ClockStatus
	To      ClockStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("auction clock %s: invalid status transition %s -> %s", e.ClockID, e.From, e.To)
}

func (e *StateTransitionError) Is(target error) bool { return target == ErrStateTransition }

type ClockNotBiddableError struct {
	ClockID string
	Status  ClockStatus
}

func (e *ClockNotBiddableError) Error() string {
	return fmt.Sprintf("auction clock %s is %s, bids are only accepted while %s", e.ClockID, e.Status, ClockStatusStarted)
}

func (e *ClockNotBiddableError) Is(target error) bool { return target == ErrClockNotBiddable }

// ConcurrencyConflictError reports a version stamp mismatch. Current is zero
// when the latest version could not be determined.
type ConcurrencyConflictError struct {
	Entity   string
	ID       string
	Expected Version
	Current  Version
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %s: version conflict (expected %d, current %d)", e.Entity, e.ID, e.Expected, e.Current)
}

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageUnavailableError passes through a transient storage failure.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

func (e *StorageUnavailableError) Is(target error) bool { return target == ErrStorageUnavailable }
