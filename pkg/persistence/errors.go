// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrSagaNotFound indicates no saga record matches the identifier or
	// correlation key.
	ErrSagaNotFound = errors.New("saga not found")

	// ErrStaleSagaRecord indicates an optimistic-version conflict: another
	// delivery updated the record between the read and the write.
	ErrStaleSagaRecord = errors.New("stale saga record")

	// ErrDuplicateSaga indicates a non-terminal instance already exists
	// for the (tenant, saga type) pair.
	ErrDuplicateSaga = errors.New("active saga already exists")

	// ErrInvalidTransition indicates a write attempted a non-monotonic
	// state change.
	ErrInvalidTransition = errors.New("invalid saga state transition")

	// ErrExchangeNotFound indicates no exchange record matches.
	ErrExchangeNotFound = errors.New("exchange record not found")

	// ErrDeliveryNotFound indicates no delivery-log row matches.
	ErrDeliveryNotFound = errors.New("delivery log entry not found")
)

// SagaError wraps saga persistence errors with operation context.
type SagaError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Update")
	SagaID string
	Err    error
}

func (e *SagaError) Error() string {
	return fmt.Sprintf("%s operation failed for saga %s: %v", e.Op, e.SagaID, e.Err)
}

func (e *SagaError) Unwrap() error {
	return e.Err
}

func (e *SagaError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSagaError creates a new saga error with context.
func NewSagaError(op, sagaID string, err error) *SagaError {
	return &SagaError{Op: op, SagaID: sagaID, Err: err}
}

// ExchangeError wraps exchange persistence errors with operation context.
type ExchangeError struct {
	Op         string
	ExchangeID string
	Err        error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s operation failed for exchange %s: %v", e.Op, e.ExchangeID, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

func (e *ExchangeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsSagaNotFound checks if an error indicates a saga was not found.
func IsSagaNotFound(err error) bool {
	return errors.Is(err, ErrSagaNotFound)
}

// IsDuplicateSaga checks if an error indicates an active instance already
// exists for the (tenant, saga type) pair.
func IsDuplicateSaga(err error) bool {
	return errors.Is(err, ErrDuplicateSaga)
}

// IsStaleSagaRecord checks if an error indicates an optimistic-version conflict.
func IsStaleSagaRecord(err error) bool {
	return errors.Is(err, ErrStaleSagaRecord)
}

// IsExchangeNotFound checks if an error indicates an exchange record was not found.
func IsExchangeNotFound(err error) bool {
	return errors.Is(err, ErrExchangeNotFound)
}
