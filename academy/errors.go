/*
errors.go - Centralized error types for the academy domain

PURPOSE:
  All error types in one place for consistency and discoverability.
  Storage and billing packages return or wrap these errors; the API layer
  maps them to HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors - Bad input, surfaced before any write
  2. Storage errors - Failures inside a payment registration transaction
  3. Invariant errors - Uniqueness and stock constraints

USAGE:
  if errors.Is(err, academy.ErrDuplicateAllocation) {
      // already allocated, skip
  }

SEE ALSO:
  - billing/engine.go: Raises ValidationError and TransactionError
  - store/sqlite/sqlite.go: Translates driver constraint errors
*/
package academy

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would break a reference
	// (e.g. deleting a player that still has payments).
	ErrConflict = errors.New("conflict")

	// ErrDuplicateAllocation is returned when an allocation for the same
	// (payment, year, month) already exists. Callers treat it as "skip".
	ErrDuplicateAllocation = errors.New("allocation already exists for payment and month")

	// ErrDuplicateIdempotencyKey is returned when a payment with the same
	// idempotency key was already registered. Expected for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTransactionFailed is returned when a payment registration could not
	// be committed. Nothing from the failed registration is persisted.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrInsufficientStock is returned when an outgoing movement exceeds stock.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransactionError wraps the storage failure that aborted a transaction.
// It matches both ErrTransactionFailed and the underlying cause.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: transaction failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() []error {
	return []error{ErrTransactionFailed, e.Err}
}

// IdempotencyConflictError reports a key that was already used for a
// different payment (another player or another amount).
type IdempotencyConflictError struct {
	Key      string
	PlayerID PlayerID
	Amount   int64
}

func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q already used for player %d, amount %d",
		e.Key, e.PlayerID, e.Amount)
}

func (e *IdempotencyConflictError) Unwrap() error { return ErrConflict }

// InsufficientStockError provides details about a rejected movement.
type InsufficientStockError struct {
	ItemID    int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: available %d, requested %d",
		e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is a reference or uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}
