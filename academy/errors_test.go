package academy_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/efusa/academy/academy"
)

func TestValidationError(t *testing.T) {
	err := academy.Invalid("amount", "must be positive, got %d", -5)

	assert.EqualError(t, err, "invalid amount: must be positive, got -5")
	assert.ErrorIs(t, err, academy.ErrValidation)
	assert.True(t, academy.IsClientError(err))

	var ve *academy.ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &ve))
	assert.Equal(t, "amount", ve.Field)
}

func TestTransactionError_MatchesBothCauses(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := &academy.TransactionError{Op: "register payment", Err: cause}

	assert.ErrorIs(t, err, academy.ErrTransactionFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "register payment")
	assert.False(t, academy.IsClientError(err))
}

func TestInsufficientStockError(t *testing.T) {
	err := &academy.InsufficientStockError{ItemID: 3, Available: 2, Requested: 5}

	assert.ErrorIs(t, err, academy.ErrInsufficientStock)
	assert.True(t, academy.IsClientError(err))
	assert.EqualError(t, err, "insufficient stock for item 3: available 2, requested 5")
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, academy.IsNotFound(fmt.Errorf("payment 4: %w", academy.ErrNotFound)))
	assert.True(t, academy.IsConflict(academy.ErrDuplicateIdempotencyKey))
	assert.True(t, academy.IsConflict(fmt.Errorf("player 1 has payments: %w", academy.ErrConflict)))
	assert.False(t, academy.IsConflict(academy.ErrDuplicateAllocation))
}

func TestIdempotencyConflictError(t *testing.T) {
	err := &academy.IdempotencyConflictError{Key: "rcpt-7", PlayerID: 1, Amount: 50000}

	assert.ErrorIs(t, err, academy.ErrConflict)
	assert.True(t, academy.IsConflict(err))
	assert.False(t, academy.IsClientError(err))
	assert.EqualError(t, err, `idempotency key "rcpt-7" already used for player 1, amount 50000`)
}
