/*
Package billing allocates payments to monthly fees and derives player status.

PURPOSE:
  Turns a lump payment into per-month allocation rows and answers
  "is this player up to date?". Three parts:
  - Fee calendar (calendar.go): how much of a month's fee is still needed
  - Allocation engine (this file): spreads a payment over months
  - Status evaluator (status.go): paid / partial / debt for the current month

ALLOCATION WALK:
  Starting at the current wall-clock month (not the payment date), walk
  forward one month at a time for academy.Horizon months. For each month
  the need is fee - already allocated; a positive need receives
  min(remaining, need). The walk stops when the payment is used up.
  Covered months get no row. Residue past the horizon stays unallocated.

ATOMICITY:
  The payment row and all of its allocation rows are written in a single
  store transaction. Any failure rolls everything back and surfaces as
  *academy.TransactionError (errors.Is(err, academy.ErrTransactionFailed)).

CONCURRENCY:
  The store transaction is what keeps two payments from reading the same
  "already allocated" totals. The per-player mutex additionally orders a
  player's registrations so a retried key is seen by the lookup before the
  insert is attempted. Different players proceed in parallel.

IDEMPOTENCY:
  - A repeated idempotency key for the same player and amount returns the
    original payment together with academy.ErrDuplicateIdempotencyKey;
    nothing new is written.
  - The same key with another player or amount is an
    *academy.IdempotencyConflictError (errors.Is academy.ErrConflict).
  - A key that only collides at insert time (a racing request the lookup
    missed) is resolved the same way after the rollback.
  - Reallocate re-runs the walk with whatever the payment has not yet
    allocated; a fully allocated payment produces no rows, and a repeated
    (payment, month) insert is skipped.

SEE ALSO:
  - academy/store.go: TxLedgerStore contract
  - store/sqlite/payments.go: SQL implementation
*/
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/efusa/academy/academy"
	"github.com/efusa/academy/metrics"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns payment registration and status evaluation.
type Engine struct {
	store   academy.TxLedgerStore
	fees    academy.FeeProvider
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Recorder

	locks *playerLocks
	cache *statusCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now (tests pin the current month with it).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log.With().Str("component", "billing").Logger() }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine over store, reading the fee from fees.
func NewEngine(store academy.TxLedgerStore, fees academy.FeeProvider, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		fees:  fees,
		now:   time.Now,
		log:   zerolog.Nop(),
		locks: newPlayerLocks(),
		cache: newStatusCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now reads the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// CurrentMonth is the month the allocation walk starts from.
func (e *Engine) CurrentMonth() academy.Month {
	return academy.MonthOf(e.now())
}

// =============================================================================
// REGISTRATION
// =============================================================================

// PaymentInput is a raw payment as received from a caller.
type PaymentInput struct {
	PlayerID       academy.PlayerID
	Amount         int64
	Date           time.Time // zero means today
	Method         string
	Notes          string
	IdempotencyKey string // generated when empty
}

// Validate checks the input without touching storage.
func (in PaymentInput) Validate() error {
	if in.PlayerID <= 0 {
		return academy.Invalid("player_id", "is required")
	}
	if in.Amount <= 0 {
		return academy.Invalid("amount", "must be positive, got %d", in.Amount)
	}
	return nil
}

// RegisterPayment persists a payment and allocates it across months.
// Returns the created payment (not the allocations).
func (e *Engine) RegisterPayment(ctx context.Context, in PaymentInput) (*academy.Payment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(in.PlayerID)
	defer unlock()

	exists, err := e.store.PlayerExists(ctx, in.PlayerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, academy.Invalid("player_id", "player %d not found", in.PlayerID)
	}

	if in.IdempotencyKey != "" {
		prior, err := e.store.PaymentByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return e.replay(in, prior)
		}
	} else {
		in.IdempotencyKey = uuid.NewString()
	}

	fee, err := e.fees.MonthlyFee(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	payment := &academy.Payment{
		PlayerID:       in.PlayerID,
		Amount:         in.Amount,
		Date:           academy.Date(date),
		Method:         in.Method,
		Notes:          in.Notes,
		IdempotencyKey: in.IdempotencyKey,
	}

	var result walkResult
	err = e.store.WithTx(ctx, func(tx academy.LedgerStore) error {
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		result, err = allocate(ctx, tx, payment, payment.Amount, fee, academy.MonthOf(now))
		return err
	})
	if err != nil {
		if errors.Is(err, academy.ErrDuplicateIdempotencyKey) {
			prior, lerr := e.store.PaymentByIdempotencyKey(ctx, in.IdempotencyKey)
			if lerr != nil {
				return nil, lerr
			}
			if prior != nil {
				return e.replay(in, prior)
			}
			return nil, err
		}
		e.metrics.PaymentFailed()
		e.log.Error().Err(err).Int64("player_id", int64(in.PlayerID)).Msg("payment registration rolled back")
		return nil, &academy.TransactionError{Op: "register payment", Err: err}
	}

	e.cache.Invalidate(in.PlayerID)
	e.metrics.PaymentRegistered(len(result.rows), result.allocated, result.residual)

	ev := e.log.Info().
		Int64("payment_id", int64(payment.ID)).
		Int64("player_id", int64(payment.PlayerID)).
		Int64("amount", payment.Amount).
		Int("allocations", len(result.rows))
	if result.residual > 0 {
		ev = ev.Int64("unallocated", result.residual)
	}
	ev.Msg("payment registered")

	return payment, nil
}

// replay answers a request whose idempotency key is already taken by prior.
func (e *Engine) replay(in PaymentInput, prior *academy.Payment) (*academy.Payment, error) {
	if prior.PlayerID != in.PlayerID || prior.Amount != in.Amount {
		e.log.Warn().
			Str("idempotency_key", in.IdempotencyKey).
			Int64("payment_id", int64(prior.ID)).
			Int64("player_id", int64(in.PlayerID)).
			Msg("idempotency key reused for a different payment")
		return nil, &academy.IdempotencyConflictError{
			Key:      in.IdempotencyKey,
			PlayerID: prior.PlayerID,
			Amount:   prior.Amount,
		}
	}
	e.log.Info().
		Str("idempotency_key", in.IdempotencyKey).
		Int64("payment_id", int64(prior.ID)).
		Msg("payment already registered")
	return prior, academy.ErrDuplicateIdempotencyKey
}

// Reallocate re-runs the allocation walk for an existing payment using the
// part of the payment that is not yet allocated. Returns the rows written.
func (e *Engine) Reallocate(ctx context.Context, id academy.PaymentID) ([]academy.Allocation, error) {
	payment, err := e.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, academy.ErrNotFound
	}

	unlock := e.locks.Lock(payment.PlayerID)
	defer unlock()

	fee, err := e.fees.MonthlyFee(ctx)
	if err != nil {
		return nil, err
	}

	var result walkResult
	err = e.store.WithTx(ctx, func(tx academy.LedgerStore) error {
		used, err := tx.AllocatedForPayment(ctx, id)
		if err != nil {
			return err
		}
		remaining := payment.Amount - used
		if remaining <= 0 {
			return nil
		}
		result, err = allocate(ctx, tx, payment, remaining, fee, e.CurrentMonth())
		return err
	})
	if err != nil {
		return nil, &academy.TransactionError{Op: "reallocate payment", Err: err}
	}

	if len(result.rows) > 0 {
		e.cache.Invalidate(payment.PlayerID)
		e.metrics.Reallocated(len(result.rows), result.allocated)
	}
	e.log.Info().
		Int64("payment_id", int64(id)).
		Int("allocations", len(result.rows)).
		Msg("payment reallocated")
	return result.rows, nil
}

// DeletePayment removes a payment. Its allocation rows stay behind and no
// longer count toward any month.
func (e *Engine) DeletePayment(ctx context.Context, id academy.PaymentID) error {
	payment, err := e.store.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	if payment == nil {
		return academy.ErrNotFound
	}

	unlock := e.locks.Lock(payment.PlayerID)
	defer unlock()

	if err := e.store.DeletePayment(ctx, id); err != nil {
		return err
	}
	e.cache.Invalidate(payment.PlayerID)
	e.log.Info().Int64("payment_id", int64(id)).Msg("payment deleted")
	return nil
}

// Invalidate drops the cached status of one player (after delete or edit).
func (e *Engine) Invalidate(player academy.PlayerID) { e.cache.Invalidate(player) }

// InvalidateAll drops every cached status (used after a fee change).
func (e *Engine) InvalidateAll() { e.cache.Clear() }

// =============================================================================
// ALLOCATION WALK
// =============================================================================

type walkResult struct {
	rows      []academy.Allocation
	allocated int64
	residual  int64
}

// allocate spreads remaining over months starting at start. It runs inside
// the caller's transaction.
func allocate(ctx context.Context, tx academy.LedgerStore, p *academy.Payment, remaining, fee int64, start academy.Month) (walkResult, error) {
	var res walkResult

	for i := 0; i < academy.Horizon && remaining > 0; i++ {
		month := start.Add(i)

		need, err := neededForMonth(ctx, tx, fee, p.PlayerID, month)
		if err != nil {
			return res, err
		}
		if need <= 0 {
			continue
		}

		a := academy.Allocation{
			PaymentID: p.ID,
			Month:     month,
			Amount:    min(remaining, need),
		}
		if err := tx.CreateAllocation(ctx, &a); err != nil {
			if errors.Is(err, academy.ErrDuplicateAllocation) {
				continue
			}
			return res, err
		}

		remaining -= a.Amount
		res.allocated += a.Amount
		res.rows = append(res.rows, a)
	}

	res.residual = remaining
	return res, nil
}
