package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efusa/academy/academy"
	"github.com/efusa/academy/academy/store"
	"github.com/efusa/academy/billing"
	"github.com/efusa/academy/metrics"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const fee = 50000

var march = academy.NewMonth(2025, time.March)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestEngine(t *testing.T, players ...academy.PlayerID) (*billing.Engine, *store.Memory, *clock) {
	t.Helper()
	mem := store.NewMemory(fee)
	for _, id := range players {
		mem.AddPlayer(id)
	}
	clk := &clock{now: time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)}
	engine := billing.NewEngine(mem, mem, billing.WithClock(clk.Now), billing.WithMetrics(metrics.New()))
	return engine, mem, clk
}

func pay(player academy.PlayerID, amount int64) billing.PaymentInput {
	return billing.PaymentInput{PlayerID: player, Amount: amount, Method: "cash"}
}

// allocated returns the rows of payment id, keyed by month.
func allocated(mem *store.Memory, id academy.PaymentID) map[academy.Month]int64 {
	out := make(map[academy.Month]int64)
	for _, a := range mem.Allocations() {
		if a.PaymentID == id {
			out[a.Month] += a.Amount
		}
	}
	return out
}

// =============================================================================
// ALLOCATION TESTS
// =============================================================================

func TestRegisterPayment_FullFee_CoversCurrentMonth(t *testing.T) {
	// GIVEN: A player with no prior allocations
	// WHEN: Paying exactly one fee
	// THEN: One allocation row for the current month, status paid

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	p, err := engine.RegisterPayment(ctx, pay(1, 50000))
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.NotEmpty(t, p.IdempotencyKey, "key is generated when omitted")

	rows := mem.Allocations()
	require.Len(t, rows, 1)
	assert.Equal(t, march, rows[0].Month)
	assert.Equal(t, int64(50000), rows[0].Amount)
	assert.Equal(t, p.ID, rows[0].PaymentID)

	status, err := engine.PlayerStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, academy.StatusPaid, status.Status)
	assert.Equal(t, int64(0), status.Debt)
}

func TestRegisterPayment_PartialFee(t *testing.T) {
	// GIVEN: fee = 50000
	// WHEN: Paying 30000
	// THEN: One row of 30000, status partial, debt 20000

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	_, err := engine.RegisterPayment(ctx, pay(1, 30000))
	require.NoError(t, err)

	rows := mem.Allocations()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(30000), rows[0].Amount)

	status, err := engine.PlayerStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, academy.StatusPartial, status.Status)
	assert.Equal(t, int64(30000), status.PaidThisMonth)
	assert.Equal(t, int64(20000), status.Debt)
}

func TestRegisterPayment_SpillsIntoNextMonth(t *testing.T) {
	// GIVEN: Earlier months unpaid
	// WHEN: Paying 90000
	// THEN: The walk starts at the current month: 50000 now, 40000 next month

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	p, err := engine.RegisterPayment(ctx, billing.PaymentInput{
		PlayerID: 1,
		Amount:   90000,
		Date:     time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rows := mem.Allocations()
	require.Len(t, rows, 2)
	assert.Equal(t, march, rows[0].Month)
	assert.Equal(t, int64(50000), rows[0].Amount)
	assert.Equal(t, march.Add(1), rows[1].Month)
	assert.Equal(t, int64(40000), rows[1].Amount)

	assert.Equal(t, time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC), p.Date,
		"payment date is stored as given, allocation ignores it")
}

func TestRegisterPayment_TopsUpPartialMonth(t *testing.T) {
	// GIVEN: 30000 already allocated to March
	// WHEN: Paying another 30000
	// THEN: 20000 completes March, 10000 goes to April

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	_, err := engine.RegisterPayment(ctx, pay(1, 30000))
	require.NoError(t, err)
	second, err := engine.RegisterPayment(ctx, pay(1, 30000))
	require.NoError(t, err)

	got := allocated(mem, second.ID)
	assert.Equal(t, map[academy.Month]int64{march: 20000, march.Add(1): 10000}, got)

	need, err := engine.NeededForMonth(ctx, 1, march.Add(1))
	require.NoError(t, err)
	assert.Equal(t, int64(40000), need)
}

func TestRegisterPayment_InvalidAmount_Rejected(t *testing.T) {
	// GIVEN: A registered player
	// WHEN: Paying zero or a negative amount
	// THEN: Validation error, nothing persisted

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	for _, amount := range []int64{0, -100} {
		_, err := engine.RegisterPayment(ctx, pay(1, amount))
		require.Error(t, err)
		assert.ErrorIs(t, err, academy.ErrValidation)

		var verr *academy.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "amount", verr.Field)
	}

	assert.Empty(t, mem.Payments())
	assert.Empty(t, mem.Allocations())
}

func TestRegisterPayment_UnknownPlayer_Rejected(t *testing.T) {
	engine, mem, _ := newTestEngine(t)

	_, err := engine.RegisterPayment(context.Background(), pay(99, 50000))
	assert.ErrorIs(t, err, academy.ErrValidation)
	assert.True(t, academy.IsClientError(err))
	assert.Empty(t, mem.Payments())
}

func TestRegisterPayment_HorizonResidueStaysUnallocated(t *testing.T) {
	// GIVEN: A payment larger than 24 fees
	// WHEN: Registering it
	// THEN: Exactly 24 full months are covered, the rest is not allocated

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	p, err := engine.RegisterPayment(ctx, pay(1, fee*academy.Horizon+7000))
	require.NoError(t, err)

	got := allocated(mem, p.ID)
	assert.Len(t, got, academy.Horizon)

	var total int64
	for m, amount := range got {
		assert.Equal(t, int64(fee), amount, "month %s", m)
		total += amount
	}
	assert.Equal(t, int64(fee*academy.Horizon), total)
	assert.Less(t, total, p.Amount)
}

func TestRegisterPayment_NeverOverAllocates(t *testing.T) {
	// GIVEN: A mix of odd-sized payments
	// WHEN: All are registered
	// THEN: No month exceeds the fee and no payment is over-spent

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	var ids []academy.PaymentID
	for _, amount := range []int64{12345, 50000, 1, 77777, 49999} {
		p, err := engine.RegisterPayment(ctx, pay(1, amount))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	perMonth := make(map[academy.Month]int64)
	for _, a := range mem.Allocations() {
		perMonth[a.Month] += a.Amount
	}
	for m, amount := range perMonth {
		assert.LessOrEqual(t, amount, int64(fee), "month %s", m)
	}

	for _, p := range mem.Payments() {
		var sum int64
		for _, amount := range allocated(mem, p.ID) {
			sum += amount
		}
		assert.LessOrEqual(t, sum, p.Amount)
	}
	assert.Len(t, ids, 5)
}

// =============================================================================
// ATOMICITY TESTS
// =============================================================================

func TestRegisterPayment_StorageFailure_RollsBack(t *testing.T) {
	// GIVEN: The second allocation insert fails
	// WHEN: Registering a payment that needs two rows
	// THEN: TransactionError, no payment and no allocation persisted

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	diskFull := errors.New("disk full")
	calls := 0
	mem.Fault = func(op string) error {
		if op != "create_allocation" {
			return nil
		}
		calls++
		if calls == 2 {
			return diskFull
		}
		return nil
	}

	_, err := engine.RegisterPayment(ctx, pay(1, 90000))
	require.Error(t, err)
	assert.ErrorIs(t, err, academy.ErrTransactionFailed)
	assert.ErrorIs(t, err, diskFull)

	var txErr *academy.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "register payment", txErr.Op)

	assert.Empty(t, mem.Payments())
	assert.Empty(t, mem.Allocations())

	// Store recovers for the next registration.
	mem.Fault = nil
	_, err = engine.RegisterPayment(ctx, pay(1, 90000))
	require.NoError(t, err)
	assert.Len(t, mem.Allocations(), 2)
}

// =============================================================================
// IDEMPOTENCY TESTS
// =============================================================================

func TestRegisterPayment_DuplicateIdempotencyKey(t *testing.T) {
	// GIVEN: A payment registered with key "receipt-1"
	// WHEN: The same request is retried
	// THEN: The original payment comes back, nothing new is written

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	in := pay(1, 50000)
	in.IdempotencyKey = "receipt-1"

	first, err := engine.RegisterPayment(ctx, in)
	require.NoError(t, err)

	again, err := engine.RegisterPayment(ctx, in)
	assert.ErrorIs(t, err, academy.ErrDuplicateIdempotencyKey)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)

	assert.Len(t, mem.Payments(), 1)
	assert.Len(t, mem.Allocations(), 1)
}

func TestRegisterPayment_IdempotencyKeyOfAnotherPayment_Conflicts(t *testing.T) {
	// GIVEN: Key "receipt-1" used by player 1 for one fee
	// WHEN: Player 2 sends the same key, then player 1 sends it with another amount
	// THEN: Both are conflicts; no payment is replayed or written

	engine, mem, _ := newTestEngine(t, 1, 2)
	ctx := context.Background()

	in := pay(1, fee)
	in.IdempotencyKey = "receipt-1"
	_, err := engine.RegisterPayment(ctx, in)
	require.NoError(t, err)

	other := pay(2, fee)
	other.IdempotencyKey = "receipt-1"
	p, err := engine.RegisterPayment(ctx, other)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, academy.ErrConflict)
	assert.NotErrorIs(t, err, academy.ErrDuplicateIdempotencyKey)

	var conflict *academy.IdempotencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, academy.PlayerID(1), conflict.PlayerID)

	changed := pay(1, 20000)
	changed.IdempotencyKey = "receipt-1"
	p, err = engine.RegisterPayment(ctx, changed)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, academy.ErrConflict)

	assert.Len(t, mem.Payments(), 1)
	status, err := engine.PlayerStatus(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, academy.StatusDebt, status.Status)
}

func TestRegisterPayment_ConcurrentRetriesSameKey(t *testing.T) {
	// GIVEN: Eight copies of one payment racing with the same key
	// WHEN: All complete
	// THEN: One registers, the rest replay it, nothing conflicts

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	type result struct {
		payment *academy.Payment
		err     error
	}
	results := make(chan result, 8)
	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := pay(1, fee)
			in.IdempotencyKey = "receipt-race"
			p, err := engine.RegisterPayment(ctx, in)
			results <- result{p, err}
		}()
	}
	wg.Wait()
	close(results)

	created, replayed := 0, 0
	ids := map[academy.PaymentID]bool{}
	for r := range results {
		require.NotNil(t, r.payment, "err: %v", r.err)
		ids[r.payment.ID] = true
		switch {
		case r.err == nil:
			created++
		case errors.Is(r.err, academy.ErrDuplicateIdempotencyKey):
			replayed++
		default:
			t.Errorf("unexpected error: %v", r.err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 7, replayed)
	assert.Len(t, ids, 1)
	assert.Len(t, mem.Payments(), 1)
}

func TestRegisterPayment_SameKeyRacingAcrossPlayers(t *testing.T) {
	// GIVEN: Two players sending the same key at once (different player locks)
	// WHEN: Both complete
	// THEN: Exactly one payment exists and the loser gets a conflict

	engine, mem, _ := newTestEngine(t, 1, 2)
	ctx := context.Background()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, player := range []academy.PlayerID{1, 2} {
		player := player
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := pay(player, fee)
			in.IdempotencyKey = "shared"
			_, err := engine.RegisterPayment(ctx, in)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case academy.IsConflict(err) && !errors.Is(err, academy.ErrDuplicateIdempotencyKey):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, mem.Payments(), 1)
}

func TestReallocate_IsIdempotent(t *testing.T) {
	// GIVEN: A payment fully allocated
	// WHEN: Reallocating it twice
	// THEN: No rows are added

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	p, err := engine.RegisterPayment(ctx, pay(1, 90000))
	require.NoError(t, err)

	for n := 0; n < 2; n++ {
		rows, err := engine.Reallocate(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, rows)
	}
	assert.Len(t, mem.Allocations(), 2)
}

func TestReallocate_PicksUpResidueWhenHorizonMoves(t *testing.T) {
	// GIVEN: A payment with residue beyond the horizon
	// WHEN: A month passes and the payment is reallocated
	// THEN: The residue lands on the newly reachable month, once

	engine, mem, clk := newTestEngine(t, 1)
	ctx := context.Background()

	p, err := engine.RegisterPayment(ctx, pay(1, fee*academy.Horizon+fee))
	require.NoError(t, err)
	require.Len(t, allocated(mem, p.ID), academy.Horizon)

	clk.Set(time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC))

	rows, err := engine.Reallocate(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, march.Add(academy.Horizon), rows[0].Month)
	assert.Equal(t, int64(fee), rows[0].Amount)

	rows, err = engine.Reallocate(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReallocate_SkipsMonthsAlreadyAllocated(t *testing.T) {
	// GIVEN: Fee 10, a payment filling the whole horizon with 60 left over
	// WHEN: The fee rises to 20 and the payment is reallocated
	// THEN: Every month already has a row for this payment, so each is skipped

	mem := store.NewMemory(10)
	mem.AddPlayer(1)
	clk := &clock{now: time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)}
	engine := billing.NewEngine(mem, mem, billing.WithClock(clk.Now))
	ctx := context.Background()

	p, err := engine.RegisterPayment(ctx, pay(1, 10*academy.Horizon+60))
	require.NoError(t, err)
	require.Len(t, mem.Allocations(), academy.Horizon)

	mem.SetFee(20)

	need, err := engine.NeededForMonth(ctx, 1, march)
	require.NoError(t, err)
	require.Equal(t, int64(10), need, "the month still needs money")

	rows, err := engine.Reallocate(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Len(t, mem.Allocations(), academy.Horizon)
}

func TestReallocate_UnknownPayment(t *testing.T) {
	engine, _, _ := newTestEngine(t, 1)

	_, err := engine.Reallocate(context.Background(), 404)
	assert.True(t, academy.IsNotFound(err))
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestDeletePayment_AllocationsStopCounting(t *testing.T) {
	// GIVEN: A player who paid March
	// WHEN: The payment is deleted
	// THEN: The player is back in debt; the orphaned rows remain

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	p, err := engine.RegisterPayment(ctx, pay(1, 50000))
	require.NoError(t, err)

	status, err := engine.PlayerStatus(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, academy.StatusPaid, status.Status)

	require.NoError(t, engine.DeletePayment(ctx, p.ID))

	status, err = engine.PlayerStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, academy.StatusDebt, status.Status)
	assert.Nil(t, status.LastPaymentDate)
	assert.Len(t, mem.Allocations(), 1)

	assert.True(t, academy.IsNotFound(engine.DeletePayment(ctx, p.ID)))
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestRegisterPayment_ConcurrentSamePlayer(t *testing.T) {
	// GIVEN: Ten payments of 10000 racing for one player
	// WHEN: All complete
	// THEN: Exactly two months are filled, none above the fee

	engine, mem, _ := newTestEngine(t, 1, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := engine.RegisterPayment(ctx, pay(1, 10000))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := engine.RegisterPayment(ctx, pay(2, 5000))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, player := range []academy.PlayerID{1, 2} {
		byMonth, err := mem.AllocatedByMonth(ctx, player, march, academy.Horizon)
		require.NoError(t, err)
		for m, amount := range byMonth {
			assert.LessOrEqual(t, amount, int64(fee), "player %d month %s", player, m)
		}
	}

	byMonth, _ := mem.AllocatedByMonth(ctx, 1, march, academy.Horizon)
	assert.Equal(t, map[academy.Month]int64{march: fee, march.Add(1): fee}, byMonth)

	byMonth, _ = mem.AllocatedByMonth(ctx, 2, march, academy.Horizon)
	assert.Equal(t, map[academy.Month]int64{march: fee}, byMonth)
}

func TestNeededForMonth_NegativeAfterFeeCut(t *testing.T) {
	// GIVEN: March fully paid at 50000
	// WHEN: The fee drops to 40000
	// THEN: March needs -10000 and a new payment skips it

	engine, mem, _ := newTestEngine(t, 1)
	ctx := context.Background()

	_, err := engine.RegisterPayment(ctx, pay(1, 50000))
	require.NoError(t, err)
	mem.SetFee(40000)

	need, err := engine.NeededForMonth(ctx, 1, march)
	require.NoError(t, err)
	assert.Equal(t, int64(-10000), need)

	p, err := engine.RegisterPayment(ctx, pay(1, 40000))
	require.NoError(t, err)
	assert.Equal(t, map[academy.Month]int64{march.Add(1): 40000}, allocated(mem, p.ID))
}
