package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efusa/academy/academy"
	"github.com/efusa/academy/billing"
	"github.com/efusa/academy/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func addPlayer(t *testing.T, store *sqlite.Store, first string) academy.PlayerID {
	t.Helper()
	p := &academy.Player{
		FirstNames: first,
		LastNames:  "Pérez",
		BirthDate:  time.Date(2014, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreatePlayer(context.Background(), p, nil))
	return p.ID
}

var fixedNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func newEngine(store *sqlite.Store) *billing.Engine {
	return billing.NewEngine(store, store, billing.WithClock(func() time.Time { return fixedNow }))
}

// =============================================================================
// SCHEMA & SETTINGS
// =============================================================================

func TestNew_SeedsCategories(t *testing.T) {
	store := newTestStore(t)

	categories, err := store.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, len(academy.DefaultCategories))
	assert.Equal(t, "Pre-Infantil", categories[0].Name)
	assert.Equal(t, "Mayores", categories[len(categories)-1].Name)
}

func TestSettings_DefaultsThenSaved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), st.MonthlyFee)
	assert.Equal(t, "COP", st.Currency)

	st.MonthlyFee = 65000
	st.SchoolName = "Escuela Los Pibes"
	require.NoError(t, store.SaveSettings(ctx, st))

	fee, err := store.MonthlyFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(65000), fee)

	st.MonthlyFee = -1
	err = store.SaveSettings(ctx, st)
	assert.ErrorIs(t, err, academy.ErrValidation)
}

func TestReset_ClearsDataKeepsCategories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addPlayer(t, store, "Ana")
	require.NoError(t, store.Reset(ctx))

	players, err := store.ListPlayers(ctx)
	require.NoError(t, err)
	assert.Empty(t, players)

	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, len(academy.DefaultCategories))
}

// =============================================================================
// PLAYERS & GUARDIANS
// =============================================================================

func TestUpsertGuardian_DedupByPhone(t *testing.T) {
	// GIVEN: A guardian registered with phone 3001234567
	// WHEN: Another player registers the same phone with a different name
	// THEN: The same guardian is returned; the first name wins

	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertGuardian(ctx, "María Gómez", "3001234567")
	require.NoError(t, err)

	second, err := store.UpsertGuardian(ctx, "Maria G.", " 3001234567 ")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "María Gómez", second.Name)

	guardians, err := store.ListGuardians(ctx)
	require.NoError(t, err)
	assert.Len(t, guardians, 1)

	_, err = store.UpsertGuardian(ctx, "Nobody", "")
	assert.ErrorIs(t, err, academy.ErrValidation)
}

func TestUpsertGuardian_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 10)
	for i := range ids {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := store.UpsertGuardian(ctx, "Same Parent", "3110000000")
			if assert.NoError(t, err) {
				ids[i] = g.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreatePlayer_LinksGuardian(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &academy.Player{
		FirstNames: "Juan David",
		LastNames:  "Ríos",
		BirthDate:  time.Date(2015, time.February, 10, 0, 0, 0, 0, time.UTC),
		BloodType:  "O+",
	}
	g := &academy.Guardian{Name: "Carlos Ríos", Phone: "3209998877"}
	require.NoError(t, store.CreatePlayer(ctx, p, g))

	got, err := store.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.GuardianID)
	assert.Equal(t, g.ID, *got.GuardianID)
	assert.Equal(t, p.BirthDate, got.BirthDate)
	assert.Equal(t, "Juan David Ríos", got.FullName())
}

func TestUpdatePlayer_BirthDateImmutable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := addPlayer(t, store, "Ana")
	p, err := store.GetPlayer(ctx, id)
	require.NoError(t, err)

	original := p.BirthDate
	p.FirstNames = "Ana Sofía"
	p.BirthDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdatePlayer(ctx, p, nil))

	got, err := store.GetPlayer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana Sofía", got.FirstNames)
	assert.Equal(t, original, got.BirthDate)

	p.ID = 999
	assert.ErrorIs(t, store.UpdatePlayer(ctx, p, nil), academy.ErrNotFound)
}

func TestDeletePlayer_WithPayments_Conflict(t *testing.T) {
	// GIVEN: A player with a registered payment
	// WHEN: Deleting the player
	// THEN: ErrConflict, the player stays

	store := newTestStore(t)
	ctx := context.Background()
	engine := newEngine(store)

	id := addPlayer(t, store, "Ana")
	_, err := engine.RegisterPayment(ctx, billing.PaymentInput{PlayerID: id, Amount: 50000})
	require.NoError(t, err)

	err = store.DeletePlayer(ctx, id)
	assert.True(t, academy.IsConflict(err))

	other := addPlayer(t, store, "Luis")
	require.NoError(t, store.DeletePlayer(ctx, other))
	assert.ErrorIs(t, store.DeletePlayer(ctx, other), academy.ErrNotFound)
}

func TestSetPlayerCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := addPlayer(t, store, "Ana")
	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)

	require.NoError(t, store.SetPlayerCategory(ctx, id, &categories[1].ID))
	got, err := store.GetPlayer(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, categories[1].ID, *got.CategoryID)

	require.NoError(t, store.SetPlayerCategory(ctx, id, nil))
	got, err = store.GetPlayer(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
}

// =============================================================================
// LEDGER (billing engine on SQLite)
// =============================================================================

func TestLedger_RegisterAndStatus(t *testing.T) {
	// GIVEN: fee 50000 and a player with no payments
	// WHEN: Paying 90000
	// THEN: March gets 50000, April 40000; status paid, next due April 5

	store := newTestStore(t)
	ctx := context.Background()
	engine := newEngine(store)

	id := addPlayer(t, store, "Ana")
	p, err := engine.RegisterPayment(ctx, billing.PaymentInput{
		PlayerID: id,
		Amount:   90000,
		Date:     time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		Method:   "transfer",
	})
	require.NoError(t, err)

	allocations, err := store.Allocations(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, academy.NewMonth(2025, time.March), allocations[0].Month)
	assert.Equal(t, int64(50000), allocations[0].Amount)
	assert.Equal(t, academy.NewMonth(2025, time.April), allocations[1].Month)
	assert.Equal(t, int64(40000), allocations[1].Amount)

	status, err := engine.PlayerStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, academy.StatusPaid, status.Status)
	require.NotNil(t, status.NextDueDate)
	assert.Equal(t, time.Date(2025, time.April, 5, 0, 0, 0, 0, time.UTC), *status.NextDueDate)
	require.NotNil(t, status.LastPaymentDate)
	assert.Equal(t, time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), *status.LastPaymentDate)
}

func TestLedger_DuplicateAllocationRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := addPlayer(t, store, "Ana")
	p := &academy.Payment{PlayerID: id, Amount: 50000, Date: fixedNow}
	require.NoError(t, store.CreatePayment(ctx, p))

	a := &academy.Allocation{PaymentID: p.ID, Month: academy.MonthOf(fixedNow), Amount: 20000}
	require.NoError(t, store.CreateAllocation(ctx, a))

	dup := &academy.Allocation{PaymentID: p.ID, Month: academy.MonthOf(fixedNow), Amount: 1}
	assert.ErrorIs(t, store.CreateAllocation(ctx, dup), academy.ErrDuplicateAllocation)
}

func TestLedger_IdempotencyKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	engine := newEngine(store)

	id := addPlayer(t, store, "Ana")
	in := billing.PaymentInput{PlayerID: id, Amount: 30000, IdempotencyKey: "rcpt-0001"}

	first, err := engine.RegisterPayment(ctx, in)
	require.NoError(t, err)

	again, err := engine.RegisterPayment(ctx, in)
	assert.ErrorIs(t, err, academy.ErrDuplicateIdempotencyKey)
	assert.Equal(t, first.ID, again.ID)

	p := &academy.Payment{PlayerID: id, Amount: 1, Date: fixedNow, IdempotencyKey: "rcpt-0001"}
	assert.ErrorIs(t, store.CreatePayment(ctx, p), academy.ErrDuplicateIdempotencyKey)
}

func TestLedger_RollbackOnFailure(t *testing.T) {
	// GIVEN: A transaction that writes a payment then fails
	// WHEN: WithTx returns the error
	// THEN: The payment is not persisted

	store := newTestStore(t)
	ctx := context.Background()

	id := addPlayer(t, store, "Ana")
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx academy.LedgerStore) error {
		p := &academy.Payment{PlayerID: id, Amount: 50000, Date: fixedNow}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}
		if err := tx.CreateAllocation(ctx, &academy.Allocation{PaymentID: p.ID, Month: academy.MonthOf(fixedNow), Amount: 50000}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	payments, err := store.ListPayments(ctx, academy.PaymentFilter{PlayerID: id})
	require.NoError(t, err)
	assert.Empty(t, payments)

	sum, err := store.SumAllocated(ctx, id, academy.MonthOf(fixedNow))
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestLedger_DeletedPaymentStopsCounting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	engine := newEngine(store)

	id := addPlayer(t, store, "Ana")
	p, err := engine.RegisterPayment(ctx, billing.PaymentInput{PlayerID: id, Amount: 50000})
	require.NoError(t, err)

	require.NoError(t, engine.DeletePayment(ctx, p.ID))

	sum, err := store.SumAllocated(ctx, id, academy.MonthOf(fixedNow))
	require.NoError(t, err)
	assert.Zero(t, sum)

	orphans, err := store.Allocations(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, orphans, 1, "allocation rows are append-only")

	status, err := engine.PlayerStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, academy.StatusDebt, status.Status)
}

func TestLedger_AllocatedByMonthAcrossYearBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	engine := billing.NewEngine(store, store, billing.WithClock(func() time.Time {
		return time.Date(2025, time.November, 20, 0, 0, 0, 0, time.UTC)
	}))

	id := addPlayer(t, store, "Ana")
	_, err := engine.RegisterPayment(ctx, billing.PaymentInput{PlayerID: id, Amount: 175000})
	require.NoError(t, err)

	nov := academy.NewMonth(2025, time.November)
	byMonth, err := store.AllocatedByMonth(ctx, id, nov, academy.Horizon)
	require.NoError(t, err)
	assert.Equal(t, map[academy.Month]int64{
		nov:        50000,
		nov.Add(1): 50000,
		nov.Add(2): 50000,
		nov.Add(3): 25000,
	}, byMonth)
	assert.Equal(t, 2026, nov.Add(2).Year)

	window, err := store.AllocatedByMonth(ctx, id, nov.Add(1), 2)
	require.NoError(t, err)
	assert.Len(t, window, 2)
}

func TestLedger_ReallocateSkipsExistingRows(t *testing.T) {
	// GIVEN: fee 10 and a payment covering the whole horizon with 60 left over
	// WHEN: The fee rises to 20 and the payment is reallocated
	// THEN: The unique (payment, month) rows are hit and skipped, nothing fails

	store := newTestStore(t)
	ctx := context.Background()
	engine := newEngine(store)

	settings, err := store.GetSettings(ctx)
	require.NoError(t, err)
	settings.MonthlyFee = 10
	require.NoError(t, store.SaveSettings(ctx, settings))

	id := addPlayer(t, store, "Ana")
	p, err := engine.RegisterPayment(ctx, billing.PaymentInput{PlayerID: id, Amount: 10*academy.Horizon + 60})
	require.NoError(t, err)

	settings.MonthlyFee = 20
	require.NoError(t, store.SaveSettings(ctx, settings))

	rows, err := engine.Reallocate(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	allocations, err := store.Allocations(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, allocations, academy.Horizon)
}

func TestLedger_IdempotencyKeyOfAnotherPlayer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	engine := newEngine(store)

	ana := addPlayer(t, store, "Ana")
	leo := addPlayer(t, store, "Leo")

	_, err := engine.RegisterPayment(ctx, billing.PaymentInput{PlayerID: ana, Amount: 50000, IdempotencyKey: "rcpt-0002"})
	require.NoError(t, err)

	p, err := engine.RegisterPayment(ctx, billing.PaymentInput{PlayerID: leo, Amount: 50000, IdempotencyKey: "rcpt-0002"})
	assert.Nil(t, p)
	assert.True(t, academy.IsConflict(err))
	assert.NotErrorIs(t, err, academy.ErrDuplicateIdempotencyKey)

	payments, err := store.ListPayments(ctx, academy.PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestLedger_ConcurrentRegistrations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	engine := newEngine(store)

	id := addPlayer(t, store, "Ana")

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RegisterPayment(ctx, billing.PaymentInput{PlayerID: id, Amount: 25000})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	byMonth, err := store.AllocatedByMonth(ctx, id, academy.MonthOf(fixedNow), academy.Horizon)
	require.NoError(t, err)
	require.Len(t, byMonth, 4)
	for m, amount := range byMonth {
		assert.Equal(t, int64(50000), amount, "month %s", m)
	}
}

// =============================================================================
// PAYMENTS, EXPENSES, REPORTS
// =============================================================================

func TestListPayments_Filter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	engine := newEngine(store)

	ana := addPlayer(t, store, "Ana")
	luis := addPlayer(t, store, "Luis")

	for _, in := range []billing.PaymentInput{
		{PlayerID: ana, Amount: 10000, Date: time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)},
		{PlayerID: ana, Amount: 20000, Date: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{PlayerID: luis, Amount: 30000, Date: time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)},
	} {
		_, err := engine.RegisterPayment(ctx, in)
		require.NoError(t, err)
	}

	all, err := store.ListPayments(ctx, academy.PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(30000), all[0].Amount, "newest first")

	march := academy.NewMonth(2025, time.March)
	inMarch, err := store.ListPayments(ctx, academy.PaymentFilter{From: march.Start(), To: march.End()})
	require.NoError(t, err)
	assert.Len(t, inMarch, 2)

	anaOnly, err := store.ListPayments(ctx, academy.PaymentFilter{PlayerID: ana})
	require.NoError(t, err)
	assert.Len(t, anaOnly, 2)
}

func TestExpenses_CRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &academy.Expense{Concept: "Arbitraje", Amount: 80000, Date: fixedNow, Category: "torneos"}
	require.NoError(t, store.CreateExpense(ctx, e))
	assert.NotZero(t, e.ID)

	e.Amount = 90000
	require.NoError(t, store.UpdateExpense(ctx, e))

	list, err := store.ListExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(90000), list[0].Amount)

	require.NoError(t, store.DeleteExpense(ctx, e.ID))
	assert.ErrorIs(t, store.DeleteExpense(ctx, e.ID), academy.ErrNotFound)

	bad := &academy.Expense{Concept: "x", Amount: 0, Date: fixedNow}
	assert.ErrorIs(t, store.CreateExpense(ctx, bad), academy.ErrValidation)
}

func TestFinanceTotals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	engine := newEngine(store)

	ana := addPlayer(t, store, "Ana")
	addPlayer(t, store, "Luis")

	_, err := engine.RegisterPayment(ctx, billing.PaymentInput{PlayerID: ana, Amount: 70000, Date: fixedNow})
	require.NoError(t, err)
	require.NoError(t, store.CreateExpense(ctx, &academy.Expense{Concept: "Balones", Amount: 15000, Date: fixedNow}))
	require.NoError(t, store.CreateExpense(ctx, &academy.Expense{Concept: "Otro mes", Amount: 999, Date: fixedNow.AddDate(0, 1, 0)}))

	totals, err := store.FinanceTotals(ctx, academy.MonthOf(fixedNow))
	require.NoError(t, err)
	assert.Equal(t, int64(70000), totals.Income)
	assert.Equal(t, int64(15000), totals.Expenses)
	assert.Equal(t, int64(50000), totals.Collected)
	assert.Equal(t, 2, totals.Players)
}

// =============================================================================
// INVENTORY & ATTENDANCE
// =============================================================================

func TestRecordMovement_StockNeverNegative(t *testing.T) {
	// GIVEN: 10 balls in stock
	// WHEN: Lending 4, then trying to lend 7
	// THEN: Stock is 6 and the second movement is rejected

	store := newTestStore(t)
	ctx := context.Background()

	item := &academy.InventoryItem{Name: "Balón Fútbol 5", Category: "balones", Stock: 10, MinStock: 5}
	require.NoError(t, store.CreateItem(ctx, item))
	player := addPlayer(t, store, "Ana")

	updated, err := store.RecordMovement(ctx, &academy.InventoryMovement{
		ItemID: item.ID, Type: academy.MovementOut, Quantity: 4, PlayerID: &player,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Stock)

	_, err = store.RecordMovement(ctx, &academy.InventoryMovement{
		ItemID: item.ID, Type: academy.MovementOut, Quantity: 7,
	})
	var stockErr *academy.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Available)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)

	movements, err := store.Movements(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.NotNil(t, movements[0].PlayerID)
	assert.Equal(t, player, *movements[0].PlayerID)

	_, err = store.RecordMovement(ctx, &academy.InventoryMovement{ItemID: 404, Type: academy.MovementIn, Quantity: 1})
	assert.ErrorIs(t, err, academy.ErrNotFound)
}

func TestSaveAttendance_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ana := addPlayer(t, store, "Ana")
	luis := addPlayer(t, store, "Luis")
	day := time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveAttendance(ctx, []academy.Attendance{
		{PlayerID: ana, Date: day, State: academy.Present},
		{PlayerID: luis, Date: day, State: academy.Absent},
	}))
	require.NoError(t, store.SaveAttendance(ctx, []academy.Attendance{
		{PlayerID: luis, Date: day, State: academy.Present},
	}))

	records, err := store.ListAttendance(ctx, day)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, academy.Present, r.State)
	}

	other, err := store.ListAttendance(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, other)

	err = store.SaveAttendance(ctx, []academy.Attendance{{PlayerID: ana, Date: day, State: "X"}})
	assert.ErrorIs(t, err, academy.ErrValidation)
}

func TestReplaceAlerts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceAlerts(ctx, []academy.Alert{
		{ID: "a1", Kind: academy.AlertStock, SubjectID: 1, Message: "Conos bajo mínimo", CreatedAt: fixedNow},
		{ID: "a2", Kind: academy.AlertPayment, SubjectID: 3, Message: "Ana en mora", CreatedAt: fixedNow},
	}))
	require.NoError(t, store.ReplaceAlerts(ctx, []academy.Alert{
		{ID: "a3", Kind: academy.AlertPayment, SubjectID: 4, Message: "Luis pago parcial", CreatedAt: fixedNow},
	}))

	alerts, err := store.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a3", alerts[0].ID)
}
