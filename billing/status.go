package billing

import (
	"context"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// STATUS EVALUATOR
// =============================================================================

// PlayerStatus computes the current-month standing of a player.
//
// An unregistered player is not an error: the record carries
// StatusUnknown, zero amounts, the configured fee and no dates.
func (e *Engine) PlayerStatus(ctx context.Context, player academy.PlayerID) (academy.StatusRecord, error) {
	fee, err := e.fees.MonthlyFee(ctx)
	if err != nil {
		return academy.StatusRecord{}, err
	}
	month := e.CurrentMonth()

	if rec, ok := e.cache.Get(player, month, fee); ok {
		return rec, nil
	}
	gen := e.cache.Generation(player)

	exists, err := e.store.PlayerExists(ctx, player)
	if err != nil {
		return academy.StatusRecord{}, err
	}
	if !exists {
		return academy.StatusRecord{
			PlayerID: player,
			Status:   academy.StatusUnknown,
			Fee:      fee,
		}, nil
	}

	byMonth, err := e.store.AllocatedByMonth(ctx, player, month, academy.Horizon)
	if err != nil {
		return academy.StatusRecord{}, err
	}
	last, err := e.store.LastPaymentDate(ctx, player)
	if err != nil {
		return academy.StatusRecord{}, err
	}

	paid := byMonth[month]
	rec := academy.StatusRecord{
		PlayerID:        player,
		Status:          Classify(fee, paid),
		PaidThisMonth:   paid,
		Debt:            max(0, fee-paid),
		Fee:             fee,
		LastPaymentDate: last,
	}
	if due, ok := NextDueMonth(fee, byMonth, month); ok {
		d := due.DueDate()
		rec.NextDueDate = &d
	}

	e.cache.Put(player, gen, cachedStatus{record: rec, month: month, fee: fee})
	return rec, nil
}

// Statuses evaluates several players, keyed by id.
func (e *Engine) Statuses(ctx context.Context, players []academy.PlayerID) (map[academy.PlayerID]academy.StatusRecord, error) {
	out := make(map[academy.PlayerID]academy.StatusRecord, len(players))
	for _, id := range players {
		rec, err := e.PlayerStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	return out, nil
}

// Classify maps the amount paid toward a month onto a status.
func Classify(fee, paid int64) academy.PaymentStatus {
	switch {
	case paid >= fee:
		return academy.StatusPaid
	case paid > 0:
		return academy.StatusPartial
	default:
		return academy.StatusDebt
	}
}

// NextDueMonth returns the first month in [start, start+Horizon) whose
// allocations fall short of fee. ok is false when every month is covered.
func NextDueMonth(fee int64, byMonth map[academy.Month]int64, start academy.Month) (academy.Month, bool) {
	for i := 0; i < academy.Horizon; i++ {
		m := start.Add(i)
		if byMonth[m] < fee {
			return m, true
		}
	}
	return academy.Month{}, false
}
