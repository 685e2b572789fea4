package billing

import (
	"context"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// FEE CALENDAR
// =============================================================================

// NeededForMonth returns fee minus what is already applied to month for the
// player. A month allocated above the current fee (after a fee cut) yields a
// negative value; callers clamp.
func (e *Engine) NeededForMonth(ctx context.Context, player academy.PlayerID, month academy.Month) (int64, error) {
	fee, err := e.fees.MonthlyFee(ctx)
	if err != nil {
		return 0, err
	}
	return neededForMonth(ctx, e.store, fee, player, month)
}

func neededForMonth(ctx context.Context, s academy.LedgerStore, fee int64, player academy.PlayerID, month academy.Month) (int64, error) {
	allocated, err := s.SumAllocated(ctx, player, month)
	if err != nil {
		return 0, err
	}
	return fee - allocated, nil
}
