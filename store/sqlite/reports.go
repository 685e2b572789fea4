package sqlite

import (
	"context"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// REPORTS (academy.ReportRepository interface)
// =============================================================================

// FinanceTotals aggregates one month of money movement.
//
//	Income:    payments dated in the month
//	Expenses:  expenses dated in the month
//	Collected: allocations applied to the month (live payments only)
//	Players:   registered players
func (s *Store) FinanceTotals(ctx context.Context, month academy.Month) (academy.FinanceTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := formatDate(month.Start()), formatDate(month.End())
	totals := academy.FinanceTotals{Month: month}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(amount), 0) FROM payments WHERE date >= ? AND date < ?),
			(SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE date >= ? AND date < ?),
			(SELECT COALESCE(SUM(a.amount), 0)
			   FROM payment_allocations a
			   JOIN payments p ON p.id = a.payment_id
			  WHERE a.year = ? AND a.month = ?),
			(SELECT COUNT(*) FROM players)
	`,
		from, to,
		from, to,
		month.Year, int(month.Month),
	).Scan(&totals.Income, &totals.Expenses, &totals.Collected, &totals.Players)
	if err != nil {
		return academy.FinanceTotals{}, err
	}
	return totals, nil
}
