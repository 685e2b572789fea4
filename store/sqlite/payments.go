package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// PAYMENT HISTORY (academy.PaymentRepository interface)
// =============================================================================

// ListPayments returns payments matching filter, newest first.
func (s *Store) ListPayments(ctx context.Context, filter academy.PaymentFilter) ([]academy.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.PlayerID != 0 {
		where = append(where, "player_id = ?")
		args = append(args, filter.PlayerID)
	}
	if !filter.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatDate(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "date < ?")
		args = append(args, formatDate(filter.To))
	}

	query := "SELECT " + paymentColumns + " FROM payments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []academy.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// Allocations returns the rows written for a payment in month order.
// Rows of a deleted payment are still returned.
func (s *Store) Allocations(ctx context.Context, id academy.PaymentID) ([]academy.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_id, year, month, amount, created_at
		FROM payment_allocations
		WHERE payment_id = ?
		ORDER BY year, month
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []academy.Allocation
	for rows.Next() {
		var (
			a           academy.Allocation
			year, month int
			createdAt   string
		)
		if err := rows.Scan(&a.ID, &a.PaymentID, &year, &month, &a.Amount, &createdAt); err != nil {
			return nil, err
		}
		a.Month = academy.NewMonth(year, time.Month(month))
		a.CreatedAt = parseTimestamp(createdAt)
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}
