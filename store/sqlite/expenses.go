package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// EXPENSE STORE (academy.ExpenseRepository interface)
// =============================================================================

func (s *Store) ListExpenses(ctx context.Context) ([]academy.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, concept, amount, date, category, notes, created_at
		FROM expenses
		ORDER BY date DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []academy.Expense
	for rows.Next() {
		var (
			e               academy.Expense
			date, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Concept, &e.Amount, &date, &e.Category, &e.Notes, &createdAt); err != nil {
			return nil, err
		}
		e.Date = parseDate(date)
		e.CreatedAt = parseTimestamp(createdAt)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, e *academy.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (concept, amount, date, category, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Concept, e.Amount, formatDate(e.Date), e.Category, e.Notes, createdAt.Format(time.RFC3339))
	if err != nil {
		if isCheckConstraintError(err) {
			return academy.Invalid("amount", "must be positive")
		}
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	e.CreatedAt = createdAt
	return nil
}

func (s *Store) UpdateExpense(ctx context.Context, e *academy.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET concept = ?, amount = ?, date = ?, category = ?, notes = ?
		WHERE id = ?
	`, e.Concept, e.Amount, formatDate(e.Date), e.Category, e.Notes, e.ID)
	if err != nil {
		if isCheckConstraintError(err) {
			return academy.Invalid("amount", "must be positive")
		}
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academy.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academy.ErrNotFound
	}
	return nil
}
