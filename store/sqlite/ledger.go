package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// LEDGER STORE (academy.LedgerStore interface)
// =============================================================================

// ledger runs the ledger queries against a db or a tx. It takes no locks;
// Store methods lock before delegating, WithTx holds the lock throughout.
type ledger struct {
	q querier
}

func (s *Store) PlayerExists(ctx context.Context, id academy.PlayerID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger{s.db}.PlayerExists(ctx, id)
}

func (s *Store) CreatePayment(ctx context.Context, p *academy.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ledger{s.db}.CreatePayment(ctx, p)
}

func (s *Store) GetPayment(ctx context.Context, id academy.PaymentID) (*academy.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger{s.db}.GetPayment(ctx, id)
}

func (s *Store) PaymentByIdempotencyKey(ctx context.Context, key string) (*academy.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger{s.db}.PaymentByIdempotencyKey(ctx, key)
}

func (s *Store) DeletePayment(ctx context.Context, id academy.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ledger{s.db}.DeletePayment(ctx, id)
}

func (s *Store) CreateAllocation(ctx context.Context, a *academy.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ledger{s.db}.CreateAllocation(ctx, a)
}

func (s *Store) SumAllocated(ctx context.Context, player academy.PlayerID, month academy.Month) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger{s.db}.SumAllocated(ctx, player, month)
}

func (s *Store) AllocatedByMonth(ctx context.Context, player academy.PlayerID, from academy.Month, months int) (map[academy.Month]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger{s.db}.AllocatedByMonth(ctx, player, from, months)
}

func (s *Store) AllocatedForPayment(ctx context.Context, id academy.PaymentID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger{s.db}.AllocatedForPayment(ctx, id)
}

func (s *Store) LastPaymentDate(ctx context.Context, player academy.PlayerID) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger{s.db}.LastPaymentDate(ctx, player)
}

// =============================================================================
// TRANSACTIONAL STORE (academy.TxLedgerStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store academy.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ledger{sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// QUERIES
// =============================================================================

const paymentColumns = "id, player_id, amount, date, method, notes, idempotency_key, created_at"

func (l ledger) PlayerExists(ctx context.Context, id academy.PlayerID) (bool, error) {
	var count int
	err := l.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM players WHERE id = ?", id).Scan(&count)
	return count > 0, err
}

func (l ledger) CreatePayment(ctx context.Context, p *academy.Payment) error {
	createdAt := time.Now().UTC().Truncate(time.Second)

	res, err := l.q.ExecContext(ctx, `
		INSERT INTO payments (player_id, amount, date, method, notes, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		p.PlayerID,
		p.Amount,
		formatDate(p.Date),
		p.Method,
		p.Notes,
		nullString(p.IdempotencyKey),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return academy.ErrDuplicateIdempotencyKey
		case isForeignKeyError(err):
			return academy.Invalid("player_id", "player %d not found", p.PlayerID)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = academy.PaymentID(id)
	p.CreatedAt = createdAt
	return nil
}

func (l ledger) GetPayment(ctx context.Context, id academy.PaymentID) (*academy.Payment, error) {
	row := l.q.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	return scanPaymentRow(row)
}

func (l ledger) PaymentByIdempotencyKey(ctx context.Context, key string) (*academy.Payment, error) {
	if key == "" {
		return nil, nil
	}
	row := l.q.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE idempotency_key = ?", key)
	return scanPaymentRow(row)
}

func (l ledger) DeletePayment(ctx context.Context, id academy.PaymentID) error {
	res, err := l.q.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academy.ErrNotFound
	}
	return nil
}

func (l ledger) CreateAllocation(ctx context.Context, a *academy.Allocation) error {
	createdAt := time.Now().UTC().Truncate(time.Second)

	res, err := l.q.ExecContext(ctx, `
		INSERT INTO payment_allocations (payment_id, year, month, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		a.PaymentID,
		a.Month.Year,
		int(a.Month.Month),
		a.Amount,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return academy.ErrDuplicateAllocation
		}
		return fmt.Errorf("failed to insert allocation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	a.CreatedAt = createdAt
	return nil
}

func (l ledger) SumAllocated(ctx context.Context, player academy.PlayerID, month academy.Month) (int64, error) {
	var sum int64
	err := l.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(a.amount), 0)
		FROM payment_allocations a
		JOIN payments p ON p.id = a.payment_id
		WHERE p.player_id = ? AND a.year = ? AND a.month = ?
	`, player, month.Year, int(month.Month)).Scan(&sum)
	return sum, err
}

func (l ledger) AllocatedByMonth(ctx context.Context, player academy.PlayerID, from academy.Month, months int) (map[academy.Month]int64, error) {
	to := from.Add(months)

	// year*12 + month orders months across year boundaries
	rows, err := l.q.QueryContext(ctx, `
		SELECT a.year, a.month, SUM(a.amount)
		FROM payment_allocations a
		JOIN payments p ON p.id = a.payment_id
		WHERE p.player_id = ?
		  AND a.year * 12 + a.month >= ?
		  AND a.year * 12 + a.month < ?
		GROUP BY a.year, a.month
	`, player, from.Year*12+int(from.Month), to.Year*12+int(to.Month))
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	out := make(map[academy.Month]int64)
	for rows.Next() {
		var year, month int
		var sum int64
		if err := rows.Scan(&year, &month, &sum); err != nil {
			return nil, err
		}
		out[academy.NewMonth(year, time.Month(month))] = sum
	}
	return out, rows.Err()
}

func (l ledger) AllocatedForPayment(ctx context.Context, id academy.PaymentID) (int64, error) {
	var sum int64
	err := l.q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE payment_id = ?",
		id,
	).Scan(&sum)
	return sum, err
}

func (l ledger) LastPaymentDate(ctx context.Context, player academy.PlayerID) (*time.Time, error) {
	var date sql.NullString
	err := l.q.QueryRowContext(ctx,
		"SELECT MAX(date) FROM payments WHERE player_id = ?",
		player,
	).Scan(&date)
	if err != nil {
		return nil, err
	}
	if !date.Valid {
		return nil, nil
	}
	t := parseDate(date.String)
	return &t, nil
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanPaymentRow(row *sql.Row) (*academy.Payment, error) {
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPayment(row scanner) (academy.Payment, error) {
	var (
		p              academy.Payment
		date           string
		idempotencyKey sql.NullString
		createdAt      string
	)
	err := row.Scan(
		&p.ID, &p.PlayerID, &p.Amount, &date,
		&p.Method, &p.Notes, &idempotencyKey, &createdAt,
	)
	if err != nil {
		return p, err
	}
	p.Date = parseDate(date)
	p.IdempotencyKey = idempotencyKey.String
	p.CreatedAt = parseTimestamp(createdAt)
	return p, nil
}
