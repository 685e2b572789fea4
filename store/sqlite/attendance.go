package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// ATTENDANCE STORE (academy.AttendanceRepository interface)
// =============================================================================

// ListAttendance returns every record, or only those on date when it is set.
func (s *Store) ListAttendance(ctx context.Context, date time.Time) ([]academy.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, player_id, date, state, updated_at FROM attendance"
	var args []any
	if !date.IsZero() {
		query += " WHERE date = ?"
		args = append(args, formatDate(date))
	}
	query += " ORDER BY date DESC, player_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var records []academy.Attendance
	for rows.Next() {
		var (
			a              academy.Attendance
			day, updatedAt string
		)
		if err := rows.Scan(&a.ID, &a.PlayerID, &day, &a.State, &updatedAt); err != nil {
			return nil, err
		}
		a.Date = parseDate(day)
		a.UpdatedAt = parseTimestamp(updatedAt)
		records = append(records, a)
	}
	return records, rows.Err()
}

// SaveAttendance upserts every record on (player, date) in one transaction.
func (s *Store) SaveAttendance(ctx context.Context, records []academy.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance (player_id, date, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(player_id, date) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	updatedAt := now()
	for i, r := range records {
		if !r.State.Valid() {
			return academy.Invalid(fmt.Sprintf("records[%d].state", i), "must be %q or %q", academy.Present, academy.Absent)
		}
		if _, err := stmt.ExecContext(ctx, r.PlayerID, formatDate(r.Date), r.State, updatedAt); err != nil {
			if isForeignKeyError(err) {
				return academy.Invalid(fmt.Sprintf("records[%d].player_id", i), "player %d not found", r.PlayerID)
			}
			return fmt.Errorf("failed to save attendance: %w", err)
		}
	}
	return tx.Commit()
}
