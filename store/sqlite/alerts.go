package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// ALERT STORE (academy.AlertRepository interface)
// =============================================================================

// ReplaceAlerts swaps the stored alert set in one transaction.
func (s *Store) ReplaceAlerts(ctx context.Context, alerts []academy.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM alerts"); err != nil {
		return err
	}
	for _, a := range alerts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO alerts (id, kind, subject_id, message, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, a.ID, a.Kind, a.SubjectID, a.Message, a.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}
	return tx.Commit()
}

// ListAlerts returns payment alerts before stock alerts, each by subject.
func (s *Store) ListAlerts(ctx context.Context) ([]academy.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, subject_id, message, created_at
		FROM alerts
		ORDER BY kind, subject_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []academy.Alert
	for rows.Next() {
		var a academy.Alert
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Kind, &a.SubjectID, &a.Message, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTimestamp(createdAt)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
