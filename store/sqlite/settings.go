package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// SETTINGS STORE (academy.SettingsRepository, academy.FeeProvider)
// =============================================================================

// GetSettings returns the stored row, or the store defaults when none exists.
func (s *Store) GetSettings(ctx context.Context) (academy.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st academy.Settings
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT school_name, monthly_fee, currency, contact_phone, updated_at
		FROM settings WHERE id = 1
	`).Scan(&st.SchoolName, &st.MonthlyFee, &st.Currency, &st.ContactPhone, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaults, nil
	}
	if err != nil {
		return academy.Settings{}, err
	}
	st.UpdatedAt = parseTimestamp(updatedAt)
	return st, nil
}

// SaveSettings writes the single settings row.
func (s *Store) SaveSettings(ctx context.Context, st academy.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, school_name, monthly_fee, currency, contact_phone, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			school_name = excluded.school_name,
			monthly_fee = excluded.monthly_fee,
			currency = excluded.currency,
			contact_phone = excluded.contact_phone,
			updated_at = excluded.updated_at
	`, st.SchoolName, st.MonthlyFee, st.Currency, st.ContactPhone, time.Now().UTC().Format(time.RFC3339))
	if isCheckConstraintError(err) {
		return academy.Invalid("monthly_fee", "must not be negative")
	}
	return err
}

// MonthlyFee reads the fee from the settings row.
func (s *Store) MonthlyFee(ctx context.Context) (int64, error) {
	st, err := s.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	return st.MonthlyFee, nil
}
