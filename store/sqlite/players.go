package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// PLAYER STORE (academy.PlayerRepository interface)
// =============================================================================

const playerColumns = `id, first_names, last_names, birth_date, blood_type, phone,
	category_id, guardian_id, created_at`

// ListPlayers returns all players ordered by name.
func (s *Store) ListPlayers(ctx context.Context) ([]academy.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+playerColumns+" FROM players ORDER BY last_names, first_names, id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	var players []academy.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// GetPlayer returns nil, nil when the player does not exist.
func (s *Store) GetPlayer(ctx context.Context, id academy.PlayerID) (*academy.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanPlayer(s.db.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlayer inserts p. A guardian with a phone is upserted first and
// linked through p.GuardianID.
func (s *Store) CreatePlayer(ctx context.Context, p *academy.Player, guardian *academy.Guardian) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := linkGuardian(ctx, tx, p, guardian); err != nil {
		return err
	}

	createdAt := time.Now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO players (first_names, last_names, birth_date, blood_type, phone,
			category_id, guardian_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.FirstNames, p.LastNames, formatDate(p.BirthDate), p.BloodType, p.Phone,
		nullInt64(p.CategoryID), nullInt64(p.GuardianID),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return academy.Invalid("category_id", "unknown category")
		}
		return fmt.Errorf("failed to insert player: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.ID = academy.PlayerID(id)
	p.CreatedAt = createdAt
	return nil
}

// UpdatePlayer rewrites the mutable fields. The birth date is kept as stored.
func (s *Store) UpdatePlayer(ctx context.Context, p *academy.Player, guardian *academy.Guardian) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := linkGuardian(ctx, tx, p, guardian); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE players SET
			first_names = ?,
			last_names = ?,
			blood_type = ?,
			phone = ?,
			category_id = ?,
			guardian_id = ?
		WHERE id = ?
	`,
		p.FirstNames, p.LastNames, p.BloodType, p.Phone,
		nullInt64(p.CategoryID), nullInt64(p.GuardianID), p.ID,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return academy.Invalid("category_id", "unknown category")
		}
		return fmt.Errorf("failed to update player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academy.ErrNotFound
	}
	return tx.Commit()
}

// DeletePlayer removes a player without payments.
func (s *Store) DeletePlayer(ctx context.Context, id academy.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM players WHERE id = ?", id)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("player %d has payments: %w", id, academy.ErrConflict)
		}
		return fmt.Errorf("failed to delete player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academy.ErrNotFound
	}
	return nil
}

// SetPlayerCategory stores a recomputed category (nil clears it).
func (s *Store) SetPlayerCategory(ctx context.Context, id academy.PlayerID, categoryID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE players SET category_id = ? WHERE id = ?",
		nullInt64(categoryID), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academy.ErrNotFound
	}
	return nil
}

func scanPlayer(row scanner) (academy.Player, error) {
	var (
		p          academy.Player
		birthDate  string
		categoryID sql.NullInt64
		guardianID sql.NullInt64
		createdAt  string
	)
	err := row.Scan(
		&p.ID, &p.FirstNames, &p.LastNames, &birthDate, &p.BloodType, &p.Phone,
		&categoryID, &guardianID, &createdAt,
	)
	if err != nil {
		return p, err
	}
	p.BirthDate = parseDate(birthDate)
	p.CategoryID = int64Ptr(categoryID)
	p.GuardianID = int64Ptr(guardianID)
	p.CreatedAt = parseTimestamp(createdAt)
	return p, nil
}

// =============================================================================
// GUARDIANS
// =============================================================================

// ListGuardians returns all guardians ordered by name.
func (s *Store) ListGuardians(ctx context.Context) ([]academy.Guardian, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, phone, created_at FROM guardians ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guardians []academy.Guardian
	for rows.Next() {
		var g academy.Guardian
		var createdAt string
		if err := rows.Scan(&g.ID, &g.Name, &g.Phone, &createdAt); err != nil {
			return nil, err
		}
		g.CreatedAt = parseTimestamp(createdAt)
		guardians = append(guardians, g)
	}
	return guardians, rows.Err()
}

// UpsertGuardian returns the guardian owning phone, creating it when absent.
// The first registered name wins.
func (s *Store) UpsertGuardian(ctx context.Context, name, phone string) (*academy.Guardian, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertGuardian(ctx, s.db, name, phone)
}

func upsertGuardian(ctx context.Context, q querier, name, phone string) (*academy.Guardian, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, academy.Invalid("guardian_phone", "is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = phone
	}

	// On conflict the existing row comes back unchanged.
	var g academy.Guardian
	var createdAt string
	err := q.QueryRowContext(ctx, `
		INSERT INTO guardians (name, phone, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET phone = guardians.phone
		RETURNING id, name, phone, created_at
	`, name, phone, now()).Scan(&g.ID, &g.Name, &g.Phone, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert guardian: %w", err)
	}
	g.CreatedAt = parseTimestamp(createdAt)
	return &g, nil
}

func linkGuardian(ctx context.Context, q querier, p *academy.Player, guardian *academy.Guardian) error {
	if guardian == nil || strings.TrimSpace(guardian.Phone) == "" {
		return nil
	}
	g, err := upsertGuardian(ctx, q, guardian.Name, guardian.Phone)
	if err != nil {
		return err
	}
	*guardian = *g
	p.GuardianID = &g.ID
	return nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

// ListCategories returns categories ordered by minimum age.
func (s *Store) ListCategories(ctx context.Context) ([]academy.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, min_age, max_age FROM categories ORDER BY min_age, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []academy.Category
	for rows.Next() {
		var c academy.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.MinAge, &c.MaxAge); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
