/*
Package sqlite provides a SQLite-backed implementation of the academy stores.

PURPOSE:
  Implements every repository interface in academy/store.go plus the
  billing engine's TxLedgerStore and FeeProvider on a single database.

INTERFACES IMPLEMENTED:
  academy.TxLedgerStore:        Payments + allocations (billing engine)
  academy.FeeProvider:          Monthly fee from the settings row
  academy.PlayerRepository:     Players, guardians, categories
  academy.PaymentRepository:    Payment listing, allocation history
  academy.ExpenseRepository:    Expenses
  academy.InventoryRepository:  Items and stock movements
  academy.AttendanceRepository: Attendance upserts
  academy.SettingsRepository:   Settings row
  academy.AlertRepository:      Sweep output
  academy.ReportRepository:     Monthly finance totals

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on payments or payment_allocations
  - No DELETE on payment_allocations; payment deletion leaves orphans
  - Every allocation sum joins through payments so orphans never count

KEY TABLES:
  payments:            One row per received payment (idempotency_key UNIQUE)
  payment_allocations: Part of a payment applied to one (year, month)
  players / guardians: Roster; guardians deduplicated by phone
  settings:            Single row (id = 1) holding the monthly fee

INDEXES:
  - idx_allocations_unique: (payment_id, year, month), one row per month
  - idx_payments_player_date: status and history lookups (hot path)
  - idx_attendance_unique: (player_id, date) upsert target

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction, so registrations are serialized at the store as well as
  per player in the billing engine.

WAL MODE:
  File databases are opened with WAL; ":memory:" databases are pinned to one
  connection because each connection would otherwise see its own database.

USAGE:
  store, err := sqlite.New("./data/academy.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := billing.NewEngine(store, store)

SEE ALSO:
  - academy/store.go: Interface definitions
  - academy/store/memory.go: In-memory ledger for engine tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/efusa/academy/academy"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	defaults academy.Settings
}

var (
	_ academy.TxLedgerStore        = (*Store)(nil)
	_ academy.FeeProvider          = (*Store)(nil)
	_ academy.PlayerRepository     = (*Store)(nil)
	_ academy.PaymentRepository    = (*Store)(nil)
	_ academy.ExpenseRepository    = (*Store)(nil)
	_ academy.InventoryRepository  = (*Store)(nil)
	_ academy.AttendanceRepository = (*Store)(nil)
	_ academy.SettingsRepository   = (*Store)(nil)
	_ academy.AlertRepository      = (*Store)(nil)
	_ academy.ReportRepository     = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return NewWithDefaults(dbPath, academy.DefaultSettings())
}

// NewWithDefaults is New with the settings used when the settings row is
// missing (first start, after Reset).
func NewWithDefaults(dbPath string, defaults academy.Settings) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, defaults: defaults}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.seed(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Settings (single row)
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		school_name TEXT NOT NULL,
		monthly_fee INTEGER NOT NULL CHECK (monthly_fee >= 0),
		currency TEXT NOT NULL,
		contact_phone TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	-- Categories (age ranges)
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		min_age INTEGER NOT NULL,
		max_age INTEGER NOT NULL
	);

	-- Guardians, deduplicated by phone
	CREATE TABLE IF NOT EXISTS guardians (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_names TEXT NOT NULL,
		last_names TEXT NOT NULL,
		birth_date TEXT NOT NULL,
		blood_type TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
		guardian_id INTEGER REFERENCES guardians(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_players_category
		ON players(category_id);

	-- Payments (immutable; deleting a player with payments is rejected)
	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL REFERENCES players(id),
		amount INTEGER NOT NULL CHECK (amount > 0),
		date TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_player_date
		ON payments(player_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_payments_date
		ON payments(date);

	-- Allocations (append-only, no FK so rows outlive a deleted payment)
	CREATE TABLE IF NOT EXISTS payment_allocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payment_id INTEGER NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		amount INTEGER NOT NULL CHECK (amount > 0),
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one allocation per payment per month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_allocations_unique
		ON payment_allocations(payment_id, year, month);
	CREATE INDEX IF NOT EXISTS idx_allocations_month
		ON payment_allocations(year, month);

	CREATE TABLE IF NOT EXISTS expenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		concept TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		date TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_date
		ON expenses(date);

	CREATE TABLE IF NOT EXISTS inventory_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		min_stock INTEGER NOT NULL DEFAULT 0 CHECK (min_stock >= 0),
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS inventory_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES inventory_items(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('in', 'out')),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		player_id INTEGER REFERENCES players(id) ON DELETE SET NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_item
		ON inventory_movements(item_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS attendance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL REFERENCES players(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		state TEXT NOT NULL CHECK (state IN ('P', 'A')),
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_unique
		ON attendance(player_id, date);

	-- Alerts (replaced wholesale by each sweep)
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		subject_id INTEGER NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// seed inserts the default categories. Existing rows are left alone.
func (s *Store) seed(ctx context.Context) error {
	for _, c := range academy.DefaultCategories {
		_, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO categories (name, min_age, max_age) VALUES (?, ?, ?)",
			c.Name, c.MinAge, c.MaxAge,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data and reseeds categories (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"alerts", "attendance", "inventory_movements", "inventory_items",
		"expenses", "payment_allocations", "payments", "players",
		"guardians", "categories", "settings",
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.seed(ctx)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Helper functions

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(academy.DateLayout)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(academy.DateLayout, s)
	return t
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func constraintCode(err error) (sqlite3.ErrNoExtended, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return se.ExtendedCode, true
	}
	return 0, false
}

func isUniqueConstraintError(err error) bool {
	code, ok := constraintCode(err)
	return ok && (code == sqlite3.ErrConstraintUnique || code == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	code, ok := constraintCode(err)
	return ok && code == sqlite3.ErrConstraintForeignKey
}

func isCheckConstraintError(err error) bool {
	code, ok := constraintCode(err)
	return ok && code == sqlite3.ErrConstraintCheck
}
