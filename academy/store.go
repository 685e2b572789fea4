/*
store.go - Persistence interfaces for the academy

PURPOSE:
  Defines the interface between the domain logic and the database.
  Each entity kind gets its own small typed repository instead of one
  string-keyed "table" API.

KEY INTERFACES:
  LedgerStore:          What the billing engine needs (payments + allocations)
  TxLedgerStore:        LedgerStore with atomic multi-write support
  FeeProvider:          The single monthly fee value
  PlayerRepository:     Players, guardians, categories
  PaymentRepository:    Payment listing and allocation history
  ExpenseRepository:    Expense CRUD
  InventoryRepository:  Items and stock movements
  AttendanceRepository: Attendance upserts and listing
  SettingsRepository:   The settings row
  AlertRepository:      Sweep output
  ReportRepository:     Monthly aggregates

APPEND-ONLY CONTRACT:
  Payments and allocations have no Update method. Allocations have no
  Delete either; deleting a payment leaves its allocation rows behind and
  every sum joins through payments, so orphans never count.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - academy/store: In-memory LedgerStore for testing

SEE ALSO:
  - billing/engine.go: Consumer of LedgerStore
  - api/server.go: Consumer of the repositories
*/
package academy

import (
	"context"
	"time"
)

// =============================================================================
// LEDGER STORE - Payments and allocations
// =============================================================================

// LedgerStore is the record store behind fee allocation.
type LedgerStore interface {
	// PlayerExists reports whether the player is registered.
	PlayerExists(ctx context.Context, id PlayerID) (bool, error)

	// CreatePayment persists p and fills in ID and CreatedAt.
	// Returns ErrDuplicateIdempotencyKey if the key is already used.
	CreatePayment(ctx context.Context, p *Payment) error

	// GetPayment returns nil, nil when the payment does not exist.
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)

	// PaymentByIdempotencyKey returns nil, nil when no payment has the key.
	PaymentByIdempotencyKey(ctx context.Context, key string) (*Payment, error)

	// DeletePayment removes the payment row only.
	DeletePayment(ctx context.Context, id PaymentID) error

	// CreateAllocation persists a and fills in ID and CreatedAt.
	// Returns ErrDuplicateAllocation for a repeated (payment, month).
	CreateAllocation(ctx context.Context, a *Allocation) error

	// SumAllocated totals allocations applied to month for the player.
	SumAllocated(ctx context.Context, player PlayerID, month Month) (int64, error)

	// AllocatedByMonth totals allocations for the player over
	// [from, from+months), keyed by month. Months without allocations are absent.
	AllocatedByMonth(ctx context.Context, player PlayerID, from Month, months int) (map[Month]int64, error)

	// AllocatedForPayment totals the allocations already made from a payment.
	AllocatedForPayment(ctx context.Context, id PaymentID) (int64, error)

	// LastPaymentDate returns the latest payment date, or nil when none exist.
	LastPaymentDate(ctx context.Context, player PlayerID) (*time.Time, error)
}

// TxLedgerStore wraps LedgerStore with transaction support.
type TxLedgerStore interface {
	LedgerStore

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(LedgerStore) error) error
}

// FeeProvider supplies the current monthly fee.
type FeeProvider interface {
	MonthlyFee(ctx context.Context) (int64, error)
}

// =============================================================================
// ENTITY REPOSITORIES
// =============================================================================

type PlayerRepository interface {
	ListPlayers(ctx context.Context) ([]Player, error)
	GetPlayer(ctx context.Context, id PlayerID) (*Player, error)

	// CreatePlayer inserts p, linking guardian (upserted by phone) when non-nil.
	CreatePlayer(ctx context.Context, p *Player, guardian *Guardian) error

	// UpdatePlayer rewrites the mutable fields of p. BirthDate is not touched.
	UpdatePlayer(ctx context.Context, p *Player, guardian *Guardian) error

	// DeletePlayer returns ErrConflict while payments reference the player.
	DeletePlayer(ctx context.Context, id PlayerID) error

	SetPlayerCategory(ctx context.Context, id PlayerID, categoryID *int64) error

	ListGuardians(ctx context.Context) ([]Guardian, error)

	// UpsertGuardian returns the guardian owning phone, creating it if needed.
	UpsertGuardian(ctx context.Context, name, phone string) (*Guardian, error)

	ListCategories(ctx context.Context) ([]Category, error)
}

// PaymentFilter narrows payment listings. Zero values mean "any".
type PaymentFilter struct {
	PlayerID PlayerID
	From     time.Time
	To       time.Time // exclusive
}

type PaymentRepository interface {
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	Allocations(ctx context.Context, id PaymentID) ([]Allocation, error)
}

type ExpenseRepository interface {
	ListExpenses(ctx context.Context) ([]Expense, error)
	CreateExpense(ctx context.Context, e *Expense) error
	UpdateExpense(ctx context.Context, e *Expense) error
	DeleteExpense(ctx context.Context, id int64) error
}

type InventoryRepository interface {
	ListItems(ctx context.Context) ([]InventoryItem, error)
	GetItem(ctx context.Context, id int64) (*InventoryItem, error)
	CreateItem(ctx context.Context, item *InventoryItem) error
	SetStock(ctx context.Context, id int64, stock int) error

	// RecordMovement applies m to the item's stock and stores it atomically.
	// Returns *InsufficientStockError when an outgoing movement exceeds stock.
	RecordMovement(ctx context.Context, m *InventoryMovement) (*InventoryItem, error)
	Movements(ctx context.Context, itemID int64) ([]InventoryMovement, error)
}

type AttendanceRepository interface {
	// ListAttendance returns all records, or only those on date when non-zero.
	ListAttendance(ctx context.Context, date time.Time) ([]Attendance, error)

	// SaveAttendance upserts every record on (PlayerID, Date) atomically.
	SaveAttendance(ctx context.Context, records []Attendance) error
}

type SettingsRepository interface {
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

type AlertRepository interface {
	// ReplaceAlerts swaps the current alert set for alerts atomically.
	ReplaceAlerts(ctx context.Context, alerts []Alert) error
	ListAlerts(ctx context.Context) ([]Alert, error)
}

type ReportRepository interface {
	FinanceTotals(ctx context.Context, month Month) (FinanceTotals, error)
}
