/*
Package academy provides the domain model of the academy manager.

PURPOSE:
  Holds the entities tracked by the academy (players, guardians, payments,
  fee allocations, expenses, inventory, attendance) together with the month
  calendar, the error taxonomy and the repository interfaces that storage
  implementations satisfy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Payment: a lump amount received for a player (immutable once written)
  - Allocation: the part of a payment applied to one (year, month) fee
  - StatusRecord: the derived paid/partial/debt view of a player's month
  - Settings: the single configuration row (monthly fee, currency, name)

DESIGN PRINCIPLES:
  1. Immutability: payments and allocations are never updated
  2. Whole units: every money amount is an int64 with no minor unit
  3. Type safety: PlayerID / PaymentID keep identifiers from being mixed

SEE ALSO:
  - month.go: Month arithmetic and the allocation horizon
  - store.go: Repository interfaces
  - errors.go: Sentinel and structured errors
*/
package academy

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PlayerID int64
type PaymentID int64

// =============================================================================
// PEOPLE
// =============================================================================

// Player is a registered member of the academy.
// BirthDate never changes after creation; CategoryID is derived from age.
type Player struct {
	ID         PlayerID
	FirstNames string
	LastNames  string
	BirthDate  time.Time
	BloodType  string
	Phone      string
	CategoryID *int64
	GuardianID *int64
	CreatedAt  time.Time
}

// FullName joins first and last names.
func (p Player) FullName() string {
	if p.LastNames == "" {
		return p.FirstNames
	}
	return p.FirstNames + " " + p.LastNames
}

// Guardian is the adult responsible for one or more players.
// Phone is the natural key: the first name registered for a phone wins.
type Guardian struct {
	ID        int64
	Name      string
	Phone     string
	CreatedAt time.Time
}

// Category groups players by age range (inclusive bounds).
type Category struct {
	ID     int64
	Name   string
	MinAge int
	MaxAge int
}

// =============================================================================
// MONEY
// =============================================================================

// Payment is a lump amount received for a player.
type Payment struct {
	ID             PaymentID
	PlayerID       PlayerID
	Amount         int64
	Date           time.Time
	Method         string
	Notes          string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Allocation links part of a payment to one month's fee.
// At most one allocation exists per (PaymentID, Month).
type Allocation struct {
	ID        int64
	PaymentID PaymentID
	Month     Month
	Amount    int64
	CreatedAt time.Time
}

// Expense is money spent by the academy.
type Expense struct {
	ID        int64
	Concept   string
	Amount    int64
	Date      time.Time
	Category  string
	Notes     string
	CreatedAt time.Time
}

// Settings is the single configuration row of the academy.
type Settings struct {
	SchoolName   string
	MonthlyFee   int64
	Currency     string
	ContactPhone string
	UpdatedAt    time.Time
}

// DefaultSettings mirrors the values a fresh installation starts with.
func DefaultSettings() Settings {
	return Settings{
		SchoolName: "Academia de Fútbol",
		MonthlyFee: 50000,
		Currency:   "COP",
	}
}

// =============================================================================
// PAYMENT STATUS
// =============================================================================

type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusPartial PaymentStatus = "partial"
	StatusDebt    PaymentStatus = "debt"
	StatusUnknown PaymentStatus = "unknown" // player does not exist
)

// StatusRecord is the derived payment view of a player for the current month.
type StatusRecord struct {
	PlayerID        PlayerID
	Status          PaymentStatus
	PaidThisMonth   int64
	Debt            int64
	Fee             int64
	NextDueDate     *time.Time
	LastPaymentDate *time.Time
}

// =============================================================================
// INVENTORY
// =============================================================================

type InventoryItem struct {
	ID        int64
	Name      string
	Category  string
	Stock     int
	MinStock  int
	CreatedAt time.Time
}

// LowStock reports whether the item is at or below its minimum.
func (i InventoryItem) LowStock() bool { return i.Stock <= i.MinStock }

type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

type InventoryMovement struct {
	ID        int64
	ItemID    int64
	Type      MovementType
	Quantity  int
	PlayerID  *PlayerID
	Notes     string
	CreatedAt time.Time
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceState string

const (
	Present AttendanceState = "P"
	Absent  AttendanceState = "A"
)

// Valid reports whether s is one of the known states.
func (s AttendanceState) Valid() bool { return s == Present || s == Absent }

// Attendance records whether a player attended on a date.
// At most one record exists per (PlayerID, Date).
type Attendance struct {
	ID        int64
	PlayerID  PlayerID
	Date      time.Time
	State     AttendanceState
	UpdatedAt time.Time
}

// =============================================================================
// ALERTS
// =============================================================================

type AlertKind string

const (
	AlertPayment AlertKind = "payment"
	AlertStock   AlertKind = "stock"
)

// Alert is produced by the periodic sweep for dashboards.
type Alert struct {
	ID        string
	Kind      AlertKind
	SubjectID int64
	Message   string
	CreatedAt time.Time
}

// =============================================================================
// REPORTS
// =============================================================================

// FinanceTotals are the raw sums for one month.
type FinanceTotals struct {
	Month     Month
	Income    int64 // payments dated within the month
	Expenses  int64 // expenses dated within the month
	Collected int64 // allocations applied to the month
	Players   int
}
