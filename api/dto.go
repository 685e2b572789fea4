/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the academy domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts travel as whole units. Request amounts are decoded with
  shopspring/decimal so "50000", 50000 and 50000.0 are all accepted while
  50000.5 is rejected instead of being truncated.

DATES:
  Calendar dates are "YYYY-MM-DD", months are "YYYY-MM", timestamps RFC3339.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - academy/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// SETTINGS
// =============================================================================

type SettingsDTO struct {
	SchoolName    string `json:"school_name"`
	MonthlyFee    int64  `json:"monthly_fee"`
	MonthlyFeeFmt string `json:"monthly_fee_formatted"`
	Currency      string `json:"currency"`
	ContactPhone  string `json:"contact_phone"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// UpdateSettingsRequest is a partial update; nil fields are left unchanged.
type UpdateSettingsRequest struct {
	SchoolName   *string          `json:"school_name"`
	MonthlyFee   *decimal.Decimal `json:"monthly_fee"`
	Currency     *string          `json:"currency"`
	ContactPhone *string          `json:"contact_phone"`
}

type CategoryDTO struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	MinAge int    `json:"min_age"`
	MaxAge int    `json:"max_age"`
}

// =============================================================================
// PLAYERS
// =============================================================================

type PlayerDTO struct {
	ID            int64  `json:"id"`
	FirstNames    string `json:"first_names"`
	LastNames     string `json:"last_names"`
	FullName      string `json:"full_name"`
	BirthDate     string `json:"birth_date"`
	Age           int    `json:"age"`
	BloodType     string `json:"blood_type,omitempty"`
	Phone         string `json:"phone,omitempty"`
	CategoryID    *int64 `json:"category_id"`
	Category      string `json:"category,omitempty"`
	GuardianID    *int64 `json:"guardian_id"`
	GuardianName  string `json:"guardian_name,omitempty"`
	GuardianPhone string `json:"guardian_phone,omitempty"`
	Status        string `json:"status,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// PlayerRequest is the body of create and update. BirthDate is required on
// create and must be omitted or unchanged on update.
type PlayerRequest struct {
	FirstNames    string `json:"first_names"`
	LastNames     string `json:"last_names"`
	BirthDate     string `json:"birth_date"`
	BloodType     string `json:"blood_type"`
	Phone         string `json:"phone"`
	GuardianName  string `json:"guardian_name"`
	GuardianPhone string `json:"guardian_phone"`
}

type GuardianDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type StatusDTO struct {
	PlayerID        int64   `json:"player_id"`
	Status          string  `json:"status"`
	PaidThisMonth   int64   `json:"paid_this_month"`
	Debt            int64   `json:"debt"`
	Fee             int64   `json:"fee"`
	NextDueDate     *string `json:"next_due_date"`
	LastPaymentDate *string `json:"last_payment_date"`
}

type RecategorizeResponse struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID             int64  `json:"id"`
	PlayerID       int64  `json:"player_id"`
	PlayerName     string `json:"player_name,omitempty"`
	Amount         int64  `json:"amount"`
	Date           string `json:"date"`
	Method         string `json:"method,omitempty"`
	Notes          string `json:"notes,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CreatePaymentRequest registers a payment. The idempotency key may also be
// sent in the Idempotency-Key header.
type CreatePaymentRequest struct {
	PlayerID       int64           `json:"player_id"`
	Amount         decimal.Decimal `json:"amount"`
	Date           string          `json:"date"`
	Method         string          `json:"method"`
	Notes          string          `json:"notes"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// PaymentResponse is returned by payment registration. Duplicate marks a
// replay of an already registered idempotency key. Allocations and Status
// are left out when they could not be read back after the commit.
type PaymentResponse struct {
	Payment     PaymentDTO      `json:"payment"`
	Allocations []AllocationDTO `json:"allocations,omitempty"`
	Status      *StatusDTO      `json:"status,omitempty"`
	Duplicate   bool            `json:"duplicate,omitempty"`
}

type AllocationDTO struct {
	ID        int64  `json:"id"`
	PaymentID int64  `json:"payment_id"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Period    string `json:"period"`
	Amount    int64  `json:"amount"`
}

// =============================================================================
// EXPENSES
// =============================================================================

type ExpenseDTO struct {
	ID       int64  `json:"id"`
	Concept  string `json:"concept"`
	Amount   int64  `json:"amount"`
	Date     string `json:"date"`
	Category string `json:"category,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type ExpenseRequest struct {
	Concept  string          `json:"concept"`
	Amount   decimal.Decimal `json:"amount"`
	Date     string          `json:"date"`
	Category string          `json:"category"`
	Notes    string          `json:"notes"`
}

// =============================================================================
// INVENTORY
// =============================================================================

type InventoryItemDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Stock    int    `json:"stock"`
	MinStock int    `json:"min_stock"`
	LowStock bool   `json:"low_stock"`
}

type CreateItemRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Stock    int    `json:"stock"`
	MinStock int    `json:"min_stock"`
}

type UpdateStockRequest struct {
	Stock *int `json:"stock"`
}

type MovementRequest struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
	PlayerID *int64 `json:"player_id"`
	Notes    string `json:"notes"`
}

type MovementDTO struct {
	ID        int64  `json:"id"`
	ItemID    int64  `json:"item_id"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
	PlayerID  *int64 `json:"player_id"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
}

type MovementResponse struct {
	Movement MovementDTO      `json:"movement"`
	Item     InventoryItemDTO `json:"item"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceDTO struct {
	ID       int64  `json:"id"`
	PlayerID int64  `json:"player_id"`
	Date     string `json:"date"`
	State    string `json:"state"`
}

type AttendanceRequest struct {
	PlayerID int64  `json:"player_id"`
	Date     string `json:"date"`
	State    string `json:"state"`
}

// =============================================================================
// DASHBOARD, ALERTS, REPORTS
// =============================================================================

type DashboardDTO struct {
	Month          string `json:"month"`
	Players        int    `json:"players"`
	Paid           int    `json:"paid"`
	Partial        int    `json:"partial"`
	Debt           int    `json:"debt"`
	LowStockItems  int    `json:"low_stock_items"`
	AlertCount     int    `json:"alert_count"`
	Income         int64  `json:"income"`
	Expenses       int64  `json:"expenses"`
	Net            int64  `json:"net"`
	CollectionRate string `json:"collection_rate"`
}

type AlertDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	SubjectID int64  `json:"subject_id"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type SweepResponse struct {
	Alerts   int `json:"alerts"`
	Payments int `json:"payment_alerts"`
	Stock    int `json:"stock_alerts"`
}

type FinanceReportDTO struct {
	Month          string `json:"month"`
	Income         int64  `json:"income"`
	Expenses       int64  `json:"expenses"`
	Net            int64  `json:"net"`
	Collected      int64  `json:"collected"`
	Expected       int64  `json:"expected"`
	CollectionRate string `json:"collection_rate"`
	Players        int    `json:"players"`
	IncomeFmt      string `json:"income_formatted"`
	ExpensesFmt    string `json:"expenses_formatted"`
	NetFmt         string `json:"net_formatted"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPaymentDTO(p academy.Payment) PaymentDTO {
	return PaymentDTO{
		ID:             int64(p.ID),
		PlayerID:       int64(p.PlayerID),
		Amount:         p.Amount,
		Date:           academy.FormatDate(p.Date),
		Method:         p.Method,
		Notes:          p.Notes,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      formatTimestamp(p.CreatedAt),
	}
}

func toAllocationDTO(a academy.Allocation) AllocationDTO {
	return AllocationDTO{
		ID:        a.ID,
		PaymentID: int64(a.PaymentID),
		Year:      a.Month.Year,
		Month:     int(a.Month.Month),
		Period:    a.Month.String(),
		Amount:    a.Amount,
	}
}

func toStatusDTO(s academy.StatusRecord) StatusDTO {
	return StatusDTO{
		PlayerID:        int64(s.PlayerID),
		Status:          string(s.Status),
		PaidThisMonth:   s.PaidThisMonth,
		Debt:            s.Debt,
		Fee:             s.Fee,
		NextDueDate:     datePtr(s.NextDueDate),
		LastPaymentDate: datePtr(s.LastPaymentDate),
	}
}

func toExpenseDTO(e academy.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:       e.ID,
		Concept:  e.Concept,
		Amount:   e.Amount,
		Date:     academy.FormatDate(e.Date),
		Category: e.Category,
		Notes:    e.Notes,
	}
}

func toItemDTO(i academy.InventoryItem) InventoryItemDTO {
	return InventoryItemDTO{
		ID:       i.ID,
		Name:     i.Name,
		Category: i.Category,
		Stock:    i.Stock,
		MinStock: i.MinStock,
		LowStock: i.LowStock(),
	}
}

func toMovementDTO(m academy.InventoryMovement) MovementDTO {
	dto := MovementDTO{
		ID:        m.ID,
		ItemID:    m.ItemID,
		Type:      string(m.Type),
		Quantity:  m.Quantity,
		Notes:     m.Notes,
		CreatedAt: formatTimestamp(m.CreatedAt),
	}
	if m.PlayerID != nil {
		id := int64(*m.PlayerID)
		dto.PlayerID = &id
	}
	return dto
}

func toAlertDTO(a academy.Alert) AlertDTO {
	return AlertDTO{
		ID:        a.ID,
		Kind:      string(a.Kind),
		SubjectID: a.SubjectID,
		Message:   a.Message,
		CreatedAt: formatTimestamp(a.CreatedAt),
	}
}

func toSettingsDTO(s academy.Settings) SettingsDTO {
	return SettingsDTO{
		SchoolName:    s.SchoolName,
		MonthlyFee:    s.MonthlyFee,
		MonthlyFeeFmt: academy.FormatMoney(s.MonthlyFee, s.Currency),
		Currency:      s.Currency,
		ContactPhone:  s.ContactPhone,
		UpdatedAt:     formatTimestamp(s.UpdatedAt),
	}
}

func datePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := academy.FormatDate(*t)
	return &s
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
