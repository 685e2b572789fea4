/*
handlers.go - HTTP API handlers for the academy manager

PURPOSE:
  Exposes players, payments, expenses, inventory, attendance and reports
  via REST. Handles HTTP request/response and JSON serialization, and
  delegates fee allocation and payment status to the billing engine.

ENDPOINTS:
  Settings & categories (this file):
    GET    /api/health
    GET    /api/settings               Current settings (defaults when unsaved)
    PUT    /api/settings               Partial update; a fee change drops cached statuses
    GET    /api/categories             Age categories

  Players (players.go), payments (payments.go), expenses (expenses.go),
  inventory (inventory.go), attendance (attendance.go), dashboard and
  reports (dashboard.go), scenarios (scenarios.go).

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: typed repositories (store/sqlite in production)
  - Billing: payment registration and status evaluation
  - Sweeper: alert sweep shared with the cron scheduler

ERROR HANDLING:
  Errors are returned as JSON {"error", "details", "field"}:
  - 400: Validation errors, invalid input, insufficient stock
  - 404: Resource not found
  - 409: Conflict (player with payments, reused idempotency key)
  - 500: Internal errors (logged)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - billing/engine.go: Allocation engine
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/efusa/academy/academy"
	"github.com/efusa/academy/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence surface the HTTP layer needs.
type Store interface {
	academy.LedgerStore
	academy.FeeProvider
	academy.PlayerRepository
	academy.PaymentRepository
	academy.ExpenseRepository
	academy.InventoryRepository
	academy.AttendanceRepository
	academy.SettingsRepository
	academy.AlertRepository
	academy.ReportRepository

	// Reset deletes all data and reseeds defaults.
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Store
	Billing *billing.Engine
	Sweeper *AlertSweeper
	Log     zerolog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. sweeper may be nil, in which case one is
// built without metrics.
func NewHandler(store Store, engine *billing.Engine, sweeper *AlertSweeper, log zerolog.Logger) *Handler {
	if sweeper == nil {
		sweeper = NewAlertSweeper(store, engine, nil, log)
	}
	return &Handler{
		Store:   store,
		Billing: engine,
		Sweeper: sweeper,
		Log:     log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// HEALTH & SETTINGS
// =============================================================================

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"month":  h.Billing.CurrentMonth().String(),
	})
}

// GetSettings returns the settings row.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

// UpdateSettings applies a partial update. A fee change invalidates every
// cached player status.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	settings, err := h.Store.GetSettings(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to load settings", err)
		return
	}
	oldFee := settings.MonthlyFee

	if req.SchoolName != nil {
		settings.SchoolName = strings.TrimSpace(*req.SchoolName)
	}
	if req.Currency != nil {
		settings.Currency = strings.TrimSpace(*req.Currency)
	}
	if req.ContactPhone != nil {
		settings.ContactPhone = strings.TrimSpace(*req.ContactPhone)
	}
	if req.MonthlyFee != nil {
		fee, ok := academy.WholeUnits(*req.MonthlyFee)
		if !ok || fee < 0 {
			h.writeDomainError(w, "Invalid settings",
				academy.Invalid("monthly_fee", "must be a non-negative whole amount, got %s", req.MonthlyFee.String()))
			return
		}
		settings.MonthlyFee = fee
	}

	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		h.writeDomainError(w, "Failed to save settings", err)
		return
	}
	if settings.MonthlyFee != oldFee {
		h.Billing.InvalidateAll()
		h.Log.Info().Int64("old_fee", oldFee).Int64("new_fee", settings.MonthlyFee).Msg("monthly fee changed")
	}

	saved, err := h.Store.GetSettings(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(saved))
}

// ListCategories returns the age categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Store.ListCategories(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list categories", err)
		return
	}

	dtos := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = CategoryDTO{ID: c.ID, Name: c.Name, MinAge: c.MinAge, MaxAge: c.MaxAge}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.writeDomainError(w, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Billing.InvalidateAll()

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status code from the academy error taxonomy.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case academy.IsClientError(err):
		status = http.StatusBadRequest
	case academy.IsNotFound(err):
		status = http.StatusNotFound
	case academy.IsConflict(err):
		status = http.StatusConflict
	}

	resp := ErrorResponse{Error: message, Details: err.Error()}
	var ve *academy.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}

	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Msg(message)
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// pathID parses the {name} URL parameter as a positive integer.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, academy.Invalid(name, "expected a positive integer, got %q", raw)
	}
	return id, nil
}

// queryID parses an optional positive integer query parameter (0 when absent).
func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, academy.Invalid(name, "expected a positive integer, got %q", raw)
	}
	return id, nil
}

// parseOptionalDate parses a YYYY-MM-DD value; empty returns the zero time.
func parseOptionalDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := academy.ParseDate(raw)
	if err != nil {
		return time.Time{}, academy.Invalid(field, "expected YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}
