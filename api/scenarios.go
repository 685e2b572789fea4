/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  academy data. Payments go through the billing engine, so every scenario
  exercises the same allocation path as the API.

AVAILABLE SCENARIOS:
  demo:      Players across categories with paid, partial and debt months,
             expenses, inventory (one item low on stock) and today's attendance
  prepaid:   Families paying several months ahead, including a payment
             larger than the allocation horizon can absorb
  empty:     Settings and categories only

HOW SCENARIOS WORK:
 1. Reset database (clear all data, reseed defaults)
 2. Create players (guardians are upserted by phone)
 3. Register payments through the billing engine
 4. Add expenses, inventory and attendance

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "demo"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - billing/engine.go: RegisterPayment
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/efusa/academy/academy"
	"github.com/efusa/academy/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo",
		Name:        "Demo Academy",
		Description: "Players with paid, partial and overdue months, expenses, inventory and attendance",
	},
	{
		ID:          "prepaid",
		Name:        "Prepaid Season",
		Description: "Families paying months ahead, including more than the allocation horizon covers",
	},
	{
		ID:          "empty",
		Name:        "Empty Academy",
		Description: "Default settings and categories only",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"demo":    (*Handler).loadDemoScenario,
	"prepaid": (*Handler).loadPrepaidScenario,
	"empty":   func(*Handler, context.Context) error { return nil },
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.writeDomainError(w, "Failed to reset database", err)
		return
	}
	if err := load(h, ctx); err != nil {
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoPlayer struct {
	first, last   string
	age           int
	bloodType     string
	guardian      string
	guardianPhone string
	feeShare      float64 // fraction of the monthly fee paid this month
}

func (h *Handler) loadDemoScenario(ctx context.Context) error {
	now := h.Billing.Now()

	roster := []demoPlayer{
		{"Santiago", "Gómez Ruiz", 7, "O+", "Marta Ruiz", "3001112233", 1},
		{"Valentina", "Gómez Ruiz", 10, "O+", "Marta Ruiz", "3001112233", 1},
		{"Mateo", "Rodríguez", 12, "A+", "Carlos Rodríguez", "3012223344", 0.5},
		{"Samuel", "Martínez López", 13, "B+", "Ana López", "3023334455", 0},
		{"Isabella", "Hernández", 15, "O-", "Jorge Hernández", "3034445566", 3},
		{"Sebastián", "Castro", 17, "A-", "Lucía Castro", "3045556677", 0},
		{"Daniel", "Vargas Peña", 19, "AB+", "", "", 1},
	}

	fee, err := h.Store.MonthlyFee(ctx)
	if err != nil {
		return err
	}

	var ids []academy.PlayerID
	for i, d := range roster {
		p, err := h.seedPlayer(ctx, d, now)
		if err != nil {
			return err
		}
		ids = append(ids, p.ID)

		amount := int64(d.feeShare * float64(fee))
		if amount <= 0 {
			continue
		}
		if _, err := h.Billing.RegisterPayment(ctx, billing.PaymentInput{
			PlayerID:       p.ID,
			Amount:         amount,
			Date:           now,
			Method:         []string{"cash", "transfer"}[i%2],
			IdempotencyKey: fmt.Sprintf("demo-%d", i+1),
		}); err != nil {
			return err
		}
	}

	expenses := []academy.Expense{
		{Concept: "Alquiler de cancha", Amount: 200000, Category: "facilities"},
		{Concept: "Arbitraje torneo", Amount: 60000, Category: "competition"},
		{Concept: "Botiquín", Amount: 35000, Category: "medical"},
	}
	for _, e := range expenses {
		e.Date = academy.Date(now)
		if err := h.Store.CreateExpense(ctx, &e); err != nil {
			return err
		}
	}

	items := []academy.InventoryItem{
		{Name: "Balón Fútbol 5", Category: "balls", Stock: 10, MinStock: 5},
		{Name: "Conos", Category: "training", Stock: 30, MinStock: 10},
		{Name: "Petos", Category: "training", Stock: 4, MinStock: 8},
	}
	for _, item := range items {
		if err := h.Store.CreateItem(ctx, &item); err != nil {
			return err
		}
	}

	today := academy.Date(now)
	records := make([]academy.Attendance, len(ids))
	for i, id := range ids {
		state := academy.Present
		if i%4 == 3 {
			state = academy.Absent
		}
		records[i] = academy.Attendance{PlayerID: id, Date: today, State: state}
	}
	if err := h.Store.SaveAttendance(ctx, records); err != nil {
		return err
	}

	_, err = h.Sweeper.Sweep(ctx)
	return err
}

func (h *Handler) loadPrepaidScenario(ctx context.Context) error {
	now := h.Billing.Now()

	fee, err := h.Store.MonthlyFee(ctx)
	if err != nil {
		return err
	}

	roster := []struct {
		player   demoPlayer
		payments []int64 // in months of fee
	}{
		{demoPlayer{first: "Emiliano", last: "Torres", age: 9, guardian: "Paula Torres", guardianPhone: "3101234567"}, []int64{6}},
		{demoPlayer{first: "Antonella", last: "Torres", age: 11, guardian: "Paula Torres", guardianPhone: "3101234567"}, []int64{2, 1}},
		{demoPlayer{first: "Jerónimo", last: "Silva", age: 14, guardian: "Andrés Silva", guardianPhone: "3119876543"}, []int64{30}},
	}

	for i, entry := range roster {
		p, err := h.seedPlayer(ctx, entry.player, now)
		if err != nil {
			return err
		}
		for j, months := range entry.payments {
			if _, err := h.Billing.RegisterPayment(ctx, billing.PaymentInput{
				PlayerID:       p.ID,
				Amount:         months * fee,
				Date:           now,
				Method:         "transfer",
				Notes:          fmt.Sprintf("%d months in advance", months),
				IdempotencyKey: fmt.Sprintf("prepaid-%d-%d", i+1, j+1),
			}); err != nil {
				return err
			}
		}
	}

	_, err = h.Sweeper.Sweep(ctx)
	return err
}

// seedPlayer creates a player born age years before now, in the category
// matching that age.
func (h *Handler) seedPlayer(ctx context.Context, d demoPlayer, now time.Time) (*academy.Player, error) {
	p := &academy.Player{
		FirstNames: d.first,
		LastNames:  d.last,
		BirthDate:  academy.Date(now.AddDate(-d.age, -2, 0)),
		BloodType:  d.bloodType,
	}
	if err := h.assignCategory(ctx, p); err != nil {
		return nil, err
	}

	var guardian *academy.Guardian
	if d.guardianPhone != "" {
		guardian = &academy.Guardian{Name: d.guardian, Phone: d.guardianPhone}
	}
	if err := h.Store.CreatePlayer(ctx, p, guardian); err != nil {
		return nil, err
	}
	return p, nil
}
