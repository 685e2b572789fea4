package api

import (
	"net/http"
	"strings"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// ListExpenses returns all expenses, newest first.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Store.ListExpenses(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list expenses", err)
		return
	}

	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateExpense records money spent. The date defaults to today.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	expense, err := h.expenseFromRequest(req)
	if err != nil {
		h.writeDomainError(w, "Invalid expense", err)
		return
	}
	if err := h.Store.CreateExpense(r.Context(), expense); err != nil {
		h.writeDomainError(w, "Failed to create expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(*expense))
}

// UpdateExpense rewrites an expense.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid expense id", err)
		return
	}

	var req ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	expense, err := h.expenseFromRequest(req)
	if err != nil {
		h.writeDomainError(w, "Invalid expense", err)
		return
	}
	expense.ID = id
	if err := h.Store.UpdateExpense(r.Context(), expense); err != nil {
		h.writeDomainError(w, "Failed to update expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(*expense))
}

// DeleteExpense removes an expense.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid expense id", err)
		return
	}

	if err := h.Store.DeleteExpense(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete expense", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) expenseFromRequest(req ExpenseRequest) (*academy.Expense, error) {
	concept := strings.TrimSpace(req.Concept)
	if concept == "" {
		return nil, academy.Invalid("concept", "is required")
	}
	amount, ok := academy.WholeUnits(req.Amount)
	if !ok || amount <= 0 {
		return nil, academy.Invalid("amount", "must be a positive whole amount, got %s", req.Amount.String())
	}
	date, err := parseOptionalDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = academy.Date(h.Billing.Now())
	}

	return &academy.Expense{
		Concept:  concept,
		Amount:   amount,
		Date:     date,
		Category: strings.TrimSpace(req.Category),
		Notes:    strings.TrimSpace(req.Notes),
	}, nil
}
