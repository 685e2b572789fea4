package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/efusa/academy/academy"
	"github.com/efusa/academy/billing"
)

// IdempotencyKeyHeader carries the client's retry key for payment creation.
const IdempotencyKeyHeader = "Idempotency-Key"

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns payments, newest first.
// Query: player_id (optional), month=YYYY-MM (optional, by payment date).
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	var filter academy.PaymentFilter

	playerID, err := queryID(r, "player_id")
	if err != nil {
		h.writeDomainError(w, "Invalid filter", err)
		return
	}
	filter.PlayerID = academy.PlayerID(playerID)

	if raw := r.URL.Query().Get("month"); raw != "" {
		month, err := academy.ParseMonth(raw)
		if err != nil {
			h.writeDomainError(w, "Invalid filter", academy.Invalid("month", "%v", err))
			return
		}
		filter.From, filter.To = month.Start(), month.End()
	}

	ctx := r.Context()
	payments, err := h.Store.ListPayments(ctx, filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list payments", err)
		return
	}
	players, err := h.Store.ListPlayers(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to list payments", err)
		return
	}
	names := make(map[academy.PlayerID]string, len(players))
	for _, p := range players {
		names[p.ID] = p.FullName()
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
		dtos[i].PlayerName = names[p.PlayerID]
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePayment registers a payment and allocates it across months.
// Returns 201 for a new payment, 200 when the idempotency key was already
// used (the original payment is returned and nothing is written).
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, ok := academy.WholeUnits(req.Amount)
	if !ok {
		h.writeDomainError(w, "Invalid payment",
			academy.Invalid("amount", "must be a whole amount, got %s", req.Amount.String()))
		return
	}
	date, err := parseOptionalDate("date", req.Date)
	if err != nil {
		h.writeDomainError(w, "Invalid payment", err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	ctx := r.Context()
	payment, err := h.Billing.RegisterPayment(ctx, billing.PaymentInput{
		PlayerID:       academy.PlayerID(req.PlayerID),
		Amount:         amount,
		Date:           date,
		Method:         strings.TrimSpace(req.Method),
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: key,
	})
	status := http.StatusCreated
	switch {
	case errors.Is(err, academy.ErrDuplicateIdempotencyKey) && payment != nil:
		status = http.StatusOK
	case err != nil:
		h.writeDomainError(w, "Failed to register payment", err)
		return
	}

	// Committed. Read-back failures are logged and the block is left out.
	resp := PaymentResponse{
		Payment:   toPaymentDTO(*payment),
		Duplicate: status == http.StatusOK,
	}
	allocations, err := h.Store.Allocations(ctx, payment.ID)
	if err != nil {
		h.Log.Error().Err(err).Int64("payment_id", int64(payment.ID)).Msg("failed to load allocations")
	} else {
		resp.Allocations = toAllocationDTOs(allocations)
	}
	playerStatus, err := h.Billing.PlayerStatus(ctx, payment.PlayerID)
	if err != nil {
		h.Log.Error().Err(err).Int64("player_id", int64(payment.PlayerID)).Msg("failed to compute payment status")
	} else {
		dto := toStatusDTO(playerStatus)
		resp.Status = &dto
	}

	writeJSON(w, status, resp)
}

// DeletePayment removes a payment. Its months stop counting as paid.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid payment id", err)
		return
	}

	if err := h.Billing.DeletePayment(r.Context(), academy.PaymentID(id)); err != nil {
		h.writeDomainError(w, "Failed to delete payment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetPaymentAllocations lists the months a payment was applied to.
func (h *Handler) GetPaymentAllocations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid payment id", err)
		return
	}

	ctx := r.Context()
	payment, err := h.Store.GetPayment(ctx, academy.PaymentID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get payment", err)
		return
	}
	if payment == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}

	allocations, err := h.Store.Allocations(ctx, payment.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to load allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTOs(allocations))
}

// ReallocatePayment applies whatever part of a payment is still unallocated
// starting at the current month. Returns only the rows written now.
func (h *Handler) ReallocatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid payment id", err)
		return
	}

	rows, err := h.Billing.Reallocate(r.Context(), academy.PaymentID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to reallocate payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTOs(rows))
}

func toAllocationDTOs(rows []academy.Allocation) []AllocationDTO {
	dtos := make([]AllocationDTO, len(rows))
	for i, a := range rows {
		dtos[i] = toAllocationDTO(a)
	}
	return dtos
}
