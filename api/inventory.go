package api

import (
	"net/http"
	"strings"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListItems returns all inventory items with their low-stock flag.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list inventory", err)
		return
	}

	dtos := make([]InventoryItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateItem adds an inventory item.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		h.writeDomainError(w, "Invalid item", academy.Invalid("name", "is required"))
		return
	case req.Stock < 0:
		h.writeDomainError(w, "Invalid item", academy.Invalid("stock", "must not be negative"))
		return
	case req.MinStock < 0:
		h.writeDomainError(w, "Invalid item", academy.Invalid("min_stock", "must not be negative"))
		return
	}

	item := &academy.InventoryItem{
		Name:     name,
		Category: strings.TrimSpace(req.Category),
		Stock:    req.Stock,
		MinStock: req.MinStock,
	}
	if err := h.Store.CreateItem(r.Context(), item); err != nil {
		h.writeDomainError(w, "Failed to create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(*item))
}

// UpdateStock overwrites an item's stock count.
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid item id", err)
		return
	}

	var req UpdateStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Stock == nil {
		h.writeDomainError(w, "Invalid stock", academy.Invalid("stock", "is required"))
		return
	}
	if *req.Stock < 0 {
		h.writeDomainError(w, "Invalid stock", academy.Invalid("stock", "must not be negative"))
		return
	}

	ctx := r.Context()
	if err := h.Store.SetStock(ctx, id, *req.Stock); err != nil {
		h.writeDomainError(w, "Failed to update stock", err)
		return
	}
	item, err := h.Store.GetItem(ctx, id)
	if err != nil || item == nil {
		h.writeDomainError(w, "Failed to load item", orNotFound(err))
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

// RecordMovement applies an in/out movement. An outgoing movement larger
// than the stock is rejected with 400.
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid item id", err)
		return
	}

	var req MovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Quantity <= 0 {
		h.writeDomainError(w, "Invalid movement", academy.Invalid("quantity", "must be positive"))
		return
	}

	m := &academy.InventoryMovement{
		ItemID:   id,
		Type:     academy.MovementType(strings.ToLower(strings.TrimSpace(req.Type))),
		Quantity: req.Quantity,
		Notes:    strings.TrimSpace(req.Notes),
	}
	if req.PlayerID != nil {
		pid := academy.PlayerID(*req.PlayerID)
		m.PlayerID = &pid
	}

	item, err := h.Store.RecordMovement(r.Context(), m)
	if err != nil {
		h.writeDomainError(w, "Failed to record movement", err)
		return
	}
	if item.LowStock() {
		h.Log.Warn().Int64("item_id", item.ID).Int("stock", item.Stock).Msg("item at or below minimum stock")
	}

	writeJSON(w, http.StatusCreated, MovementResponse{
		Movement: toMovementDTO(*m),
		Item:     toItemDTO(*item),
	})
}

// ListMovements returns an item's stock movements, newest first.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid item id", err)
		return
	}

	ctx := r.Context()
	item, err := h.Store.GetItem(ctx, id)
	if err != nil || item == nil {
		h.writeDomainError(w, "Failed to load item", orNotFound(err))
		return
	}

	movements, err := h.Store.Movements(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to list movements", err)
		return
	}
	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = toMovementDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// orNotFound turns the (nil, nil) "missing" result of a getter into ErrNotFound.
func orNotFound(err error) error {
	if err != nil {
		return err
	}
	return academy.ErrNotFound
}
