package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// PLAYER HANDLERS
// =============================================================================

// ListPlayers returns all players with their current payment status.
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	players, err := h.Store.ListPlayers(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to list players", err)
		return
	}
	lk, err := h.loadLookups(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to list players", err)
		return
	}

	ids := make([]academy.PlayerID, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	statuses, err := h.Billing.Statuses(ctx, ids)
	if err != nil {
		h.writeDomainError(w, "Failed to compute payment status", err)
		return
	}

	now := h.Billing.Now()
	dtos := make([]PlayerDTO, len(players))
	for i, p := range players {
		dtos[i] = lk.toPlayerDTO(p, now)
		dtos[i].Status = string(statuses[p.ID].Status)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPlayer returns a single player.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid player id", err)
		return
	}

	ctx := r.Context()
	player, err := h.Store.GetPlayer(ctx, academy.PlayerID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get player", err)
		return
	}
	if player == nil {
		writeError(w, http.StatusNotFound, "Player not found", nil)
		return
	}

	dto, err := h.playerDTO(ctx, *player)
	if err != nil {
		h.writeDomainError(w, "Failed to get player", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// CreatePlayer registers a player. The category is derived from the age on
// the current date; a guardian phone links (or creates) the guardian.
func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req PlayerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	player, err := req.toPlayer()
	if err != nil {
		h.writeDomainError(w, "Invalid player", err)
		return
	}
	if player.BirthDate.IsZero() {
		h.writeDomainError(w, "Invalid player", academy.Invalid("birth_date", "is required"))
		return
	}

	ctx := r.Context()
	if err := h.assignCategory(ctx, player); err != nil {
		h.writeDomainError(w, "Failed to create player", err)
		return
	}

	if err := h.Store.CreatePlayer(ctx, player, req.guardian()); err != nil {
		h.writeDomainError(w, "Failed to create player", err)
		return
	}
	h.Log.Info().Int64("player_id", int64(player.ID)).Str("name", player.FullName()).Msg("player created")

	dto, err := h.playerDTO(ctx, *player)
	if err != nil {
		h.writeDomainError(w, "Failed to load player", err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// UpdatePlayer rewrites a player's mutable fields. The birth date cannot
// change; the category is recomputed.
func (h *Handler) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid player id", err)
		return
	}

	var req PlayerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	existing, err := h.Store.GetPlayer(ctx, academy.PlayerID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get player", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Player not found", nil)
		return
	}

	player, err := req.toPlayer()
	if err != nil {
		h.writeDomainError(w, "Invalid player", err)
		return
	}
	if !player.BirthDate.IsZero() && !player.BirthDate.Equal(existing.BirthDate) {
		h.writeDomainError(w, "Invalid player", academy.Invalid("birth_date", "cannot be changed"))
		return
	}
	player.ID = existing.ID
	player.BirthDate = existing.BirthDate
	player.GuardianID = existing.GuardianID
	player.CreatedAt = existing.CreatedAt

	if err := h.assignCategory(ctx, player); err != nil {
		h.writeDomainError(w, "Failed to update player", err)
		return
	}
	if err := h.Store.UpdatePlayer(ctx, player, req.guardian()); err != nil {
		h.writeDomainError(w, "Failed to update player", err)
		return
	}
	h.Billing.Invalidate(player.ID)

	dto, err := h.playerDTO(ctx, *player)
	if err != nil {
		h.writeDomainError(w, "Failed to load player", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// DeletePlayer removes a player. Players with payments cannot be deleted.
func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid player id", err)
		return
	}

	if err := h.Store.DeletePlayer(r.Context(), academy.PlayerID(id)); err != nil {
		h.writeDomainError(w, "Failed to delete player", err)
		return
	}
	h.Billing.Invalidate(academy.PlayerID(id))
	h.Log.Info().Int64("player_id", id).Msg("player deleted")

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetPlayerStatus returns the payment status for the current month.
// An unknown player yields status "unknown" rather than 404.
func (h *Handler) GetPlayerStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid player id", err)
		return
	}

	status, err := h.Billing.PlayerStatus(r.Context(), academy.PlayerID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to compute payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(status))
}

// GetPlayerPayments lists a player's payments, newest first.
func (h *Handler) GetPlayerPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid player id", err)
		return
	}

	ctx := r.Context()
	player, err := h.Store.GetPlayer(ctx, academy.PlayerID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get player", err)
		return
	}
	if player == nil {
		writeError(w, http.StatusNotFound, "Player not found", nil)
		return
	}

	payments, err := h.Store.ListPayments(ctx, academy.PaymentFilter{PlayerID: player.ID})
	if err != nil {
		h.writeDomainError(w, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
		dtos[i].PlayerName = player.FullName()
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecategorizePlayers recomputes every player's category from today's age.
func (h *Handler) RecategorizePlayers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	players, err := h.Store.ListPlayers(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to list players", err)
		return
	}
	categories, err := h.Store.ListCategories(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to list categories", err)
		return
	}

	now := h.Billing.Now()
	var resp RecategorizeResponse
	for _, p := range players {
		next := categoryID(categories, p.BirthDate, now)
		if sameCategory(p.CategoryID, next) {
			resp.Skipped++
			continue
		}
		if err := h.Store.SetPlayerCategory(ctx, p.ID, next); err != nil {
			h.writeDomainError(w, "Failed to update category", err)
			return
		}
		resp.Updated++
	}

	h.Log.Info().Int("updated", resp.Updated).Int("skipped", resp.Skipped).Msg("players recategorized")
	writeJSON(w, http.StatusOK, resp)
}

// ListGuardians returns all guardians.
func (h *Handler) ListGuardians(w http.ResponseWriter, r *http.Request) {
	guardians, err := h.Store.ListGuardians(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list guardians", err)
		return
	}

	dtos := make([]GuardianDTO, len(guardians))
	for i, g := range guardians {
		dtos[i] = GuardianDTO{ID: g.ID, Name: g.Name, Phone: g.Phone}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func (req PlayerRequest) toPlayer() (*academy.Player, error) {
	first := strings.TrimSpace(req.FirstNames)
	if first == "" {
		return nil, academy.Invalid("first_names", "is required")
	}
	birth, err := parseOptionalDate("birth_date", req.BirthDate)
	if err != nil {
		return nil, err
	}
	return &academy.Player{
		FirstNames: first,
		LastNames:  strings.TrimSpace(req.LastNames),
		BirthDate:  birth,
		BloodType:  strings.TrimSpace(req.BloodType),
		Phone:      strings.TrimSpace(req.Phone),
	}, nil
}

func (req PlayerRequest) guardian() *academy.Guardian {
	if strings.TrimSpace(req.GuardianPhone) == "" {
		return nil
	}
	return &academy.Guardian{Name: req.GuardianName, Phone: req.GuardianPhone}
}

func (h *Handler) assignCategory(ctx context.Context, p *academy.Player) error {
	categories, err := h.Store.ListCategories(ctx)
	if err != nil {
		return err
	}
	p.CategoryID = categoryID(categories, p.BirthDate, h.Billing.Now())
	return nil
}

func categoryID(categories []academy.Category, birth, now time.Time) *int64 {
	c := academy.CategoryFor(categories, academy.AgeAt(birth, now))
	if c == nil {
		return nil
	}
	id := c.ID
	return &id
}

func sameCategory(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// playerLookups resolves category and guardian names for player DTOs.
type playerLookups struct {
	categories map[int64]string
	guardians  map[int64]academy.Guardian
}

func (h *Handler) loadLookups(ctx context.Context) (*playerLookups, error) {
	categories, err := h.Store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	guardians, err := h.Store.ListGuardians(ctx)
	if err != nil {
		return nil, err
	}

	lk := &playerLookups{
		categories: make(map[int64]string, len(categories)),
		guardians:  make(map[int64]academy.Guardian, len(guardians)),
	}
	for _, c := range categories {
		lk.categories[c.ID] = c.Name
	}
	for _, g := range guardians {
		lk.guardians[g.ID] = g
	}
	return lk, nil
}

func (lk *playerLookups) toPlayerDTO(p academy.Player, now time.Time) PlayerDTO {
	dto := PlayerDTO{
		ID:         int64(p.ID),
		FirstNames: p.FirstNames,
		LastNames:  p.LastNames,
		FullName:   p.FullName(),
		BirthDate:  academy.FormatDate(p.BirthDate),
		Age:        academy.AgeAt(p.BirthDate, now),
		BloodType:  p.BloodType,
		Phone:      p.Phone,
		CategoryID: p.CategoryID,
		GuardianID: p.GuardianID,
		CreatedAt:  formatTimestamp(p.CreatedAt),
	}
	if p.CategoryID != nil {
		dto.Category = lk.categories[*p.CategoryID]
	}
	if p.GuardianID != nil {
		if g, ok := lk.guardians[*p.GuardianID]; ok {
			dto.GuardianName = g.Name
			dto.GuardianPhone = g.Phone
		}
	}
	return dto
}

// playerDTO builds a single player's DTO including the payment status.
func (h *Handler) playerDTO(ctx context.Context, p academy.Player) (PlayerDTO, error) {
	lk, err := h.loadLookups(ctx)
	if err != nil {
		return PlayerDTO{}, err
	}
	status, err := h.Billing.PlayerStatus(ctx, p.ID)
	if err != nil {
		return PlayerDTO{}, err
	}
	dto := lk.toPlayerDTO(p, h.Billing.Now())
	dto.Status = string(status.Status)
	return dto, nil
}
