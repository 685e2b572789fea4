package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// ListAttendance returns attendance records, optionally only for ?date=YYYY-MM-DD.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	date, err := parseOptionalDate("date", r.URL.Query().Get("date"))
	if err != nil {
		h.writeDomainError(w, "Invalid filter", err)
		return
	}

	records, err := h.Store.ListAttendance(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, "Failed to list attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(records))
	for i, a := range records {
		dtos[i] = AttendanceDTO{
			ID:       a.ID,
			PlayerID: int64(a.PlayerID),
			Date:     academy.FormatDate(a.Date),
			State:    string(a.State),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveAttendance upserts a batch of records. The body must be a JSON array;
// the batch is saved all-or-nothing.
func (h *Handler) SaveAttendance(w http.ResponseWriter, r *http.Request) {
	var req []AttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Expected an array of attendance records", err)
		return
	}

	records := make([]academy.Attendance, len(req))
	for i, a := range req {
		if a.PlayerID <= 0 {
			h.writeDomainError(w, "Invalid attendance",
				academy.Invalid(fmt.Sprintf("records[%d].player_id", i), "is required"))
			return
		}
		date, err := academy.ParseDate(a.Date)
		if err != nil {
			h.writeDomainError(w, "Invalid attendance",
				academy.Invalid(fmt.Sprintf("records[%d].date", i), "expected YYYY-MM-DD, got %q", a.Date))
			return
		}
		records[i] = academy.Attendance{
			PlayerID: academy.PlayerID(a.PlayerID),
			Date:     date,
			State:    academy.AttendanceState(strings.ToUpper(strings.TrimSpace(a.State))),
		}
	}

	if err := h.Store.SaveAttendance(r.Context(), records); err != nil {
		h.writeDomainError(w, "Failed to save attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": len(records)})
}
