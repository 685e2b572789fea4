package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// DASHBOARD
// =============================================================================

// GetDashboard summarizes the current month: player status counts, the
// alert badge count (players not paid plus low-stock items) and money totals.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	month := h.Billing.CurrentMonth()

	players, err := h.Store.ListPlayers(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to load dashboard", err)
		return
	}
	ids := make([]academy.PlayerID, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	statuses, err := h.Billing.Statuses(ctx, ids)
	if err != nil {
		h.writeDomainError(w, "Failed to load dashboard", err)
		return
	}
	items, err := h.Store.ListItems(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to load dashboard", err)
		return
	}
	report, err := h.financeReport(r, month)
	if err != nil {
		h.writeDomainError(w, "Failed to load dashboard", err)
		return
	}

	dto := DashboardDTO{
		Month:          month.String(),
		Players:        len(players),
		Income:         report.Income,
		Expenses:       report.Expenses,
		Net:            report.Net,
		CollectionRate: report.CollectionRate,
	}
	for _, st := range statuses {
		switch st.Status {
		case academy.StatusPaid:
			dto.Paid++
		case academy.StatusPartial:
			dto.Partial++
		case academy.StatusDebt:
			dto.Debt++
		}
	}
	for _, item := range items {
		if item.LowStock() {
			dto.LowStockItems++
		}
	}
	dto.AlertCount = dto.Partial + dto.Debt + dto.LowStockItems

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ALERTS
// =============================================================================

// ListAlerts returns the alerts stored by the last sweep.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Store.ListAlerts(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list alerts", err)
		return
	}

	dtos := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = toAlertDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunSweep rebuilds the alert list immediately.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.Sweeper.Sweep(r.Context())
	if err != nil {
		h.writeDomainError(w, "Alert sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{
		Alerts:   res.Total(),
		Payments: res.Payments,
		Stock:    res.Stock,
	})
}

// =============================================================================
// REPORTS
// =============================================================================

// GetFinanceReport returns income, expenses and fee collection for a month.
// Query: year, month (both optional, default to the current month).
func (h *Handler) GetFinanceReport(w http.ResponseWriter, r *http.Request) {
	month, err := reportMonth(r, h.Billing.CurrentMonth())
	if err != nil {
		h.writeDomainError(w, "Invalid report period", err)
		return
	}

	report, err := h.financeReport(r, month)
	if err != nil {
		h.writeDomainError(w, "Failed to build finance report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) financeReport(r *http.Request, month academy.Month) (FinanceReportDTO, error) {
	ctx := r.Context()

	totals, err := h.Store.FinanceTotals(ctx, month)
	if err != nil {
		return FinanceReportDTO{}, err
	}
	settings, err := h.Store.GetSettings(ctx)
	if err != nil {
		return FinanceReportDTO{}, err
	}

	expected := settings.MonthlyFee * int64(totals.Players)
	net := totals.Income - totals.Expenses
	return FinanceReportDTO{
		Month:          month.String(),
		Income:         totals.Income,
		Expenses:       totals.Expenses,
		Net:            net,
		Collected:      totals.Collected,
		Expected:       expected,
		CollectionRate: academy.Percent(totals.Collected, expected).StringFixed(2),
		Players:        totals.Players,
		IncomeFmt:      academy.FormatMoney(totals.Income, settings.Currency),
		ExpensesFmt:    academy.FormatMoney(totals.Expenses, settings.Currency),
		NetFmt:         academy.FormatMoney(net, settings.Currency),
	}, nil
}

func reportMonth(r *http.Request, current academy.Month) (academy.Month, error) {
	q := r.URL.Query()
	year, month := current.Year, int(current.Month)

	if raw := q.Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1900 || y > 9999 {
			return academy.Month{}, academy.Invalid("year", "expected a four-digit year, got %q", raw)
		}
		year = y
	}
	if raw := q.Get("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 || m > 12 {
			return academy.Month{}, academy.Invalid("month", "expected 1-12, got %q", raw)
		}
		month = m
	}
	return academy.NewMonth(year, time.Month(month)), nil
}
