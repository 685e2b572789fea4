package academy

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - Calendar month used as the allocation key
// =============================================================================

const (
	// Horizon is how many months allocation and due-date search look ahead,
	// starting at (and including) the current month.
	Horizon = 24

	// DueDay is the day of the month on which a fee is due.
	DueDay = 5

	// DateLayout is the wire and storage format for calendar dates.
	DateLayout = "2006-01-02"
)

type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// NewMonth builds a month, normalizing out-of-range month numbers.
func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: time.January}.Add(int(month) - 1)
}

func (m Month) index() int { return m.Year*12 + int(m.Month) - 1 }

// Add moves n months forward (or backward when n is negative).
func (m Month) Add(n int) Month {
	i := m.index() + n
	y, r := i/12, i%12
	if r < 0 {
		y--
		r += 12
	}
	return Month{Year: y, Month: time.Month(r + 1)}
}

// Comparison
func (m Month) Before(o Month) bool { return m.index() < o.index() }
func (m Month) Equal(o Month) bool { return m.index() == o.index() }

// Start is the first day of the month.
func (m Month) Start() time.Time { return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC) }

// End is the first day of the following month (exclusive bound).
func (m Month) End() time.Time { return m.Add(1).Start() }

// DueDate is the day the month's fee falls due.
func (m Month) DueDate() time.Time { return time.Date(m.Year, m.Month, DueDay, 0, 0, 0, 0, time.UTC) }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q (use YYYY-MM): %w", s, err)
	}
	return MonthOf(t), nil
}

// =============================================================================
// DATE UTILITIES
// =============================================================================

// ParseDate parses a calendar date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Date truncates t to its calendar day in UTC.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a date, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
