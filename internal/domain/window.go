package domain

import (
	"fmt"
	"time"
)

// Window is one calendar month (UTC) of usage, aggregated and billed as one
// unit. Raw usage objects live at hour granularity beneath the month prefix.
type Window struct {
	Year  int
	Month time.Month
}

// WindowOf returns the window containing t (interpreted in UTC).
func WindowOf(t time.Time) Window {
	u := t.UTC()
	return Window{Year: u.Year(), Month: u.Month()}
}

// ParseWindow parses the "YYYY-MM" key form.
func ParseWindow(s string) (Window, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window %q: %w", s, err)
	}
	return Window{Year: t.Year(), Month: t.Month()}, nil
}

// Key returns the "YYYY-MM" form used in state and log fields.
func (w Window) Key() string {
	return fmt.Sprintf("%04d-%02d", w.Year, int(w.Month))
}

// Next returns the following month.
func (w Window) Next() Window {
	return w.AddMonths(1)
}

// AddMonths returns the window n months after w (n may be negative).
func (w Window) AddMonths(n int) Window {
	t := time.Date(w.Year, w.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Window{Year: t.Year(), Month: t.Month()}
}

// Before reports whether w is strictly earlier than other.
func (w Window) Before(other Window) bool {
	return w.index() < other.index()
}

// Start returns the first instant of the window.
func (w Window) Start() time.Time {
	return time.Date(w.Year, w.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last second of the window's final day, matching the
// boundaries the billing API expects for a monthly metering period.
func (w Window) End() time.Time {
	return w.Start().AddDate(0, 1, 0).Add(-time.Second)
}

func (w Window) index() int {
	return w.Year*12 + int(w.Month) - 1
}
