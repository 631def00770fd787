package revenue

import (
	"time"
)

// Window is a closed time range [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Label is the month name used in reports, e.g. "Mar 2026".
func (w Window) Label() string {
	return w.Start.Format("Jan 2006")
}

// monthEndResolution keeps the closed upper bound representable by PostgreSQL
// timestamptz, which stores microseconds.
const monthEndResolution = time.Microsecond

// MonthWindow returns the calendar month in loc as a closed window ending one
// microsecond before the next month starts.
func MonthWindow(year int, month time.Month, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	next := start.AddDate(0, 1, 0)
	return Window{Start: start, End: next.Add(-monthEndResolution)}
}

// MonthOf returns the month window containing t, in loc.
func MonthOf(t time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return MonthWindow(t.Year(), t.Month(), loc)
}

// PreviousMonth returns the month window before w.
func (w Window) PreviousMonth() Window {
	prev := w.Start.AddDate(0, -1, 0)
	return MonthWindow(prev.Year(), prev.Month(), w.Start.Location())
}

// TrailingMonths returns n month windows ending with the month containing now,
// oldest first.
func TrailingMonths(now time.Time, n int, loc *time.Location) []Window {
	if n <= 0 {
		return nil
	}
	windows := make([]Window, n)
	w := MonthOf(now, loc)
	for i := n - 1; i >= 0; i-- {
		windows[i] = w
		w = w.PreviousMonth()
	}
	return windows
}
