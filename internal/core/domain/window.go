package domain

import "time"

// RentalWindow is an inclusive day-granularity date range. Both endpoints are
// billable rental days.
type RentalWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// day truncates to midnight UTC so that comparisons and billing work on
// calendar days regardless of the clock time callers pass in.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func NewRentalWindow(start, end time.Time) RentalWindow {
	return RentalWindow{Start: day(start), End: day(end)}
}

// Days returns the billable day count, counting both endpoints.
func (w RentalWindow) Days() int {
	return int(day(w.End).Sub(day(w.Start)).Hours()/24) + 1
}

// Overlaps reports whether the two inclusive windows share at least one day.
func (w RentalWindow) Overlaps(other RentalWindow) bool {
	return !day(w.Start).After(day(other.End)) && !day(other.Start).After(day(w.End))
}

func (w RentalWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

func (w RentalWindow) Equal(other RentalWindow) bool {
	return day(w.Start).Equal(day(other.Start)) && day(w.End).Equal(day(other.End))
}

// Validate rejects malformed windows before any availability math runs.
// An inverted or zero-value window is an input error, and a window that ends
// before today cannot be rented. A same-day window is valid and bills one day.
func (w RentalWindow) Validate(now time.Time) error {
	if w.Start.IsZero() || w.End.IsZero() {
		return &ValidationError{Field: "rental_window", Reason: "start and end dates are required"}
	}
	if day(w.End).Before(day(w.Start)) {
		return &ValidationError{Field: "rental_window", Reason: "end date before start date"}
	}
	if day(w.End).Before(day(now)) {
		return &ValidationError{Field: "rental_window", Reason: "window is entirely in the past"}
	}
	return nil
}
