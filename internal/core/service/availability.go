package service

import (
	"sort"
	"time"

	"github.com/croplink/marketplace/internal/core/domain"
)

// ResolveAvailability answers whether a request for requestedQty of the item
// is satisfiable right now. Inventory and listing items compare against their
// counter. Rental items compare against fleet headroom: the fleet size minus
// the peak concurrent reservation across the requested window.
func ResolveAvailability(item *domain.CatalogItem, bookings []domain.Booking, requestedQty int, window *domain.RentalWindow, now time.Time) (domain.Availability, error) {
	if requestedQty < 1 {
		return domain.Availability{}, &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	switch item.Type {
	case domain.ItemTypeInventory, domain.ItemTypeListing:
		return domain.Availability{OK: requestedQty <= item.Supply, Available: item.Supply}, nil

	case domain.ItemTypeRental:
		if window == nil {
			return domain.Availability{}, &domain.ValidationError{Field: "rental_window", Reason: "required for rental items"}
		}
		w := domain.NewRentalWindow(window.Start, window.End)
		if err := w.Validate(now); err != nil {
			return domain.Availability{}, err
		}
		available := item.FleetSize - peakReserved(bookings, w)
		if available < 0 {
			available = 0
		}
		return domain.Availability{OK: requestedQty <= available, Available: available}, nil

	default:
		return domain.Availability{}, &domain.ValidationError{Field: "item_type", Reason: "unknown item type"}
	}
}

// peakReserved computes the maximum concurrent reserved quantity over the
// requested window by sweeping the booking boundaries. Each overlapping
// booking contributes +qty at its (clamped) start day and -qty the day after
// its (clamped) end day; the end day itself counts as a full reserved day.
func peakReserved(bookings []domain.Booking, window domain.RentalWindow) int {
	type event struct {
		at    time.Time
		delta int
	}

	var events []event
	for _, b := range bookings {
		bw := domain.NewRentalWindow(b.Window.Start, b.Window.End)
		if !bw.Overlaps(window) {
			continue
		}
		start := bw.Start
		if start.Before(window.Start) {
			start = window.Start
		}
		end := bw.End
		if end.After(window.End) {
			end = window.End
		}
		events = append(events,
			event{at: start, delta: b.Quantity},
			event{at: end.AddDate(0, 0, 1), delta: -b.Quantity},
		)
	}

	// Releases sort before same-day starts so back-to-back bookings do not
	// produce a false peak.
	sort.Slice(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].delta < events[j].delta
	})

	running, peak := 0, 0
	for _, e := range events {
		running += e.delta
		if running > peak {
			peak = running
		}
	}
	return peak
}
