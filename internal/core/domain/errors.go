package domain

import (
	"errors"
	"fmt"
)

// ErrSupplyConflict is returned by catalog storage when a conditional
// decrement finds less supply than requested. The fulfillment engine maps it
// onto an AvailabilityError for the conflicting line.
var ErrSupplyConflict = errors.New("supply conflict")

// ErrItemNotFound is returned when a catalog item id does not exist.
var ErrItemNotFound = errors.New("catalog item not found")

// ErrOrderNotFound is returned when an order id does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrLineNotFound is returned when a cart line key does not match any line.
var ErrLineNotFound = errors.New("cart line not found")

// ValidationError reports malformed input, rejected before any catalog lock
// or counter is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AvailabilityError reports insufficient stock, capacity, or rental headroom
// for a specific item, carrying the actually-available quantity so callers
// can suggest a correction.
type AvailabilityError struct {
	ItemID    string
	ItemType  ItemType
	Requested int
	Available int
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("item %s: requested %d, available %d", e.ItemID, e.Requested, e.Available)
}
