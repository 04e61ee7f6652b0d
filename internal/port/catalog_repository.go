package port

import (
	"context"

	"github.com/croplink/marketplace/internal/core/domain"
)

// CatalogRepository owns catalog counters and the rental booking ledger. All
// supply mutation goes through Decrement/Increment and the booking methods;
// nothing else may touch the counters.
type CatalogRepository interface {
	// GetItem retrieves a catalog item by ID, or domain.ErrItemNotFound.
	GetItem(ctx context.Context, itemID string) (*domain.CatalogItem, error)

	// UpsertItem creates or replaces a catalog item (seeding, admin tooling).
	UpsertItem(ctx context.Context, item domain.CatalogItem) error

	// ListBookings returns the rental ledger rows whose windows overlap the
	// given window.
	ListBookings(ctx context.Context, itemID string, window domain.RentalWindow) ([]domain.Booking, error)

	// DecrementSupply conditionally subtracts from an inventory/listing
	// counter, returning domain.ErrSupplyConflict when supply is short.
	DecrementSupply(ctx context.Context, itemID string, qty int) error

	// IncrementSupply restores a counter (rollback on partial-commit failure).
	IncrementSupply(ctx context.Context, itemID string, qty int) error

	// InsertBooking appends a reservation to a rental item's ledger.
	InsertBooking(ctx context.Context, booking domain.Booking) error

	// DeleteBooking removes a ledger row (rollback on partial-commit failure).
	DeleteBooking(ctx context.Context, bookingID string) error
}
