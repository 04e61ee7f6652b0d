package port

import (
	"context"

	"github.com/croplink/marketplace/internal/core/domain"
)

// CartRepository is the durable per-buyer cart store. It is the authoritative
// cart; any client-side mirror is presentation-layer only.
type CartRepository interface {
	// ListLines returns every cart line owned by the buyer.
	ListLines(ctx context.Context, ownerID string) ([]domain.CartLine, error)

	// FindLine returns the line matching the identity key, or
	// domain.ErrLineNotFound.
	FindLine(ctx context.Context, ownerID string, key domain.LineKey) (*domain.CartLine, error)

	// SaveLine inserts a new line or updates the quantity of an existing one.
	SaveLine(ctx context.Context, line domain.CartLine) error

	// DeleteLine removes the line matching the key.
	DeleteLine(ctx context.Context, ownerID string, key domain.LineKey) error

	// DeleteLines removes exactly the given lines, leaving the rest of the
	// cart intact.
	DeleteLines(ctx context.Context, ownerID string, keys []domain.LineKey) error
}
