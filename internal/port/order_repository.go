package port

import (
	"context"

	"github.com/croplink/marketplace/internal/core/domain"
)

// OrderRepository persists orders and their frozen lines.
type OrderRepository interface {
	// CreateOrder persists a new order with all of its lines.
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder retrieves an order by ID, or domain.ErrOrderNotFound.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// UpdateStatus applies a dispatcher-driven status transition.
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
}

// ShipmentRepository persists the dispatcher's shipment records.
type ShipmentRepository interface {
	CreateShipment(ctx context.Context, shipment domain.Shipment) error
	GetShipmentByOrder(ctx context.Context, orderID string) (*domain.Shipment, error)
}
