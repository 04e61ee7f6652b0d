package port

import "github.com/croplink/marketplace/internal/core/domain"

// DeliveryDispatcher receives confirmed orders. Notification is
// fire-and-forget: dispatcher failure never rolls back a committed order.
type DeliveryDispatcher interface {
	OrderConfirmed(order domain.Order)
}
