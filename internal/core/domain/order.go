package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingFulfillment OrderStatus = "PENDING_FULFILLMENT"
	OrderStatusScheduled          OrderStatus = "SCHEDULED"
	OrderStatusDelivered          OrderStatus = "DELIVERED"
	OrderStatusCancelled          OrderStatus = "CANCELLED"
)

// OrderLine is a frozen copy of catalog data at purchase time. Later catalog
// price changes never alter a placed order.
type OrderLine struct {
	ItemID    string          `json:"item_id"`
	ItemType  ItemType        `json:"item_type"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Window    *RentalWindow   `json:"rental_window,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Order is created only by a successful commit and is immutable afterwards
// except for status transitions driven by the delivery dispatcher.
type Order struct {
	ID            string          `json:"id"`
	BuyerID       string          `json:"buyer_id"`
	Lines         []OrderLine     `json:"lines"`
	DeliveryMode  DeliveryMode    `json:"delivery_mode"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "pending"
	ShipmentStatusAssigned  ShipmentStatus = "assigned"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
)

// Shipment is the dispatcher's record for a confirmed order.
type Shipment struct {
	ID        string
	OrderID   string
	Mode      DeliveryMode
	Status    ShipmentStatus
	CreatedAt time.Time
}
