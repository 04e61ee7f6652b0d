package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DeliveryMode string

const (
	DeliveryModePickup   DeliveryMode = "PICKUP"
	DeliveryModeDelivery DeliveryMode = "DELIVERY"
)

func (m DeliveryMode) Valid() bool {
	return m == DeliveryModePickup || m == DeliveryModeDelivery
}

// SessionLine is a cart line priced at session-build time.
type SessionLine struct {
	ItemID    string          `json:"item_id"`
	ItemType  ItemType        `json:"item_type"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Window    *RentalWindow   `json:"rental_window,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func (l SessionLine) Key() LineKey {
	return LineKey{ItemID: l.ItemID, ItemType: l.ItemType, Window: l.Window}
}

// CheckoutSession is an ephemeral priced snapshot of the selected cart lines.
// It is a pure projection: it holds no lock and reserves nothing, and prices
// may drift until commit re-validates and re-prices against live catalog
// state.
type CheckoutSession struct {
	BuyerID      string          `json:"buyer_id"`
	Lines        []SessionLine   `json:"lines"`
	DeliveryMode DeliveryMode    `json:"delivery_mode"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
}
