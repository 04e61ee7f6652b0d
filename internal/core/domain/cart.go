package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineKey identifies a cart line within one buyer's cart. Rentals carry the
// window as part of the identity so the same machine can sit in the cart
// twice over different date ranges.
type LineKey struct {
	ItemID   string        `json:"item_id"`
	ItemType ItemType      `json:"item_type"`
	Window   *RentalWindow `json:"rental_window,omitempty"`
}

func (k LineKey) Matches(line CartLine) bool {
	if k.ItemID != line.ItemID || k.ItemType != line.ItemType {
		return false
	}
	if k.Window == nil && line.Window == nil {
		return true
	}
	if k.Window == nil || line.Window == nil {
		return false
	}
	return k.Window.Equal(*line.Window)
}

// CartLine is one pending purchase in a buyer's cart. Adding a line is
// advisory only; nothing is reserved until commit.
type CartLine struct {
	ID        string
	OwnerID   string
	ItemID    string
	ItemType  ItemType
	Quantity  int
	Window    *RentalWindow
	AddedAt   time.Time
	UpdatedAt time.Time
}

func (l CartLine) Key() LineKey {
	return LineKey{ItemID: l.ItemID, ItemType: l.ItemType, Window: l.Window}
}

// CartView is a cart line joined with the catalog's current price and
// availability, as served by GET /cart. It is a best-effort snapshot.
type CartView struct {
	Line      CartLine
	Name      string
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Available int
}
