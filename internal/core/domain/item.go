package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemType string

const (
	ItemTypeInventory ItemType = "INVENTORY"
	ItemTypeListing   ItemType = "LISTING"
	ItemTypeRental    ItemType = "RENTAL"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeInventory, ItemTypeListing, ItemTypeRental:
		return true
	}
	return false
}

// CatalogItem is the tagged union over the three supply sources. Supply is
// the mutable counter for inventory stock and listing capacity; rentals use
// FleetSize plus the booking ledger instead, and UnitPrice is the daily rate.
type CatalogItem struct {
	ID          string
	Type        ItemType
	Name        string
	UnitPrice   decimal.Decimal
	Supply      int
	FleetSize   int
	HarvestedAt time.Time // listings only, informational
	ExpiryDays  int       // listings only, informational
	Version     int       // optimistic locking
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Booking is one row of a rental item's booking ledger.
type Booking struct {
	ID        string
	ItemID    string
	OrderID   string
	Window    RentalWindow
	Quantity  int
	CreatedAt time.Time
}

// Availability is the resolver's answer for one item and one request.
type Availability struct {
	OK        bool
	Available int
}
