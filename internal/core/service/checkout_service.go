package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/croplink/marketplace/internal/core/domain"
	"github.com/croplink/marketplace/internal/port"
)

var ErrEmptySelection = errors.New("no cart lines selected")

// CheckoutService builds priced, ephemeral checkout sessions. A session is a
// pure projection: it mutates nothing and holds no lock, and its prices may
// drift until commit re-prices from live catalog state.
type CheckoutService struct {
	catalog     port.CatalogRepository
	carts       port.CartRepository
	deliveryFee decimal.Decimal
	now         func() time.Time
}

func NewCheckoutService(catalog port.CatalogRepository, carts port.CartRepository, deliveryFee decimal.Decimal) *CheckoutService {
	return &CheckoutService{
		catalog:     catalog,
		carts:       carts,
		deliveryFee: deliveryFee,
		now:         time.Now,
	}
}

// Build prices the selected subset of the buyer's cart lines for
// confirmation.
func (s *CheckoutService) Build(ctx context.Context, ownerID string, selected []domain.LineKey, mode domain.DeliveryMode) (*domain.CheckoutSession, error) {
	if !mode.Valid() {
		return nil, &domain.ValidationError{Field: "delivery_mode", Reason: "must be PICKUP or DELIVERY"}
	}
	if len(selected) == 0 {
		return nil, ErrEmptySelection
	}

	lines, err := s.carts.ListLines(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}

	var picked []domain.CartLine
	for _, key := range selected {
		found := false
		for _, line := range lines {
			if key.Matches(line) {
				picked = append(picked, line)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("line %s/%s: %w", key.ItemType, key.ItemID, domain.ErrLineNotFound)
		}
	}
	if len(picked) == 0 {
		return nil, ErrEmptySelection
	}

	session := &domain.CheckoutSession{
		BuyerID:      ownerID,
		DeliveryMode: mode,
		Subtotal:     decimal.Zero,
		DeliveryFee:  decimal.Zero,
		CreatedAt:    s.now(),
	}
	for _, line := range picked {
		item, err := s.catalog.GetItem(ctx, line.ItemID)
		if err != nil {
			return nil, fmt.Errorf("get item %s: %w", line.ItemID, err)
		}
		unit, total := priceLine(item, line.Quantity, line.Window)
		session.Lines = append(session.Lines, domain.SessionLine{
			ItemID:    line.ItemID,
			ItemType:  line.ItemType,
			Name:      item.Name,
			Quantity:  line.Quantity,
			Window:    line.Window,
			UnitPrice: unit,
			LineTotal: total,
		})
		session.Subtotal = session.Subtotal.Add(total)
	}

	if mode == domain.DeliveryModeDelivery {
		session.DeliveryFee = s.deliveryFee
	}
	session.Total = session.Subtotal.Add(session.DeliveryFee)
	return session, nil
}

// priceLine computes a line's unit price and total from live catalog fields.
// Rental lines bill the daily rate over every day of the window, both
// endpoints included.
func priceLine(item *domain.CatalogItem, quantity int, window *domain.RentalWindow) (unit, total decimal.Decimal) {
	unit = item.UnitPrice
	qty := decimal.NewFromInt(int64(quantity))
	if item.Type == domain.ItemTypeRental && window != nil {
		days := decimal.NewFromInt(int64(window.Days()))
		return unit, unit.Mul(days).Mul(qty)
	}
	return unit, unit.Mul(qty)
}
