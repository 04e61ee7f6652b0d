package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/croplink/marketplace/internal/core/domain"
	"github.com/croplink/marketplace/internal/port"
)

// CartService owns the durable per-buyer cart. Cart insertion is advisory: it
// checks availability best-effort but reserves nothing, and every check is
// repeated at commit time under the item locks.
type CartService struct {
	catalog port.CatalogRepository
	carts   port.CartRepository
	cache   port.CacheRepository
	now     func() time.Time
}

func NewCartService(catalog port.CatalogRepository, carts port.CartRepository, cache port.CacheRepository) *CartService {
	return &CartService{
		catalog: catalog,
		carts:   carts,
		cache:   cache,
		now:     time.Now,
	}
}

// Add puts an item in the buyer's cart, merging into an existing line with
// the same identity key. The merged quantity is checked against live
// availability, ignoring the line's own prior quantity as a reservation
// because it is not one.
func (s *CartService) Add(ctx context.Context, ownerID, itemID string, itemType domain.ItemType, quantity int, window *domain.RentalWindow) (*domain.CartLine, error) {
	if ownerID == "" {
		return nil, &domain.ValidationError{Field: "owner_id", Reason: "required"}
	}
	if !itemType.Valid() {
		return nil, &domain.ValidationError{Field: "item_type", Reason: "must be INVENTORY, LISTING, or RENTAL"}
	}
	if quantity < 1 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if itemType == domain.ItemTypeRental {
		if window == nil {
			return nil, &domain.ValidationError{Field: "rental_window", Reason: "required for rental items"}
		}
		w := domain.NewRentalWindow(window.Start, window.End)
		if err := w.Validate(s.now()); err != nil {
			return nil, err
		}
		window = &w
	} else {
		window = nil
	}

	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item.Type != itemType {
		return nil, &domain.ValidationError{Field: "item_type", Reason: "does not match catalog item"}
	}

	key := domain.LineKey{ItemID: itemID, ItemType: itemType, Window: window}
	merged := quantity
	existing, err := s.carts.FindLine(ctx, ownerID, key)
	if err != nil && !errors.Is(err, domain.ErrLineNotFound) {
		return nil, fmt.Errorf("find line: %w", err)
	}
	if existing != nil {
		merged += existing.Quantity
	}

	if err := s.checkAvailability(ctx, item, merged, window); err != nil {
		return nil, err
	}

	now := s.now()
	line := domain.CartLine{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		ItemID:    itemID,
		ItemType:  itemType,
		Quantity:  merged,
		Window:    window,
		AddedAt:   now,
		UpdatedAt: now,
	}
	if existing != nil {
		line.ID = existing.ID
		line.AddedAt = existing.AddedAt
	}
	if err := s.carts.SaveLine(ctx, line); err != nil {
		return nil, fmt.Errorf("save line: %w", err)
	}
	return &line, nil
}

// UpdateQuantity replaces a line's quantity after checking it against live
// availability.
func (s *CartService) UpdateQuantity(ctx context.Context, ownerID string, key domain.LineKey, newQty int) (*domain.CartLine, error) {
	if newQty < 1 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	line, err := s.carts.FindLine(ctx, ownerID, key)
	if err != nil {
		return nil, err
	}
	item, err := s.catalog.GetItem(ctx, line.ItemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if err := s.checkAvailability(ctx, item, newQty, line.Window); err != nil {
		return nil, err
	}

	line.Quantity = newQty
	line.UpdatedAt = s.now()
	if err := s.carts.SaveLine(ctx, *line); err != nil {
		return nil, fmt.Errorf("save line: %w", err)
	}
	return line, nil
}

// Remove deletes a single line from the cart.
func (s *CartService) Remove(ctx context.Context, ownerID string, key domain.LineKey) error {
	return s.carts.DeleteLine(ctx, ownerID, key)
}

// List returns the buyer's cart lines joined with current prices and
// availability. It is a best-effort snapshot: counter reads go through the
// cache when warm and never block on commit locks.
func (s *CartService) List(ctx context.Context, ownerID string) ([]domain.CartView, error) {
	lines, err := s.carts.ListLines(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}

	views := make([]domain.CartView, 0, len(lines))
	for _, line := range lines {
		item, err := s.catalog.GetItem(ctx, line.ItemID)
		if err != nil {
			return nil, fmt.Errorf("get item %s: %w", line.ItemID, err)
		}

		available, err := s.snapshotAvailability(ctx, item, line.Window)
		if err != nil {
			return nil, err
		}

		unit, total := priceLine(item, line.Quantity, line.Window)
		views = append(views, domain.CartView{
			Line:      line,
			Name:      item.Name,
			UnitPrice: unit,
			LineTotal: total,
			Available: available,
		})
	}
	return views, nil
}

// PruneAfterOrder removes exactly the purchased lines, leaving unselected
// lines intact.
func (s *CartService) PruneAfterOrder(ctx context.Context, ownerID string, purchased []domain.LineKey) error {
	return s.carts.DeleteLines(ctx, ownerID, purchased)
}

func (s *CartService) checkAvailability(ctx context.Context, item *domain.CatalogItem, quantity int, window *domain.RentalWindow) error {
	var bookings []domain.Booking
	if item.Type == domain.ItemTypeRental && window != nil {
		var err error
		bookings, err = s.catalog.ListBookings(ctx, item.ID, *window)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
	}
	avail, err := ResolveAvailability(item, bookings, quantity, window, s.now())
	if err != nil {
		return err
	}
	if !avail.OK {
		return &domain.AvailabilityError{
			ItemID:    item.ID,
			ItemType:  item.Type,
			Requested: quantity,
			Available: avail.Available,
		}
	}
	return nil
}

// snapshotAvailability serves cart reads. Counters come from the cache when
// warm; rental headroom is always computed from the ledger since it depends
// on the line's window.
func (s *CartService) snapshotAvailability(ctx context.Context, item *domain.CatalogItem, window *domain.RentalWindow) (int, error) {
	if item.Type == domain.ItemTypeRental {
		if window == nil {
			return item.FleetSize, nil
		}
		bookings, err := s.catalog.ListBookings(ctx, item.ID, *window)
		if err != nil {
			return 0, fmt.Errorf("list bookings: %w", err)
		}
		available := item.FleetSize - peakReserved(bookings, domain.NewRentalWindow(window.Start, window.End))
		if available < 0 {
			available = 0
		}
		return available, nil
	}

	if s.cache != nil {
		if qty, ok, err := s.cache.GetAvailability(ctx, item.ID); err == nil && ok {
			return qty, nil
		}
		// Cache errors are ignored; the catalog read below is authoritative.
		_ = s.cache.SetAvailability(ctx, item.ID, item.Supply)
	}
	return item.Supply, nil
}
