package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/croplink/marketplace/internal/core/domain"
	"github.com/croplink/marketplace/internal/port"
)

var (
	// ErrDuplicateRequest means the idempotency key is claimed by a commit
	// still in flight.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrBusy means the commit could not acquire every affected item's
	// critical section within the timeout. Safe to retry.
	ErrBusy = errors.New("catalog busy, retry")
)

const defaultLockTimeout = 3 * time.Second

// FulfillmentService converts a checkout session into an immutable order
// while atomically reserving the underlying supply. Re-validation and
// reservation for an item happen under that item's continuously held critical
// section, and a commit touching several items takes all their sections in
// sorted id order before mutating anything.
type FulfillmentService struct {
	catalog     port.CatalogRepository
	carts       port.CartRepository
	orders      port.OrderRepository
	cache       port.CacheRepository
	dispatcher  port.DeliveryDispatcher
	locks       *itemLocks
	lockTimeout time.Duration
	now         func() time.Time
}

func NewFulfillmentService(
	catalog port.CatalogRepository,
	carts port.CartRepository,
	orders port.OrderRepository,
	cache port.CacheRepository,
	dispatcher port.DeliveryDispatcher,
	lockTimeout time.Duration,
) *FulfillmentService {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &FulfillmentService{
		catalog:     catalog,
		carts:       carts,
		orders:      orders,
		cache:       cache,
		dispatcher:  dispatcher,
		locks:       newItemLocks(),
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// Commit is all-or-nothing across the session's lines: every line is
// re-validated against current catalog state, then every reservation is
// applied; a race lost on any line rolls back every reservation made so far
// and reports the conflicting line. A retried idempotency key after a
// successful commit returns the original order with no second reservation.
func (s *FulfillmentService) Commit(ctx context.Context, buyerID string, session *domain.CheckoutSession, paymentMethod, idempotencyKey string) (*domain.Order, error) {
	if err := validateCommitInput(buyerID, session, idempotencyKey, s.now()); err != nil {
		return nil, err
	}
	for i := range session.Lines {
		if w := session.Lines[i].Window; w != nil {
			normalized := domain.NewRentalWindow(w.Start, w.End)
			session.Lines[i].Window = &normalized
		}
	}

	claimed, err := s.cache.ClaimIdempotency(ctx, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency claim: %w", err)
	}
	if !claimed {
		orderID, err := s.cache.GetIdempotencyResult(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if orderID != "" {
			return s.orders.GetOrder(ctx, orderID)
		}
		return nil, ErrDuplicateRequest
	}

	order, err := s.commitClaimed(ctx, buyerID, session, paymentMethod)
	if err != nil {
		// A rejected commit frees its key so the client can fix the cart and
		// retry with the same key.
		s.releaseClaim(idempotencyKey)
		return nil, err
	}

	if err := s.cache.StoreIdempotencyResult(ctx, idempotencyKey, order.ID); err != nil {
		log.Printf("fulfillment: failed to store idempotency result for order %s: %v", order.ID, err)
	}

	if s.dispatcher != nil {
		s.dispatcher.OrderConfirmed(*order)
	}
	return order, nil
}

func (s *FulfillmentService) commitClaimed(ctx context.Context, buyerID string, session *domain.CheckoutSession, paymentMethod string) (*domain.Order, error) {
	itemIDs := make([]string, 0, len(session.Lines))
	for _, line := range session.Lines {
		itemIDs = append(itemIDs, line.ItemID)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	release, err := s.locks.acquire(lockCtx, itemIDs)
	cancel()
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-validate every line against current catalog state before touching
	// any counter, so every conflicting line is reported, not just the first.
	items := make(map[string]*domain.CatalogItem, len(session.Lines))
	var conflicts []error
	for _, line := range session.Lines {
		item, ok := items[line.ItemID]
		if !ok {
			item, err = s.catalog.GetItem(ctx, line.ItemID)
			if err != nil {
				return nil, fmt.Errorf("get item %s: %w", line.ItemID, err)
			}
			items[line.ItemID] = item
		}
		if item.Type != line.ItemType {
			return nil, &domain.ValidationError{Field: "item_type", Reason: "does not match catalog item"}
		}
		if err := s.validateLine(ctx, item, line); err != nil {
			var availErr *domain.AvailabilityError
			if errors.As(err, &availErr) {
				conflicts = append(conflicts, err)
				continue
			}
			return nil, err
		}
	}
	if len(conflicts) > 0 {
		return nil, errors.Join(conflicts...)
	}

	orderID := uuid.New().String()
	reserved, err := s.reserveAll(ctx, orderID, session.Lines, items)
	if err != nil {
		s.rollback(reserved)
		return nil, err
	}

	now := s.now()
	order := &domain.Order{
		ID:            orderID,
		BuyerID:       buyerID,
		DeliveryMode:  session.DeliveryMode,
		Subtotal:      decimal.Zero,
		DeliveryFee:   session.DeliveryFee,
		PaymentMethod: paymentMethod,
		Status:        domain.OrderStatusPendingFulfillment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, line := range session.Lines {
		// Live repricing: frozen prices come from the catalog state read
		// under the locks, not from the session snapshot.
		unit, total := priceLine(items[line.ItemID], line.Quantity, line.Window)
		order.Lines = append(order.Lines, domain.OrderLine{
			ItemID:    line.ItemID,
			ItemType:  line.ItemType,
			Name:      items[line.ItemID].Name,
			Quantity:  line.Quantity,
			Window:    line.Window,
			UnitPrice: unit,
			LineTotal: total,
		})
		order.Subtotal = order.Subtotal.Add(total)
	}
	order.Total = order.Subtotal.Add(order.DeliveryFee)

	if err := s.orders.CreateOrder(ctx, *order); err != nil {
		s.rollback(reserved)
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.invalidateSnapshots(session.Lines)

	purchased := make([]domain.LineKey, 0, len(session.Lines))
	for _, line := range session.Lines {
		purchased = append(purchased, line.Key())
	}
	if err := s.carts.DeleteLines(ctx, buyerID, purchased); err != nil {
		// The order stands; a stale cart line is re-validated on its next
		// commit anyway.
		log.Printf("fulfillment: failed to prune cart for order %s: %v", orderID, err)
	}

	return order, nil
}

func (s *FulfillmentService) validateLine(ctx context.Context, item *domain.CatalogItem, line domain.SessionLine) error {
	var bookings []domain.Booking
	if item.Type == domain.ItemTypeRental && line.Window != nil {
		var err error
		bookings, err = s.catalog.ListBookings(ctx, item.ID, *line.Window)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
	}
	avail, err := ResolveAvailability(item, bookings, line.Quantity, line.Window, s.now())
	if err != nil {
		return err
	}
	if !avail.OK {
		return &domain.AvailabilityError{
			ItemID:    item.ID,
			ItemType:  item.Type,
			Requested: line.Quantity,
			Available: avail.Available,
		}
	}
	return nil
}

// reservation is one applied supply mutation with its compensating action.
type reservation struct {
	undo func(ctx context.Context) error
	desc string
}

// reserveAll applies every line's reservation in order, returning the undo
// stack built so far alongside any failure.
func (s *FulfillmentService) reserveAll(ctx context.Context, orderID string, lines []domain.SessionLine, items map[string]*domain.CatalogItem) ([]reservation, error) {
	var reserved []reservation
	for _, line := range lines {
		item := items[line.ItemID]
		switch item.Type {
		case domain.ItemTypeInventory, domain.ItemTypeListing:
			if err := s.catalog.DecrementSupply(ctx, line.ItemID, line.Quantity); err != nil {
				if errors.Is(err, domain.ErrSupplyConflict) {
					return reserved, s.conflictFor(ctx, item, line)
				}
				return reserved, fmt.Errorf("decrement %s: %w", line.ItemID, err)
			}
			itemID, qty := line.ItemID, line.Quantity
			reserved = append(reserved, reservation{
				desc: "supply " + itemID,
				undo: func(ctx context.Context) error {
					return s.catalog.IncrementSupply(ctx, itemID, qty)
				},
			})

		case domain.ItemTypeRental:
			// The ledger read includes bookings inserted earlier in this
			// commit, so two lines renting the same item over overlapping
			// windows cannot jointly exceed the fleet.
			if err := s.validateLine(ctx, item, line); err != nil {
				return reserved, err
			}
			booking := domain.Booking{
				ID:        uuid.New().String(),
				ItemID:    line.ItemID,
				OrderID:   orderID,
				Window:    *line.Window,
				Quantity:  line.Quantity,
				CreatedAt: s.now(),
			}
			if err := s.catalog.InsertBooking(ctx, booking); err != nil {
				return reserved, fmt.Errorf("insert booking for %s: %w", line.ItemID, err)
			}
			bookingID := booking.ID
			reserved = append(reserved, reservation{
				desc: "booking " + bookingID,
				undo: func(ctx context.Context) error {
					return s.catalog.DeleteBooking(ctx, bookingID)
				},
			})
		}
	}
	return reserved, nil
}

// conflictFor re-reads the item so the rejection carries the quantity
// actually available at the moment the race was lost.
func (s *FulfillmentService) conflictFor(ctx context.Context, item *domain.CatalogItem, line domain.SessionLine) error {
	available := 0
	if fresh, err := s.catalog.GetItem(ctx, item.ID); err == nil {
		available = fresh.Supply
	}
	return &domain.AvailabilityError{
		ItemID:    item.ID,
		ItemType:  item.Type,
		Requested: line.Quantity,
		Available: available,
	}
}

// rollback compensates every applied reservation, newest first. It runs on a
// fresh context so a cancelled request cannot strand reserved supply.
func (s *FulfillmentService) rollback(reserved []reservation) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(reserved) - 1; i >= 0; i-- {
		if err := reserved[i].undo(ctx); err != nil {
			log.Printf("fulfillment: CRITICAL rollback of %s failed: %v", reserved[i].desc, err)
		}
	}
}

func (s *FulfillmentService) releaseClaim(idempotencyKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cache.ReleaseIdempotency(ctx, idempotencyKey); err != nil {
		log.Printf("fulfillment: failed to release idempotency key: %v", err)
	}
}

func (s *FulfillmentService) invalidateSnapshots(lines []domain.SessionLine) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, line := range lines {
		if line.ItemType == domain.ItemTypeRental {
			continue
		}
		if err := s.cache.InvalidateAvailability(ctx, line.ItemID); err != nil {
			log.Printf("fulfillment: failed to invalidate availability for %s: %v", line.ItemID, err)
		}
	}
}

func validateCommitInput(buyerID string, session *domain.CheckoutSession, idempotencyKey string, now time.Time) error {
	if buyerID == "" {
		return &domain.ValidationError{Field: "buyer_id", Reason: "required"}
	}
	if idempotencyKey == "" {
		return &domain.ValidationError{Field: "idempotency_key", Reason: "required"}
	}
	if session == nil || len(session.Lines) == 0 {
		return ErrEmptySelection
	}
	if !session.DeliveryMode.Valid() {
		return &domain.ValidationError{Field: "delivery_mode", Reason: "must be PICKUP or DELIVERY"}
	}
	for _, line := range session.Lines {
		if line.Quantity < 1 {
			return &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
		}
		if !line.ItemType.Valid() {
			return &domain.ValidationError{Field: "item_type", Reason: "must be INVENTORY, LISTING, or RENTAL"}
		}
		if line.ItemType == domain.ItemTypeRental {
			if line.Window == nil {
				return &domain.ValidationError{Field: "rental_window", Reason: "required for rental items"}
			}
			if err := line.Window.Validate(now); err != nil {
				return err
			}
		}
	}
	return nil
}
