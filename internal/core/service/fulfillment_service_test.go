package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/croplink/marketplace/internal/adapter/storage"
	"github.com/croplink/marketplace/internal/core/domain"
	"github.com/croplink/marketplace/internal/port"
)

// dispatchRecorder captures fire-and-forget order notifications.
type dispatchRecorder struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (d *dispatchRecorder) OrderConfirmed(order domain.Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders = append(d.orders, order)
}

func (d *dispatchRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.orders)
}

// flakyCatalog forces a decrement conflict on chosen items, simulating a race
// lost to another process between re-validation and reservation.
type flakyCatalog struct {
	port.CatalogRepository
	failDecrement map[string]bool
}

func (f *flakyCatalog) DecrementSupply(ctx context.Context, itemID string, qty int) error {
	if f.failDecrement[itemID] {
		return domain.ErrSupplyConflict
	}
	return f.CatalogRepository.DecrementSupply(ctx, itemID, qty)
}

func newFulfillmentFixture(catalog port.CatalogRepository, mem *storage.MemoryAdapter, dispatcher port.DeliveryDispatcher) *FulfillmentService {
	svc := NewFulfillmentService(catalog, mem, mem, mem, dispatcher, time.Second)
	svc.now = func() time.Time { return testNow }
	return svc
}

func pickupSession(lines ...domain.SessionLine) *domain.CheckoutSession {
	return &domain.CheckoutSession{
		BuyerID:      "buyer-1",
		Lines:        lines,
		DeliveryMode: domain.DeliveryModePickup,
		CreatedAt:    testNow,
	}
}

func inventorySessionLine(qty int) domain.SessionLine {
	return domain.SessionLine{
		ItemID:    "seed-bag",
		ItemType:  domain.ItemTypeInventory,
		Name:      "Seed Bag",
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString("10.00"),
		LineTotal: decimal.RequireFromString("10.00").Mul(decimal.NewFromInt(int64(qty))),
	}
}

func rentalSessionLine(start, end, qty int) domain.SessionLine {
	return domain.SessionLine{
		ItemID:    "tractor",
		ItemType:  domain.ItemTypeRental,
		Name:      "Tractor",
		Quantity:  qty,
		Window:    windowOf(start, end),
		UnitPrice: decimal.RequireFromString("95.00"),
	}
}

func TestCommit_Success(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	dispatcher := &dispatchRecorder{}
	svc := newFulfillmentFixture(mem, mem, dispatcher)
	ctx := context.Background()

	seedItem(t, mem, *inventoryItem(5))
	mem.SaveLine(ctx, domain.CartLine{ID: "l1", OwnerID: "buyer-1", ItemID: "seed-bag", ItemType: domain.ItemTypeInventory, Quantity: 3})

	order, err := svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(3)), "cash-on-delivery", "key-1")
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if order.Status != domain.OrderStatusPendingFulfillment {
		t.Errorf("status = %s, want PENDING_FULFILLMENT", order.Status)
	}
	if !order.Total.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("total = %s, want 30.00", order.Total)
	}

	item, _ := mem.GetItem(ctx, "seed-bag")
	if item.Supply != 2 {
		t.Errorf("supply = %d, want 2", item.Supply)
	}

	lines, _ := mem.ListLines(ctx, "buyer-1")
	if len(lines) != 0 {
		t.Errorf("cart lines = %d, want 0 (purchased line pruned)", len(lines))
	}

	if dispatcher.count() != 1 {
		t.Errorf("dispatched = %d, want 1", dispatcher.count())
	}

	stored, err := mem.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if len(stored.Lines) != 1 || stored.Lines[0].Quantity != 3 {
		t.Errorf("stored lines = %+v", stored.Lines)
	}
}

func TestCommit_RepricesFromLiveCatalog(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	svc := newFulfillmentFixture(mem, mem, nil)
	ctx := context.Background()

	seedItem(t, mem, *inventoryItem(5))
	session := pickupSession(inventorySessionLine(2))

	// Price changes after the session snapshot; the order freezes the live
	// price, not the stale one.
	item := *inventoryItem(5)
	item.UnitPrice = decimal.RequireFromString("12.50")
	seedItem(t, mem, item)

	order, err := svc.Commit(ctx, "buyer-1", session, "card", "key-1")
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if !order.Lines[0].UnitPrice.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("unit price = %s, want 12.50", order.Lines[0].UnitPrice)
	}
	if !order.Total.Equal(decimal.RequireFromString("25.00")) {
		t.Errorf("total = %s, want 25.00", order.Total)
	}
}

func TestCommit_RejectsInsufficientSupply(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	svc := newFulfillmentFixture(mem, mem, nil)
	ctx := context.Background()

	seedItem(t, mem, *inventoryItem(5))

	_, err := svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(6)), "card", "key-1")
	var availErr *domain.AvailabilityError
	if !errors.As(err, &availErr) {
		t.Fatalf("expected AvailabilityError, got %v", err)
	}
	if availErr.Available != 5 {
		t.Errorf("available = %d, want 5", availErr.Available)
	}

	item, _ := mem.GetItem(ctx, "seed-bag")
	if item.Supply != 5 {
		t.Errorf("supply = %d, want 5 (untouched)", item.Supply)
	}

	// The rejection released the idempotency key; a corrected retry with the
	// same key goes through.
	if _, err := svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(5)), "card", "key-1"); err != nil {
		t.Errorf("corrected retry failed: %v", err)
	}
}

func TestCommit_ConcurrentNoOversell(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	svc := newFulfillmentFixture(mem, mem, nil)
	ctx := context.Background()

	initialSupply := 3
	totalRequests := 10
	item := *inventoryItem(initialSupply)
	seedItem(t, mem, item)

	var committed atomic.Int32
	var conflicted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			session := pickupSession(inventorySessionLine(1))
			_, err := svc.Commit(ctx, "buyer-1", session, "card", "key-"+string(rune('a'+n)))
			if err == nil {
				committed.Add(1)
				return
			}
			var availErr *domain.AvailabilityError
			if errors.As(err, &availErr) {
				conflicted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if committed.Load() != int32(initialSupply) {
		t.Errorf("committed = %d, want %d", committed.Load(), initialSupply)
	}
	if conflicted.Load() != int32(totalRequests-initialSupply) {
		t.Errorf("conflicted = %d, want %d", conflicted.Load(), totalRequests-initialSupply)
	}

	final, _ := mem.GetItem(ctx, "seed-bag")
	if final.Supply != 0 {
		t.Errorf("final supply = %d, want 0", final.Supply)
	}
}

func TestCommit_ConcurrentRentalNoDoubleBooking(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	svc := newFulfillmentFixture(mem, mem, nil)
	ctx := context.Background()

	seedItem(t, mem, *rentalItem(1))

	var committed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			session := pickupSession(rentalSessionLine(5, 7, 1))
			if _, err := svc.Commit(ctx, "buyer-1", session, "card", "rental-key-"+string(rune('a'+n))); err == nil {
				committed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if committed.Load() != 1 {
		t.Errorf("committed = %d, want exactly 1", committed.Load())
	}

	bookings, _ := mem.ListBookings(ctx, "tractor", *windowOf(5, 7))
	if len(bookings) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(bookings))
	}
}

func TestCommit_IdempotentRetry(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	svc := newFulfillmentFixture(mem, mem, nil)
	ctx := context.Background()

	seedItem(t, mem, *inventoryItem(5))

	first, err := svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(2)), "card", "retry-key")
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	second, err := svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(2)), "card", "retry-key")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("retry returned order %s, want original %s", second.ID, first.ID)
	}

	item, _ := mem.GetItem(ctx, "seed-bag")
	if item.Supply != 3 {
		t.Errorf("supply = %d, want 3 (no second decrement)", item.Supply)
	}
}

func TestCommit_PartialFailureRollsBack(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	ctx := context.Background()

	seedItem(t, mem, *inventoryItem(5))
	flaky := *inventoryItem(5)
	flaky.ID = "fertilizer"
	flaky.Name = "Fertilizer"
	seedItem(t, mem, flaky)

	catalog := &flakyCatalog{CatalogRepository: mem, failDecrement: map[string]bool{"fertilizer": true}}
	svc := newFulfillmentFixture(catalog, mem, nil)

	fertLine := inventorySessionLine(2)
	fertLine.ItemID = "fertilizer"
	fertLine.Name = "Fertilizer"

	_, err := svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(3), fertLine), "card", "key-1")
	var availErr *domain.AvailabilityError
	if !errors.As(err, &availErr) {
		t.Fatalf("expected AvailabilityError, got %v", err)
	}
	if availErr.ItemID != "fertilizer" {
		t.Errorf("conflicting item = %s, want fertilizer", availErr.ItemID)
	}

	// The seed-bag decrement that had already succeeded was compensated.
	item, _ := mem.GetItem(ctx, "seed-bag")
	if item.Supply != 5 {
		t.Errorf("seed-bag supply = %d, want 5 after rollback", item.Supply)
	}

	if _, err := mem.GetOrder(ctx, "any"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("unexpected order lookup result: %v", err)
	}
}

func TestCommit_RentalRollbackRemovesBooking(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	ctx := context.Background()

	seedItem(t, mem, *rentalItem(2))
	blocked := *inventoryItem(5)
	blocked.ID = "fertilizer"
	seedItem(t, mem, blocked)

	catalog := &flakyCatalog{CatalogRepository: mem, failDecrement: map[string]bool{"fertilizer": true}}
	svc := newFulfillmentFixture(catalog, mem, nil)

	fertLine := inventorySessionLine(1)
	fertLine.ItemID = "fertilizer"

	// Rental reserves first, then the counter line loses its race; the
	// booking must be deleted again.
	_, err := svc.Commit(ctx, "buyer-1", pickupSession(rentalSessionLine(5, 7, 1), fertLine), "card", "key-1")
	var availErr *domain.AvailabilityError
	if !errors.As(err, &availErr) {
		t.Fatalf("expected AvailabilityError, got %v", err)
	}

	bookings, _ := mem.ListBookings(ctx, "tractor", *windowOf(5, 7))
	if len(bookings) != 0 {
		t.Errorf("ledger rows = %d, want 0 after rollback", len(bookings))
	}
}

func TestCommit_ReportsEveryConflictingLine(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	svc := newFulfillmentFixture(mem, mem, nil)
	ctx := context.Background()

	seedItem(t, mem, *inventoryItem(1))
	second := *inventoryItem(1)
	second.ID = "fertilizer"
	seedItem(t, mem, second)

	fertLine := inventorySessionLine(4)
	fertLine.ItemID = "fertilizer"

	_, err := svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(3), fertLine), "card", "key-1")
	if err == nil {
		t.Fatal("expected rejection")
	}
	for _, id := range []string{"seed-bag", "fertilizer"} {
		if !containsConflict(err, id) {
			t.Errorf("rejection does not identify line %s: %v", id, err)
		}
	}
}

func containsConflict(err error, itemID string) bool {
	var availErr *domain.AvailabilityError
	if errors.As(err, &availErr) && availErr.ItemID == itemID {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, sub := range joined.Unwrap() {
			if containsConflict(sub, itemID) {
				return true
			}
		}
	}
	return false
}

func TestCommit_BusyWhenItemLocked(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	svc := newFulfillmentFixture(mem, mem, nil)
	svc.lockTimeout = 50 * time.Millisecond
	ctx := context.Background()

	seedItem(t, mem, *inventoryItem(5))

	release, err := svc.locks.acquire(ctx, []string{"seed-bag"})
	if err != nil {
		t.Fatalf("setup lock failed: %v", err)
	}

	_, err = svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(1)), "card", "busy-key")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	release()

	// The busy rejection released the key, so the same key succeeds once the
	// lock is free.
	if _, err := svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(1)), "card", "busy-key"); err != nil {
		t.Errorf("retry after busy failed: %v", err)
	}
}

func TestCommit_MultiItemCommitsDoNotDeadlock(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	svc := newFulfillmentFixture(mem, mem, nil)
	ctx := context.Background()

	seedItem(t, mem, *inventoryItem(100))
	second := *inventoryItem(100)
	second.ID = "fertilizer"
	seedItem(t, mem, second)

	fertLine := inventorySessionLine(1)
	fertLine.ItemID = "fertilizer"

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Alternate line order so lock acquisition order would differ
			// without the sorted discipline.
			var session *domain.CheckoutSession
			if n%2 == 0 {
				session = pickupSession(inventorySessionLine(1), fertLine)
			} else {
				session = pickupSession(fertLine, inventorySessionLine(1))
			}
			if _, err := svc.Commit(ctx, "buyer-1", session, "card", "multi-"+string(rune('a'+n))); err != nil {
				t.Errorf("commit %d failed: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	item, _ := mem.GetItem(ctx, "seed-bag")
	if item.Supply != 80 {
		t.Errorf("seed-bag supply = %d, want 80", item.Supply)
	}
}

func TestCommit_InputValidation(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	svc := newFulfillmentFixture(mem, mem, nil)
	ctx := context.Background()

	if _, err := svc.Commit(ctx, "buyer-1", nil, "card", "k"); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("nil session: got %v", err)
	}
	if _, err := svc.Commit(ctx, "buyer-1", pickupSession(), "card", "k"); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("empty session: got %v", err)
	}

	var validationErr *domain.ValidationError
	if _, err := svc.Commit(ctx, "buyer-1", pickupSession(inventorySessionLine(1)), "card", ""); !errors.As(err, &validationErr) {
		t.Errorf("missing idempotency key: got %v", err)
	}
	if _, err := svc.Commit(ctx, "", pickupSession(inventorySessionLine(1)), "card", "k"); !errors.As(err, &validationErr) {
		t.Errorf("missing buyer: got %v", err)
	}

	badLine := inventorySessionLine(0)
	if _, err := svc.Commit(ctx, "buyer-1", pickupSession(badLine), "card", "k"); !errors.As(err, &validationErr) {
		t.Errorf("zero quantity line: got %v", err)
	}
}
