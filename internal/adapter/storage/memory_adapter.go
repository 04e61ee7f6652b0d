package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/croplink/marketplace/internal/core/domain"
)

// MemoryAdapter implements every storage port in memory behind one mutex.
// It backs unit and handler tests, and local development without MySQL/Redis.
type MemoryAdapter struct {
	mu        sync.Mutex
	items     map[string]domain.CatalogItem
	bookings  map[string]domain.Booking
	cartLines map[string]map[string]domain.CartLine // owner -> line id -> line
	orders    map[string]domain.Order
	shipments map[string]domain.Shipment // order id -> shipment
	idem      map[string]string
	avail     map[string]int
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		items:     make(map[string]domain.CatalogItem),
		bookings:  make(map[string]domain.Booking),
		cartLines: make(map[string]map[string]domain.CartLine),
		orders:    make(map[string]domain.Order),
		shipments: make(map[string]domain.Shipment),
		idem:      make(map[string]string),
		avail:     make(map[string]int),
	}
}

// --- CatalogRepository ---

func (m *MemoryAdapter) GetItem(ctx context.Context, itemID string) (*domain.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound)
	}
	return &item, nil
}

func (m *MemoryAdapter) UpsertItem(ctx context.Context, item domain.CatalogItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *MemoryAdapter) ListBookings(ctx context.Context, itemID string, window domain.RentalWindow) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.ItemID == itemID && b.Window.Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) DecrementSupply(ctx context.Context, itemID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound)
	}
	if item.Supply < qty {
		return domain.ErrSupplyConflict
	}
	item.Supply -= qty
	item.Version++
	m.items[itemID] = item
	return nil
}

func (m *MemoryAdapter) IncrementSupply(ctx context.Context, itemID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound)
	}
	item.Supply += qty
	item.Version++
	m.items[itemID] = item
	return nil
}

func (m *MemoryAdapter) InsertBooking(ctx context.Context, booking domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = booking
	return nil
}

func (m *MemoryAdapter) DeleteBooking(ctx context.Context, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bookings, bookingID)
	return nil
}

// --- CartRepository ---

func (m *MemoryAdapter) ListLines(ctx context.Context, ownerID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CartLine
	for _, line := range m.cartLines[ownerID] {
		out = append(out, line)
	}
	return out, nil
}

func (m *MemoryAdapter) FindLine(ctx context.Context, ownerID string, key domain.LineKey) (*domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, line := range m.cartLines[ownerID] {
		if key.Matches(line) {
			return &line, nil
		}
	}
	return nil, domain.ErrLineNotFound
}

func (m *MemoryAdapter) SaveLine(ctx context.Context, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cartLines[line.OwnerID] == nil {
		m.cartLines[line.OwnerID] = make(map[string]domain.CartLine)
	}
	m.cartLines[line.OwnerID][line.ID] = line
	return nil
}

func (m *MemoryAdapter) DeleteLine(ctx context.Context, ownerID string, key domain.LineKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, line := range m.cartLines[ownerID] {
		if key.Matches(line) {
			delete(m.cartLines[ownerID], id)
			return nil
		}
	}
	return domain.ErrLineNotFound
}

func (m *MemoryAdapter) DeleteLines(ctx context.Context, ownerID string, keys []domain.LineKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		for id, line := range m.cartLines[ownerID] {
			if key.Matches(line) {
				delete(m.cartLines[ownerID], id)
				break
			}
		}
	}
	return nil
}

// --- OrderRepository / ShipmentRepository ---

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return &order, nil
}

func (m *MemoryAdapter) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	order.Status = status
	m.orders[orderID] = order
	return nil
}

func (m *MemoryAdapter) CreateShipment(ctx context.Context, shipment domain.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipments[shipment.OrderID] = shipment
	return nil
}

func (m *MemoryAdapter) GetShipmentByOrder(ctx context.Context, orderID string) (*domain.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shipment, ok := m.shipments[orderID]
	if !ok {
		return nil, fmt.Errorf("shipment for order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return &shipment, nil
}

// --- CacheRepository ---

func (m *MemoryAdapter) ClaimIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.idem[key]; exists {
		return false, nil
	}
	m.idem[key] = ""
	return true, nil
}

func (m *MemoryAdapter) StoreIdempotencyResult(ctx context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idem[key] = orderID
	return nil
}

func (m *MemoryAdapter) GetIdempotencyResult(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idem[key], nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idem, key)
	return nil
}

func (m *MemoryAdapter) SetAvailability(ctx context.Context, itemID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avail[itemID] = qty
	return nil
}

func (m *MemoryAdapter) GetAvailability(ctx context.Context, itemID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.avail[itemID]
	return qty, ok, nil
}

func (m *MemoryAdapter) InvalidateAvailability(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.avail, itemID)
	return nil
}
