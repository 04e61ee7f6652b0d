package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/croplink/marketplace/internal/core/domain"
)

// MySQLAdapter is the durable store for catalog counters, the rental booking
// ledger, carts, orders, and shipments. Counter decrements are conditional
// (`WHERE supply >= ?`) with a rows-affected check, the cross-process
// backstop against oversell.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetItem(ctx context.Context, itemID string) (*domain.CatalogItem, error) {
	var (
		item        domain.CatalogItem
		harvestedAt sql.NullTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, item_type, name, unit_price, supply, fleet_size, harvested_at, expiry_days, version, created_at, updated_at
		FROM catalog_items WHERE id = ?`, itemID,
	).Scan(&item.ID, &item.Type, &item.Name, &item.UnitPrice, &item.Supply, &item.FleetSize,
		&harvestedAt, &item.ExpiryDays, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	if harvestedAt.Valid {
		item.HarvestedAt = harvestedAt.Time
	}
	return &item, nil
}

func (m *MySQLAdapter) UpsertItem(ctx context.Context, item domain.CatalogItem) error {
	var harvestedAt any
	if !item.HarvestedAt.IsZero() {
		harvestedAt = item.HarvestedAt
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO catalog_items (id, item_type, name, unit_price, supply, fleet_size, harvested_at, expiry_days, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON DUPLICATE KEY UPDATE
			item_type = VALUES(item_type), name = VALUES(name), unit_price = VALUES(unit_price),
			supply = VALUES(supply), fleet_size = VALUES(fleet_size),
			harvested_at = VALUES(harvested_at), expiry_days = VALUES(expiry_days),
			version = version + 1, updated_at = NOW()`,
		item.ID, item.Type, item.Name, item.UnitPrice, item.Supply, item.FleetSize, harvestedAt, item.ExpiryDays,
	)
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DecrementSupply(ctx context.Context, itemID string, qty int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE catalog_items
		SET supply = supply - ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND supply >= ?`,
		qty, itemID, qty,
	)
	if err != nil {
		return fmt.Errorf("decrement supply: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := m.GetItem(ctx, itemID); err != nil {
			return err
		}
		return domain.ErrSupplyConflict
	}
	return nil
}

func (m *MySQLAdapter) IncrementSupply(ctx context.Context, itemID string, qty int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE catalog_items
		SET supply = supply + ?, version = version + 1, updated_at = NOW()
		WHERE id = ?`,
		qty, itemID,
	)
	if err != nil {
		return fmt.Errorf("increment supply: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound)
	}
	return nil
}

func (m *MySQLAdapter) ListBookings(ctx context.Context, itemID string, window domain.RentalWindow) ([]domain.Booking, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, item_id, order_id, start_date, end_date, quantity, created_at
		FROM rental_bookings
		WHERE item_id = ? AND start_date <= ? AND end_date >= ?`,
		itemID, window.End, window.Start,
	)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.ItemID, &b.OrderID, &b.Window.Start, &b.Window.End, &b.Quantity, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (m *MySQLAdapter) InsertBooking(ctx context.Context, booking domain.Booking) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO rental_bookings (id, item_id, order_id, start_date, end_date, quantity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.ItemID, booking.OrderID, booking.Window.Start, booking.Window.End, booking.Quantity,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteBooking(ctx context.Context, bookingID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM rental_bookings WHERE id = ?`, bookingID)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}
