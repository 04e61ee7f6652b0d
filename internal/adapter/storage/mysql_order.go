package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/croplink/marketplace/internal/core/domain"
)

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, delivery_mode, subtotal, delivery_fee, total, payment_method, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.BuyerID, order.DeliveryMode, order.Subtotal, order.DeliveryFee,
		order.Total, order.PaymentMethod, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		start, end := windowDates(line.Window)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, item_id, item_type, name, quantity, unit_price, line_total, start_date, end_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, line.ItemID, line.ItemType, line.Name, line.Quantity, line.UnitPrice, line.LineTotal, start, end,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, buyer_id, delivery_mode, subtotal, delivery_fee, total, payment_method, status, created_at, updated_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&order.ID, &order.BuyerID, &order.DeliveryMode, &order.Subtotal, &order.DeliveryFee,
		&order.Total, &order.PaymentMethod, &order.Status, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT item_id, item_type, name, quantity, unit_price, line_total, start_date, end_date
		FROM order_lines WHERE order_id = ?`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line  domain.OrderLine
			start sql.NullTime
			end   sql.NullTime
		)
		if err := rows.Scan(&line.ItemID, &line.ItemType, &line.Name, &line.Quantity,
			&line.UnitPrice, &line.LineTotal, &start, &end); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if start.Valid && end.Valid {
			w := domain.NewRentalWindow(start.Time, end.Time)
			line.Window = &w
		}
		order.Lines = append(order.Lines, line)
	}
	return &order, rows.Err()
}

func (m *MySQLAdapter) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ?`,
		status, orderID,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return nil
}

func (m *MySQLAdapter) CreateShipment(ctx context.Context, shipment domain.Shipment) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO shipments (id, order_id, mode, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		shipment.ID, shipment.OrderID, shipment.Mode, shipment.Status, shipment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetShipmentByOrder(ctx context.Context, orderID string) (*domain.Shipment, error) {
	var s domain.Shipment
	err := m.db.QueryRowContext(ctx, `
		SELECT id, order_id, mode, status, created_at
		FROM shipments WHERE order_id = ?`, orderID,
	).Scan(&s.ID, &s.OrderID, &s.Mode, &s.Status, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shipment for order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query shipment: %w", err)
	}
	return &s, nil
}
