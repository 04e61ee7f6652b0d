package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/croplink/marketplace/internal/core/domain"
)

// Cart line identity is (owner, item, type, window); the null-safe `<=>`
// comparison lets one query cover both rental and non-rental lines.

func (m *MySQLAdapter) ListLines(ctx context.Context, ownerID string) ([]domain.CartLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, owner_id, item_id, item_type, quantity, start_date, end_date, added_at, updated_at
		FROM cart_lines WHERE owner_id = ? ORDER BY added_at`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *line)
	}
	return lines, rows.Err()
}

func (m *MySQLAdapter) FindLine(ctx context.Context, ownerID string, key domain.LineKey) (*domain.CartLine, error) {
	start, end := windowDates(key.Window)
	row := m.db.QueryRowContext(ctx, `
		SELECT id, owner_id, item_id, item_type, quantity, start_date, end_date, added_at, updated_at
		FROM cart_lines
		WHERE owner_id = ? AND item_id = ? AND item_type = ? AND start_date <=> ? AND end_date <=> ?`,
		ownerID, key.ItemID, key.ItemType, start, end,
	)
	line, err := scanCartLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLineNotFound
	}
	return line, err
}

func (m *MySQLAdapter) SaveLine(ctx context.Context, line domain.CartLine) error {
	start, end := windowDates(line.Window)
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart_lines (id, owner_id, item_id, item_type, quantity, start_date, end_date, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), updated_at = VALUES(updated_at)`,
		line.ID, line.OwnerID, line.ItemID, line.ItemType, line.Quantity, start, end, line.AddedAt, line.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save cart line: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteLine(ctx context.Context, ownerID string, key domain.LineKey) error {
	start, end := windowDates(key.Window)
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM cart_lines
		WHERE owner_id = ? AND item_id = ? AND item_type = ? AND start_date <=> ? AND end_date <=> ?`,
		ownerID, key.ItemID, key.ItemType, start, end,
	)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrLineNotFound
	}
	return nil
}

func (m *MySQLAdapter) DeleteLines(ctx context.Context, ownerID string, keys []domain.LineKey) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		start, end := windowDates(key.Window)
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cart_lines
			WHERE owner_id = ? AND item_id = ? AND item_type = ? AND start_date <=> ? AND end_date <=> ?`,
			ownerID, key.ItemID, key.ItemType, start, end,
		); err != nil {
			return fmt.Errorf("delete cart line %s: %w", key.ItemID, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCartLine(row rowScanner) (*domain.CartLine, error) {
	var (
		line  domain.CartLine
		start sql.NullTime
		end   sql.NullTime
	)
	err := row.Scan(&line.ID, &line.OwnerID, &line.ItemID, &line.ItemType, &line.Quantity,
		&start, &end, &line.AddedAt, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan cart line: %w", err)
	}
	if start.Valid && end.Valid {
		w := domain.NewRentalWindow(start.Time, end.Time)
		line.Window = &w
	}
	return &line, nil
}

func windowDates(w *domain.RentalWindow) (start, end any) {
	if w == nil {
		return nil, nil
	}
	return w.Start, w.End
}
