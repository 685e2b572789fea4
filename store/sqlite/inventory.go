package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// INVENTORY STORE (academy.InventoryRepository interface)
// =============================================================================

const itemColumns = "id, name, category, stock, min_stock, created_at"

func (s *Store) ListItems(ctx context.Context) ([]academy.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+itemColumns+" FROM inventory_items ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	var items []academy.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem returns nil, nil when the item does not exist.
func (s *Store) GetItem(ctx context.Context, id int64) (*academy.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q querier, id int64) (*academy.InventoryItem, error) {
	item, err := scanItem(q.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM inventory_items WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item *academy.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (name, category, stock, min_stock, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, item.Name, item.Category, item.Stock, item.MinStock, createdAt.Format(time.RFC3339))
	if err != nil {
		if isCheckConstraintError(err) {
			return academy.Invalid("stock", "must not be negative")
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	item.CreatedAt = createdAt
	return nil
}

// SetStock overwrites the stock count (manual correction).
func (s *Store) SetStock(ctx context.Context, id int64, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE inventory_items SET stock = ? WHERE id = ?", stock, id)
	if err != nil {
		if isCheckConstraintError(err) {
			return academy.Invalid("stock", "must not be negative")
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academy.ErrNotFound
	}
	return nil
}

// RecordMovement applies an in/out movement and stores it in one transaction.
func (s *Store) RecordMovement(ctx context.Context, m *academy.InventoryMovement) (*academy.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := getItem(ctx, tx, m.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, academy.ErrNotFound
	}

	switch m.Type {
	case academy.MovementIn:
		item.Stock += m.Quantity
	case academy.MovementOut:
		if m.Quantity > item.Stock {
			return nil, &academy.InsufficientStockError{
				ItemID:    item.ID,
				Available: item.Stock,
				Requested: m.Quantity,
			}
		}
		item.Stock -= m.Quantity
	default:
		return nil, academy.Invalid("type", "must be %q or %q", academy.MovementIn, academy.MovementOut)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE inventory_items SET stock = ? WHERE id = ?", item.Stock, item.ID); err != nil {
		return nil, err
	}

	var playerID sql.NullInt64
	if m.PlayerID != nil {
		playerID = sql.NullInt64{Int64: int64(*m.PlayerID), Valid: true}
	}
	createdAt := time.Now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (item_id, type, quantity, player_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ItemID, m.Type, m.Quantity, playerID, m.Notes, createdAt.Format(time.RFC3339))
	if err != nil {
		switch {
		case isForeignKeyError(err):
			return nil, academy.Invalid("player_id", "unknown player")
		case isCheckConstraintError(err):
			return nil, academy.Invalid("quantity", "must be positive")
		}
		return nil, fmt.Errorf("failed to insert movement: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	m.ID = id
	m.CreatedAt = createdAt
	return item, nil
}

// Movements returns an item's movements, newest first.
func (s *Store) Movements(ctx context.Context, itemID int64) ([]academy.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, type, quantity, player_id, notes, created_at
		FROM inventory_movements
		WHERE item_id = ?
		ORDER BY created_at DESC, id DESC
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []academy.InventoryMovement
	for rows.Next() {
		var (
			m         academy.InventoryMovement
			playerID  sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &playerID, &m.Notes, &createdAt); err != nil {
			return nil, err
		}
		if playerID.Valid {
			id := academy.PlayerID(playerID.Int64)
			m.PlayerID = &id
		}
		m.CreatedAt = parseTimestamp(createdAt)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanItem(row scanner) (academy.InventoryItem, error) {
	var item academy.InventoryItem
	var createdAt string
	if err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Stock, &item.MinStock, &createdAt); err != nil {
		return item, err
	}
	item.CreatedAt = parseTimestamp(createdAt)
	return item, nil
}
