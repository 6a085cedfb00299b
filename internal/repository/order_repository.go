package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/apparel-order-pipeline/internal/database"
	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDatabase        = errors.New("database error")
	ErrVersionConflict = errors.New("version conflict")
)

// OrderRepository persists orders as JSON documents
type OrderRepository struct {
	db     *database.Database
	logger logger.Logger
}

type orderRow struct {
	ID       string `db:"id"`
	Version  int    `db:"version"`
	Document string `db:"document"`
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// BeginTx starts a transaction shared by order and outbox writes
func (r *OrderRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		r.logger.Error("Failed to begin transaction", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return tx, nil
}

// LoadAll reads the whole collection in creation order
func (r *OrderRepository) LoadAll(ctx context.Context) ([]models.Order, error) {
	query := `SELECT id, version, document FROM orders ORDER BY created_at ASC, id ASC`

	var rows []orderRow
	err := r.db.DB.SelectContext(ctx, &rows, query)

	if err != nil {
		r.logger.Error("Failed to load orders", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	orders := make([]models.Order, 0, len(rows))

	for _, row := range rows {
		order, err := decodeOrder(row)

		if err != nil {
			r.logger.Error("Failed to decode order", "error", err, "orderID", row.ID)
			return nil, err
		}

		orders = append(orders, order)
	}

	return orders, nil
}

// GetByID retrieves an order by its ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := r.db.DB.Rebind(`SELECT id, version, document FROM orders WHERE id = ?`)

	var row orderRow
	err := r.db.DB.GetContext(ctx, &row, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	order, err := decodeOrder(row)

	if err != nil {
		return nil, err
	}

	return &order, nil
}

// Count counts the total number of orders
func (r *OrderRepository) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM orders`

	err := r.db.DB.GetContext(ctx, &count, query)

	if err != nil {
		r.logger.Error("Failed to count orders", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}

// CreateInTx inserts a new order within a transaction
func (r *OrderRepository) CreateInTx(tx *sqlx.Tx, order models.Order) error {
	doc, err := encodeOrder(order)

	if err != nil {
		return err
	}

	query := tx.Rebind(`
		INSERT INTO orders (id, order_number, status, is_archived, version, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = tx.Exec(
		query,
		order.ID,
		order.OrderNumber,
		string(order.Status),
		order.IsArchived,
		order.Version,
		doc,
		order.CreatedAt,
		order.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// UpdateInTx replaces a stored order. The stored version must be exactly
// one behind order.Version, otherwise ErrVersionConflict is returned.
func (r *OrderRepository) UpdateInTx(tx *sqlx.Tx, order models.Order) error {
	doc, err := encodeOrder(order)

	if err != nil {
		return err
	}

	query := tx.Rebind(`
		UPDATE orders
		SET order_number = ?, status = ?, is_archived = ?, version = ?, document = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`)

	result, err := tx.Exec(
		query,
		order.OrderNumber,
		string(order.Status),
		order.IsArchived,
		order.Version,
		doc,
		order.UpdatedAt,
		order.ID,
		order.Version-1,
	)

	if err != nil {
		r.logger.Error("Failed to update order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var stored int
	err = tx.Get(&stored, tx.Rebind(`SELECT version FROM orders WHERE id = ?`), order.ID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	r.logger.Warn("Rejected stale order write",
		"orderID", order.ID,
		"storedVersion", stored,
		"writeVersion", order.Version)

	return fmt.Errorf("%w: order %s is at version %d, write carries %d", ErrVersionConflict, order.ID, stored, order.Version)
}

// DeleteInTx removes the given orders and returns how many rows went
func (r *OrderRepository) DeleteInTx(tx *sqlx.Tx, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`DELETE FROM orders WHERE id IN (?)`, ids)

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	result, err := tx.Exec(tx.Rebind(query), args...)

	if err != nil {
		r.logger.Error("Failed to delete orders", "error", err, "count", len(ids))
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return rowsAffected, nil
}

// encodeOrder renders the document column. lib/pq sends []byte as bytea,
// which JSONB rejects, so the document travels as a string.
func encodeOrder(order models.Order) (string, error) {
	raw, err := json.Marshal(order)

	if err != nil {
		return "", fmt.Errorf("failed to encode order %s: %w", order.ID, err)
	}

	return string(raw), nil
}

func decodeOrder(row orderRow) (models.Order, error) {
	var order models.Order

	if err := json.Unmarshal([]byte(row.Document), &order); err != nil {
		return models.Order{}, fmt.Errorf("failed to decode order %s: %w", row.ID, err)
	}

	return order, nil
}
