package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/apparel-order-pipeline/internal/database"
	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload,
	created_at, processed_at, processing_attempts, last_error, status`

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

const insertOutboxMessage = `
	INSERT INTO outbox_messages (
		aggregate_type, aggregate_id, event_type, payload,
		created_at, status
	) VALUES (
		?, ?, ?, ?, ?, ?
	) RETURNING id
`

// Create inserts a new outbox message outside any transaction
func (r *OutboxRepository) Create(ctx context.Context, message *models.OutboxMessage) error {
	var id int64

	err := r.db.DB.QueryRowxContext(
		ctx,
		r.db.DB.Rebind(insertOutboxMessage),
		outboxInsertArgs(message)...,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to create outbox message", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// CreateInTx creates a new outbox message within a transaction
func (r *OutboxRepository) CreateInTx(tx *sqlx.Tx, message *models.OutboxMessage) error {
	var id int64

	err := tx.QueryRowx(tx.Rebind(insertOutboxMessage), outboxInsertArgs(message)...).Scan(&id)

	if err != nil {
		return fmt.Errorf("%w: failed to create outbox message in transaction: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// payload goes as a string for the same JSONB reason as order documents
func outboxInsertArgs(message *models.OutboxMessage) []interface{} {
	return []interface{}{
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		string(message.Payload),
		message.CreatedAt,
		string(message.Status),
	}
}

// GetPendingMessages retrieves pending outbox messages, oldest first
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	return r.listByStatus(ctx, models.OutboxStatusPending, limit)
}

// ListFailed retrieves messages that exhausted their retries
func (r *OutboxRepository) ListFailed(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	return r.listByStatus(ctx, models.OutboxStatusFailed, limit)
}

func (r *OutboxRepository) listByStatus(ctx context.Context, status models.OutboxStatus, limit int) ([]*models.OutboxMessage, error) {
	query := r.db.DB.Rebind(`
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`)

	var messages []*models.OutboxMessage

	err := r.db.DB.SelectContext(ctx, &messages, query, string(status), limit)

	if err != nil {
		r.logger.Error("Failed to list outbox messages", "error", err, "status", status)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// MarkAsProcessing claims a message and counts the attempt
func (r *OutboxRepository) MarkAsProcessing(ctx context.Context, id int64) error {
	query := r.db.DB.Rebind(`
		UPDATE outbox_messages
		SET status = ?, processing_attempts = processing_attempts + 1
		WHERE id = ?
	`)

	return r.exec(ctx, "processing", id, query, string(models.OutboxStatusProcessing), id)
}

// MarkAsCompleted updates the status of an outbox message to completed
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	query := r.db.DB.Rebind(`
		UPDATE outbox_messages
		SET status = ?, processed_at = ?, last_error = NULL
		WHERE id = ?
	`)

	return r.exec(ctx, "completed", id, query, string(models.OutboxStatusCompleted), time.Now().UTC(), id)
}

// MarkForRetry returns a message to pending with the error that stopped it
func (r *OutboxRepository) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	query := r.db.DB.Rebind(`
		UPDATE outbox_messages
		SET status = ?, last_error = ?
		WHERE id = ?
	`)

	return r.exec(ctx, "pending", id, query, string(models.OutboxStatusPending), errorMessage, id)
}

// MarkAsFailed parks a message until an operator retries it
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	query := r.db.DB.Rebind(`
		UPDATE outbox_messages
		SET status = ?, last_error = ?
		WHERE id = ?
	`)

	return r.exec(ctx, "failed", id, query, string(models.OutboxStatusFailed), errorMessage, id)
}

// ResetToPending requeues a failed message with a fresh attempt budget
func (r *OutboxRepository) ResetToPending(ctx context.Context, id int64) error {
	query := r.db.DB.Rebind(`
		UPDATE outbox_messages
		SET status = ?, processing_attempts = 0
		WHERE id = ? AND status = ?
	`)

	result, err := r.db.DB.ExecContext(ctx, query, string(models.OutboxStatusPending), id, string(models.OutboxStatusFailed))

	if err != nil {
		r.logger.Error("Failed to reset outbox message", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetMessage retrieves an outbox message by ID
func (r *OutboxRepository) GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	query := r.db.DB.Rebind(`SELECT ` + outboxColumns + ` FROM outbox_messages WHERE id = ?`)

	var message models.OutboxMessage

	err := r.db.DB.GetContext(ctx, &message, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get outbox message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}

// CountByStatus reports how many messages sit in each status
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	err := r.db.DB.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM outbox_messages GROUP BY status`)

	if err != nil {
		r.logger.Error("Failed to count outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	counts := make(map[models.OutboxStatus]int, len(rows))
	for _, row := range rows {
		counts[models.OutboxStatus(row.Status)] = row.Count
	}

	return counts, nil
}

func (r *OutboxRepository) exec(ctx context.Context, to string, id int64, query string, args ...interface{}) error {
	_, err := r.db.DB.ExecContext(ctx, query, args...)

	if err != nil {
		r.logger.Error("Failed to update outbox message", "error", err, "messageID", id, "to", to)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}
