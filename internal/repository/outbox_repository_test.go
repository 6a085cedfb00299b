package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

func TestOutboxRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(newSQLiteDB(t), logger.NewNop())

	msg, err := models.NewOrderUpdatedEvent(models.Order{ID: "ord-1", OrderNumber: "ORD-2026-0001", Version: 2}, models.ActionPrepUpdated)
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, msg))
	require.NotZero(t, msg.ID)

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.EventOrderUpdated, pending[0].EventType)
	assert.JSONEq(t, string(msg.Payload), string(pending[0].Payload))

	require.NoError(t, repo.MarkAsProcessing(ctx, msg.ID))
	require.NoError(t, repo.MarkForRetry(ctx, msg.ID, "broker down"))

	got, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusPending, got.Status)
	assert.Equal(t, 1, got.ProcessingAttempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "broker down", *got.LastError)

	require.NoError(t, repo.MarkAsFailed(ctx, msg.ID, "max retries reached"))

	failed, err := repo.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.OutboxStatusFailed])

	require.NoError(t, repo.ResetToPending(ctx, msg.ID))
	assert.ErrorIs(t, repo.ResetToPending(ctx, msg.ID), ErrNotFound, "only failed messages can be reset")

	require.NoError(t, repo.MarkAsCompleted(ctx, msg.ID))

	done, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusCompleted, done.Status)
	assert.Equal(t, 0, done.ProcessingAttempts)
	assert.NotNil(t, done.ProcessedAt)
	assert.Nil(t, done.LastError)

	_, err = repo.GetMessage(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutboxRepositoryCreateInTx(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	orders := NewOrderRepository(db, logger.NewNop())
	outbox := NewOutboxRepository(db, logger.NewNop())

	order := testOrder("ord-1", 1)
	msg, err := models.NewOrderCreatedEvent(order)
	require.NoError(t, err)

	tx, err := orders.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, orders.CreateInTx(tx, order))
	require.NoError(t, outbox.CreateInTx(tx, msg))
	require.NoError(t, tx.Rollback())

	pending, err := outbox.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "rolled back together with the order")

	count, err := orders.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOutboxRepositoryMockErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db, logger.NewNop())
	ctx := context.Background()

	mock.ExpectExec(`UPDATE outbox_messages`).
		WithArgs("processing", int64(4)).
		WillReturnError(errors.New("deadlock"))

	assert.ErrorIs(t, repo.MarkAsProcessing(ctx, 4), ErrDatabase)

	mock.ExpectQuery(`FROM outbox_messages`).
		WithArgs("pending", 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "aggregate_type", "aggregate_id", "event_type", "payload",
			"created_at", "processed_at", "processing_attempts", "last_error", "status",
		}).AddRow(1, "order", "ord-1", models.EventOrderCreated, []byte(`{}`), time.Now(), nil, 0, nil, "pending"))

	msgs, err := repo.GetPendingMessages(ctx, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ord-1", msgs[0].AggregateID)

	assert.NoError(t, mock.ExpectationsWereMet())
}
