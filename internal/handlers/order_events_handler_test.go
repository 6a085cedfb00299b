package handlers

import (
	"context"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

func consumerMessage(t *testing.T, msg *models.OutboxMessage) *sarama.ConsumerMessage {
	t.Helper()
	return &sarama.ConsumerMessage{Topic: "order-events", Key: []byte(msg.AggregateID), Value: msg.Payload}
}

func TestOrderEventsHandlerProjection(t *testing.T) {
	h := NewOrderEventsHandler(logger.NewNop())
	ctx := context.Background()
	actor := models.CurrentUser{ID: "u-1"}

	order := models.Order{ID: "ord-1", OrderNumber: "LEAD-2026-0001", Status: models.StatusLead}

	created, err := models.NewOrderCreatedEvent(order)
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(ctx, consumerMessage(t, created)))

	stage, ok := h.Stage("ord-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusLead, stage)

	order.Status = models.StatusQuote
	changed, err := models.NewOrderStatusChangedEvent(order, models.StatusLead, actor)
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(ctx, consumerMessage(t, changed)))

	stage, _ = h.Stage("ord-1")
	assert.Equal(t, models.StatusQuote, stage)

	dead := order
	dead.Status = models.StatusClosed
	dead.ReopenedFrom = models.StatusQuote
	lead := models.Order{ID: "ord-2", OrderNumber: "LEAD-2026-0002"}
	deadEvt, err := models.NewDeadOpportunityEvent(dead, &lead)
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(ctx, consumerMessage(t, deadEvt)))

	stage, _ = h.Stage("ord-1")
	assert.Equal(t, models.StatusClosed, stage)
	stage, _ = h.Stage("ord-2")
	assert.Equal(t, models.StatusLead, stage)

	deleted, err := models.NewOrdersDeletedEvent([]string{"ord-1"}, actor)
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(ctx, consumerMessage(t, deleted)))

	_, ok = h.Stage("ord-1")
	assert.False(t, ok)

	stats := h.Stats()
	assert.Equal(t, 1, stats.Processed[models.EventOrderCreated])
	assert.Equal(t, 1, stats.Processed[models.EventOrderStatusChanged])
	assert.Equal(t, 1, stats.Processed[models.EventOrderDeadOpportunity])
	assert.Equal(t, 1, stats.Processed[models.EventOrdersDeleted])
	assert.NotNil(t, stats.LastEventAt)
}

func TestOrderEventsHandlerMalformed(t *testing.T) {
	h := NewOrderEventsHandler(logger.NewNop())
	ctx := context.Background()

	assert.NoError(t, h.HandleMessage(ctx, &sarama.ConsumerMessage{Value: []byte("not json")}))
	assert.NoError(t, h.HandleMessage(ctx, &sarama.ConsumerMessage{
		Value: []byte(`{"event_type":"order_status_changed","data":"oops"}`),
	}))
	assert.NoError(t, h.HandleMessage(ctx, &sarama.ConsumerMessage{
		Value: []byte(`{"event_type":"something_else","data":{}}`),
	}))

	stats := h.Stats()
	assert.Equal(t, 2, stats.Malformed)
	assert.Empty(t, stats.Processed)
}
