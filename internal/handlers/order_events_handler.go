package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

// EventStats summarises what the consumer has seen
type EventStats struct {
	Processed   map[string]int `json:"processed"`
	Malformed   int            `json:"malformed"`
	LastEventAt *time.Time     `json:"last_event_at,omitempty"`
}

// OrderEventsHandler consumes the order event stream and keeps a small
// projection of the latest stage seen per order
type OrderEventsHandler struct {
	logger logger.Logger

	mu        sync.RWMutex
	processed map[string]int
	malformed int
	lastAt    *time.Time
	stages    map[string]models.OrderStatus
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		logger:    logger,
		processed: make(map[string]int),
		stages:    make(map[string]models.OrderStatus),
	}
}

// HandleMessage handles incoming order events from Kafka messages. Payloads
// that cannot be decoded are counted and dropped so they do not block the
// partition.
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("Failed to unmarshal order event", "error", err, "offset", msg.Offset)
		h.countMalformed()
		return nil
	}

	h.logger.Debug("Handling order event",
		"eventType", event.EventType,
		"eventID", event.EventID,
		"aggregateID", event.AggregateID,
		"occurredAt", event.OccurredAt)

	var err error

	switch event.EventType {
	case models.EventOrderCreated:
		err = h.handleOrderCreated(event)
	case models.EventOrderStatusChanged:
		err = h.handleStatusChanged(event)
	case models.EventOrderUpdated:
		err = h.handleOrderUpdated(event)
	case models.EventOrderDeadOpportunity:
		err = h.handleDeadOpportunity(event)
	case models.EventOrdersDeleted:
		err = h.handleOrdersDeleted(event)
	default:
		h.logger.Warn("Unknown event type", "eventType", event.EventType)
		return nil
	}

	if err != nil {
		h.logger.Error("Failed to decode event data", "error", err, "eventID", event.EventID)
		h.countMalformed()
		return nil
	}

	h.mu.Lock()
	h.processed[event.EventType]++
	at := event.OccurredAt
	h.lastAt = &at
	h.mu.Unlock()

	return nil
}

func (h *OrderEventsHandler) handleOrderCreated(event models.OutboxMessageEvent) error {
	var order models.Order

	if err := json.Unmarshal(event.Data, &order); err != nil {
		return fmt.Errorf("order_created: %w", err)
	}

	h.setStage(order.ID, order.Status)
	h.logger.Info("Order created", "orderID", order.ID, "orderNumber", order.OrderNumber, "status", order.Status)
	return nil
}

func (h *OrderEventsHandler) handleStatusChanged(event models.OutboxMessageEvent) error {
	var data models.StatusChangedData

	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("order_status_changed: %w", err)
	}

	h.setStage(data.OrderID, data.NewStatus)
	h.logger.Info("Order status changed",
		"orderID", data.OrderID,
		"orderNumber", data.OrderNumber,
		"oldStatus", data.OldStatus,
		"newStatus", data.NewStatus,
		"changedBy", data.ChangedBy)
	return nil
}

func (h *OrderEventsHandler) handleOrderUpdated(event models.OutboxMessageEvent) error {
	var data models.OrderUpdatedData

	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("order_updated: %w", err)
	}

	h.logger.Info("Order updated", "orderID", data.OrderID, "action", data.Action, "version", data.Version)
	return nil
}

func (h *OrderEventsHandler) handleDeadOpportunity(event models.OutboxMessageEvent) error {
	var data models.DeadOpportunityData

	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("order_dead_opportunity: %w", err)
	}

	h.setStage(data.OrderID, models.StatusClosed)
	if data.NewLeadID != "" {
		h.setStage(data.NewLeadID, models.StatusLead)
	}

	h.logger.Info("Order moved to dead opportunity",
		"orderID", data.OrderID,
		"reopenedFrom", data.ReopenedFrom,
		"newLeadID", data.NewLeadID)
	return nil
}

func (h *OrderEventsHandler) handleOrdersDeleted(event models.OutboxMessageEvent) error {
	var data models.OrdersDeletedData

	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("orders_deleted: %w", err)
	}

	h.mu.Lock()
	for _, id := range data.OrderIDs {
		delete(h.stages, id)
	}
	h.mu.Unlock()

	h.logger.Info("Orders deleted", "count", len(data.OrderIDs), "deletedBy", data.DeletedBy)
	return nil
}

// Stage returns the last stage seen for an order
func (h *OrderEventsHandler) Stage(orderID string) (models.OrderStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.stages[orderID]
	return s, ok
}

// Stats returns a copy of the counters
func (h *OrderEventsHandler) Stats() EventStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	processed := make(map[string]int, len(h.processed))
	for k, v := range h.processed {
		processed[k] = v
	}

	var last *time.Time
	if h.lastAt != nil {
		t := *h.lastAt
		last = &t
	}

	return EventStats{Processed: processed, Malformed: h.malformed, LastEventAt: last}
}

func (h *OrderEventsHandler) setStage(orderID string, status models.OrderStatus) {
	h.mu.Lock()
	h.stages[orderID] = status
	h.mu.Unlock()
}

func (h *OrderEventsHandler) countMalformed() {
	h.mu.Lock()
	h.malformed++
	h.mu.Unlock()
}
