package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Order event types published through the outbox
const (
	EventOrderCreated         = "order_created"
	EventOrderStatusChanged   = "order_status_changed"
	EventOrderUpdated         = "order_updated"
	EventOrderDeadOpportunity = "order_dead_opportunity"
	EventOrdersDeleted        = "orders_deleted"
)

// EventTypes lists every event type the service emits
func EventTypes() []string {
	return []string{
		EventOrderCreated,
		EventOrderStatusChanged,
		EventOrderUpdated,
		EventOrderDeadOpportunity,
		EventOrdersDeleted,
	}
}

// OutboxMessage is a message waiting to be published from the outbox table
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxMessageEvent is the envelope stored in an outbox payload
type OutboxMessageEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// StatusChangedData is the payload of order_status_changed
type StatusChangedData struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	OldStatus   OrderStatus `json:"old_status"`
	NewStatus   OrderStatus `json:"new_status"`
	ChangedBy   string      `json:"changed_by"`
}

// OrderUpdatedData is the payload of order_updated
type OrderUpdatedData struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Action      string `json:"action"`
	Version     int    `json:"version"`
}

// DeadOpportunityData is the payload of order_dead_opportunity
type DeadOpportunityData struct {
	OrderID       string      `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	ReopenedFrom  OrderStatus `json:"reopened_from"`
	NewLeadID     string      `json:"new_lead_id,omitempty"`
	NewLeadNumber string      `json:"new_lead_number,omitempty"`
}

// OrdersDeletedData is the payload of orders_deleted
type OrdersDeletedData struct {
	OrderIDs  []string `json:"order_ids"`
	DeletedBy string   `json:"deleted_by"`
}

func newOrderEvent(eventType, aggregateID string, data interface{}) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)

	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	event := OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: aggregateID,
		OccurredAt:  now,
		Data:        raw,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		AggregateType:      "order",
		AggregateID:        aggregateID,
		EventType:          eventType,
		Payload:            payload,
		CreatedAt:          now,
		ProcessingAttempts: 0,
		Status:             OutboxStatusPending,
	}, nil
}

// NewOrderCreatedEvent carries the full created order
func NewOrderCreatedEvent(order Order) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderCreated, order.ID, order)
}

// NewOrderStatusChangedEvent records a stage transition
func NewOrderStatusChangedEvent(order Order, oldStatus OrderStatus, actor CurrentUser) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderStatusChanged, order.ID, StatusChangedData{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OldStatus:   oldStatus,
		NewStatus:   order.Status,
		ChangedBy:   actor.ID,
	})
}

// NewOrderUpdatedEvent records any other mutation, named by its history action
func NewOrderUpdatedEvent(order Order, action string) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderUpdated, order.ID, OrderUpdatedData{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Action:      action,
		Version:     order.Version,
	})
}

// NewDeadOpportunityEvent records an abandoned order and its optional new lead
func NewDeadOpportunityEvent(dead Order, newLead *Order) (*OutboxMessage, error) {
	data := DeadOpportunityData{
		OrderID:      dead.ID,
		OrderNumber:  dead.OrderNumber,
		ReopenedFrom: dead.ReopenedFrom,
	}

	if newLead != nil {
		data.NewLeadID = newLead.ID
		data.NewLeadNumber = newLead.OrderNumber
	}

	return newOrderEvent(EventOrderDeadOpportunity, dead.ID, data)
}

// NewOrdersDeletedEvent records a bulk delete
func NewOrdersDeletedEvent(ids []string, actor CurrentUser) (*OutboxMessage, error) {
	aggregateID := "bulk"
	if len(ids) == 1 {
		aggregateID = ids[0]
	}

	return newOrderEvent(EventOrdersDeleted, aggregateID, OrdersDeletedData{
		OrderIDs:  ids,
		DeletedBy: actor.ID,
	})
}
