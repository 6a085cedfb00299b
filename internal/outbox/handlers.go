package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

// LoggingHandler publishes order events to the structured log. It is the
// sink used when no broker is configured.
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger,
	}
}

// HandleMessage decodes the event envelope and logs it
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Order event",
		"messageID", message.ID,
		"eventType", event.EventType,
		"aggregateID", event.AggregateID,
		"eventID", event.EventID,
		"occurredAt", event.OccurredAt,
		"data", string(event.Data))

	return nil
}
