package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/pkg/circuitbreaker"
	"github.com/vaidashi/apparel-order-pipeline/pkg/kafka"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
	"github.com/vaidashi/apparel-order-pipeline/pkg/retry"
)

// Publisher sends one record to the broker
type Publisher interface {
	SendMessage(ctx context.Context, msg kafka.Message) error
}

// KafkaHandler publishes outbox messages to Kafka behind a circuit breaker,
// retrying transient broker errors a few times before giving the message
// back to the processor
type KafkaHandler struct {
	logger    logger.Logger
	publisher Publisher
	topic     string
	breaker   *circuitbreaker.CircuitBreaker
	retry     retry.Config
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(
	publisher Publisher,
	topic string,
	breaker *circuitbreaker.CircuitBreaker,
	logger logger.Logger,
) *KafkaHandler {
	return &KafkaHandler{
		publisher: publisher,
		topic:     topic,
		breaker:   breaker,
		logger:    logger,
		retry: retry.Config{
			MaxAttempts: 3,
			Backoff:     retry.NewPublishBackoff(),
			Logger:      logger,
		},
	}
}

// WithRetry overrides the publish retry policy
func (h *KafkaHandler) WithRetry(cfg retry.Config) *KafkaHandler {
	h.retry = cfg
	return h
}

// Breaker exposes the breaker for status endpoints
func (h *KafkaHandler) Breaker() *circuitbreaker.CircuitBreaker {
	return h.breaker
}

// HandleMessage publishes the payload keyed by order id so every event for
// an order lands on the same partition
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	msg := kafka.Message{
		Topic: h.topic,
		Key:   message.AggregateID,
		Value: message.Payload,
		Headers: map[string]string{
			"event_type":     message.EventType,
			"aggregate_type": message.AggregateType,
		},
	}

	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, h.retry, func(ctx context.Context) error {
			return h.publisher.SendMessage(ctx, msg)
		})
	})

	if err != nil {
		h.logger.Error("Failed to publish message to Kafka",
			"error", err,
			"messageID", message.ID,
			"aggregateID", message.AggregateID,
			"breakerState", h.breaker.State().String())
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}

	h.logger.Debug("Published message to Kafka",
		"topic", h.topic,
		"messageID", message.ID,
		"aggregateID", message.AggregateID,
		"eventType", message.EventType)

	return nil
}
