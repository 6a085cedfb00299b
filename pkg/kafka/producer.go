package kafka

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Shopify/sarama"

	apperrors "github.com/vaidashi/apparel-order-pipeline/pkg/errors"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

// Message is one record to publish
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Producer is a wrapper around the Sarama sync producer
type Producer struct {
	producer sarama.SyncProducer
	logger   logger.Logger
}

// NewProducerConfig returns the sarama settings used for order events:
// acks from all replicas and idempotent writes keyed by order id
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_1_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 250 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return config
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, logger logger.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())

	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewProducerFrom(producer, logger), nil
}

// NewProducerFrom wraps an existing sarama producer
func NewProducerFrom(producer sarama.SyncProducer, logger logger.Logger) *Producer {
	return &Producer{
		producer: producer,
		logger:   logger,
	}
}

// SendMessage publishes msg and waits for the broker to acknowledge it.
// Broker failures come back retryable.
func (p *Producer) SendMessage(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pm := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Value),
	}

	if msg.Key != "" {
		pm.Key = sarama.StringEncoder(msg.Key)
	}

	for k, v := range msg.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := p.producer.SendMessage(pm)

	if err != nil {
		p.logger.Error("Failed to send message to Kafka",
			"error", err,
			"topic", msg.Topic,
			"key", msg.Key)
		return apperrors.NewAppError(
			fmt.Errorf("%w: %v", apperrors.ErrServiceUnavailable, err),
			"failed to send message to Kafka",
			http.StatusServiceUnavailable,
			true,
		)
	}

	p.logger.Debug("Message sent to Kafka",
		"topic", msg.Topic,
		"key", msg.Key,
		"partition", partition,
		"offset", offset)

	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
