// Package events publishes order and withdrawal status changes for the
// external notification collaborator.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rubex-exchange/rubex/pkg/models"
)

// StatusEvent is the wire form of a lifecycle transition.
type StatusEvent struct {
	Kind       string        `json:"kind"` // order, withdrawal
	ID         string        `json:"id"`   // short public id
	PrevStatus models.Status `json:"prev_status"`
	Status     models.Status `json:"status"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Publisher emits lifecycle events. Implementations must tolerate being
// called from inside request handling; failures are logged, never
// surfaced to the caller.
type Publisher interface {
	PublishStatusEvent(ctx context.Context, event StatusEvent) error
	Close() error
}

// NopPublisher discards all events. It is used when kafka is not
// configured.
type NopPublisher struct{}

func (NopPublisher) PublishStatusEvent(context.Context, StatusEvent) error { return nil }
func (NopPublisher) Close() error                                          { return nil }

// KafkaPublisher writes status events to a kafka topic.
type KafkaPublisher struct {
	logger *zap.Logger
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(logger *zap.Logger, brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{logger: logger, writer: writer}, nil
}

// PublishStatusEvent writes one event keyed by the entity's public id
// so per-entity ordering is preserved.
func (p *KafkaPublisher) PublishStatusEvent(ctx context.Context, event StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Kind + ":" + event.ID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.logger.Debug("Published status event",
		zap.String("kind", event.Kind),
		zap.String("id", event.ID),
		zap.String("status", string(event.Status)))
	return nil
}

// Close flushes and closes the kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
