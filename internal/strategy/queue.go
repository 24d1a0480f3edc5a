package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fibhq/outbox-bridge/internal/model"
)

// MessagePublisher abstracts the Kafka producer so the strategy can be
// tested without a broker.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboundMessage is the envelope written to the queue.
type OutboundMessage struct {
	EventID        string          `json:"event_id"`
	EventName      string          `json:"event_name"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Payload        json.RawMessage `json:"payload"`
	Meta           json.RawMessage `json:"meta,omitempty"`
	DeliveryID     string          `json:"delivery_id"`
	DestinationKey string          `json:"destination_key"`
}

// QueueStrategy publishes the event envelope to a Kafka topic. The message
// key defaults to the event name and can be overridden with routingKey.
type QueueStrategy struct {
	producer MessagePublisher
}

func NewQueueStrategy(producer MessagePublisher) *QueueStrategy {
	return &QueueStrategy{producer: producer}
}

func (s *QueueStrategy) Type() string  { return "queue" }
func (s *QueueStrategy) Label() string { return "Queue (Kafka)" }

func (s *QueueStrategy) ConfigFields() []ConfigField {
	return []ConfigField{
		{Name: "topic", Type: "text", Label: "Topic", Required: true, Placeholder: "outbox.events"},
		{Name: "routingKey", Type: "text", Label: "Routing key", Placeholder: "Leave empty to use event name"},
	}
}

func (s *QueueStrategy) ValidateConfig(config map[string]any) error {
	return requireFields(s.Type(), config, "topic")
}

func (s *QueueStrategy) Publish(ctx context.Context, event model.DomainEvent, dctx Context, config map[string]any) error {
	if err := s.ValidateConfig(config); err != nil {
		return err
	}
	if s.producer == nil {
		return fmt.Errorf("queue destination has no producer configured")
	}

	key := stringValue(config, "routingKey")
	if key == "" {
		key = event.EventName
	}

	msg := OutboundMessage{
		EventID:        event.ID,
		EventName:      event.EventName,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		OccurredAt:     event.OccurredAt,
		Payload:        event.Payload,
		Meta:           event.Meta,
		DeliveryID:     dctx.DeliveryID,
		DestinationKey: dctx.DestinationKey,
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	if err := s.producer.Publish(ctx, stringValue(config, "topic"), []byte(key), value); err != nil {
		return fmt.Errorf("queue publish failed: %w", err)
	}

	return nil
}
