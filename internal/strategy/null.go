package strategy

import (
	"context"

	"github.com/fibhq/outbox-bridge/internal/model"
	"go.uber.org/zap"
)

// NullStrategy drops the event with a log line. Useful to disable a
// destination without touching routes, and in tests.
type NullStrategy struct {
	log *zap.Logger
}

func NewNullStrategy(log *zap.Logger) *NullStrategy {
	if log == nil {
		log = zap.NewNop()
	}
	return &NullStrategy{log: log}
}

func (s *NullStrategy) Type() string  { return "null" }
func (s *NullStrategy) Label() string { return "Null (drop)" }

func (s *NullStrategy) ConfigFields() []ConfigField { return nil }

func (s *NullStrategy) ValidateConfig(map[string]any) error { return nil }

func (s *NullStrategy) Publish(_ context.Context, event model.DomainEvent, dctx Context, _ map[string]any) error {
	s.log.Info("outbox event dropped by null destination",
		zap.String("event_id", event.ID),
		zap.String("event_name", event.EventName),
		zap.String("destination_id", dctx.DestinationID),
		zap.String("destination_key", dctx.DestinationKey),
		zap.String("delivery_id", dctx.DeliveryID),
	)

	return nil
}
