package strategy

import (
	"context"
	"fmt"

	"github.com/fibhq/outbox-bridge/internal/flow"
	"github.com/fibhq/outbox-bridge/internal/model"
)

// FlowStrategy re-emits the event on the in-process flow bus, bridging
// outbox delivery back into host automation. A subscriber error fails the
// delivery so it is retried like any other publish failure.
type FlowStrategy struct {
	bus *flow.Bus
}

func NewFlowStrategy(bus *flow.Bus) *FlowStrategy {
	return &FlowStrategy{bus: bus}
}

func (s *FlowStrategy) Type() string  { return "flow" }
func (s *FlowStrategy) Label() string { return "Flow event" }

func (s *FlowStrategy) ConfigFields() []ConfigField {
	return []ConfigField{
		{Name: "flowEventName", Type: "text", Label: "Flow event name", Default: flow.DefaultForwardEventName, Placeholder: flow.DefaultForwardEventName},
	}
}

func (s *FlowStrategy) ValidateConfig(map[string]any) error { return nil }

func (s *FlowStrategy) Publish(ctx context.Context, event model.DomainEvent, dctx Context, config map[string]any) error {
	if s.bus == nil {
		return fmt.Errorf("flow destination has no bus configured")
	}

	name := stringValue(config, "flowEventName")
	if name == "" {
		name = flow.DefaultForwardEventName
	}

	return s.bus.Publish(ctx, flow.Event{
		Name:           name,
		DomainEvent:    event,
		DestinationID:  dctx.DestinationID,
		DestinationKey: dctx.DestinationKey,
		DeliveryID:     dctx.DeliveryID,
		Config:         config,
	})
}
