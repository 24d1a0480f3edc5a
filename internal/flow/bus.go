package flow

import (
	"context"
	"sync"

	"github.com/fibhq/outbox-bridge/internal/model"
)

const (
	// DefaultForwardEventName is used by the flow destination strategy when
	// no flowEventName is configured.
	DefaultForwardEventName = "outbox.event.forwarded"
	// DeadDeliveryEventName carries dead-letter notifications.
	DeadDeliveryEventName = "outbox.delivery.dead"
)

// Event is what subscribers receive: the domain event plus the delivery
// context it was forwarded under. Attempts/Error are only set for delivery
// result notifications.
type Event struct {
	Name           string
	DomainEvent    model.DomainEvent
	DestinationID  string
	DestinationKey string
	DeliveryID     string
	Config         map[string]any
	Attempts       int
	Error          string
}

// Handler processes one forwarded event. A returned error is treated as a
// publish failure by the flow strategy, so the outbox retry machinery kicks
// in.
type Handler func(ctx context.Context, evt Event) error

// Bus is a minimal in-process event bus bridging outbox deliveries back into
// host automation. Dispatch is synchronous and in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event name.
func (b *Bus) Subscribe(name string, h Handler) {
	if name == "" || h == nil {
		return
	}

	b.mu.Lock()
	b.handlers[name] = append(b.handlers[name], h)
	b.mu.Unlock()
}

// Publish invokes all handlers registered for evt.Name, stopping at the
// first error. No handlers registered is not an error.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	handlers := b.handlers[evt.Name]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			return err
		}
	}

	return nil
}
