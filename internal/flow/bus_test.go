package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishInOrder(t *testing.T) {
	bus := NewBus()

	var calls []string
	bus.Subscribe("a.b", func(ctx context.Context, evt Event) error {
		calls = append(calls, "first:"+evt.DeliveryID)
		return nil
	})
	bus.Subscribe("a.b", func(ctx context.Context, evt Event) error {
		calls = append(calls, "second:"+evt.DeliveryID)
		return nil
	})

	err := bus.Publish(context.Background(), Event{Name: "a.b", DeliveryID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first:d1", "second:d1"}, calls)
}

func TestBusPublishStopsOnError(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")

	second := false
	bus.Subscribe("x", func(context.Context, Event) error { return boom })
	bus.Subscribe("x", func(context.Context, Event) error { second = true; return nil })

	err := bus.Publish(context.Background(), Event{Name: "x"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, second)
}

func TestBusPublishNoSubscribers(t *testing.T) {
	assert.NoError(t, NewBus().Publish(context.Background(), Event{Name: "nobody.listens"}))
}
