package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fibhq/outbox-bridge/internal/flow"
	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() model.DomainEvent {
	return model.DomainEvent{
		ID:            "01TESTEVENT0000000000000000",
		EventName:     "order.placed.v1",
		AggregateType: "order",
		AggregateID:   "o-42",
		OccurredAt:    time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Payload:       json.RawMessage(`{"total":99}`),
	}
}

func testContext() Context {
	return Context{DestinationID: "d-1", DestinationKey: "wh-main", DeliveryID: "del-1"}
}

func TestRegistryRejectsDuplicateTypes(t *testing.T) {
	_, err := NewRegistry(NewNullStrategy(nil), NewNullStrategy(nil))
	assert.ErrorContains(t, err, "duplicate strategy registration")
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	reg, err := NewRegistry(NewNullStrategy(nil), NewWebhookStrategy(nil))
	require.NoError(t, err)

	s, ok := reg.ByType("WEBHOOK")
	require.True(t, ok)
	assert.Equal(t, "webhook", s.Type())

	_, ok = reg.ByType("carrier-pigeon")
	assert.False(t, ok)
}

func TestRegistryTypeDefinitionsSorted(t *testing.T) {
	reg, err := NewRegistry(NewWebhookStrategy(nil), NewNullStrategy(nil), NewSFTPStrategy())
	require.NoError(t, err)

	defs := reg.TypeDefinitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "Null (drop)", defs[0].Label)
	assert.Equal(t, "SFTP file drop", defs[1].Label)
	assert.Equal(t, "Webhook", defs[2].Label)
}

func TestWebhookPublish(t *testing.T) {
	var gotHeaders http.Header
	var gotBody model.DomainEvent

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookStrategy(srv.Client())
	err := s.Publish(context.Background(), testEvent(), testContext(), map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"X-Custom": "yes"},
	})
	require.NoError(t, err)

	assert.Equal(t, "01TESTEVENT0000000000000000", gotHeaders.Get("X-Event-Id"))
	assert.Equal(t, "order.placed.v1", gotHeaders.Get("X-Event-Name"))
	assert.Equal(t, "wh-main", gotHeaders.Get("X-Outbox-Destination-Key"))
	assert.Equal(t, "del-1", gotHeaders.Get("X-Outbox-Delivery-Id"))
	assert.Equal(t, "yes", gotHeaders.Get("X-Custom"))
	assert.Equal(t, "order.placed.v1", gotBody.EventName)
}

func TestWebhookPublishRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookStrategy(srv.Client()).Publish(context.Background(), testEvent(), testContext(), map[string]any{"url": srv.URL})
	assert.ErrorContains(t, err, "HTTP 502")
}

func TestWebhookValidateConfig(t *testing.T) {
	err := NewWebhookStrategy(nil).ValidateConfig(map[string]any{})
	assert.ErrorContains(t, err, `requires "url"`)
}

type fakeProducer struct {
	topic string
	key   []byte
	value []byte
	err   error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key, value []byte) error {
	f.topic, f.key, f.value = topic, key, value
	return f.err
}

func TestQueuePublishEnvelope(t *testing.T) {
	p := &fakeProducer{}
	s := NewQueueStrategy(p)

	err := s.Publish(context.Background(), testEvent(), testContext(), map[string]any{"topic": "outbox.events"})
	require.NoError(t, err)

	assert.Equal(t, "outbox.events", p.topic)
	assert.Equal(t, "order.placed.v1", string(p.key))

	var msg OutboundMessage
	require.NoError(t, json.Unmarshal(p.value, &msg))
	assert.Equal(t, "del-1", msg.DeliveryID)
	assert.Equal(t, "wh-main", msg.DestinationKey)
	assert.Equal(t, "order", msg.AggregateType)
}

func TestQueuePublishRoutingKeyOverride(t *testing.T) {
	p := &fakeProducer{}
	err := NewQueueStrategy(p).Publish(context.Background(), testEvent(), testContext(), map[string]any{
		"topic":      "outbox.events",
		"routingKey": "orders",
	})
	require.NoError(t, err)
	assert.Equal(t, "orders", string(p.key))
}

func TestQueueValidateConfig(t *testing.T) {
	err := NewQueueStrategy(&fakeProducer{}).ValidateConfig(map[string]any{})
	assert.ErrorContains(t, err, `requires "topic"`)
}

func TestCentrifugoPublish(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer srv.Close()

	cfg := map[string]any{"apiUrl": srv.URL, "apiKey": "k1", "channel": "events"}
	err := NewCentrifugoStrategy(srv.Client()).Publish(context.Background(), testEvent(), testContext(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "apikey k1", gotAuth)
}

func TestCentrifugoPublishErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":102,"message":"unknown channel"}}`))
	}))
	defer srv.Close()

	cfg := map[string]any{"apiUrl": srv.URL, "apiKey": "k1", "channel": "events"}
	err := NewCentrifugoStrategy(srv.Client()).Publish(context.Background(), testEvent(), testContext(), cfg)
	assert.ErrorContains(t, err, "unknown channel")
}

func TestSFTPValidateConfig(t *testing.T) {
	s := NewSFTPStrategy()

	err := s.ValidateConfig(map[string]any{"host": "h", "username": "u"})
	assert.ErrorContains(t, err, `requires "remoteDir"`)

	err = s.ValidateConfig(map[string]any{"host": "h", "username": "u", "remoteDir": "/in"})
	assert.ErrorContains(t, err, "password/passwordRef")

	err = s.ValidateConfig(map[string]any{"host": "h", "username": "u", "remoteDir": "/in", "password": "p"})
	assert.NoError(t, err)
}

func TestSFTPResolveFileName(t *testing.T) {
	ev := testEvent()

	assert.Equal(t, "01TESTEVENT0000000000000000.json", ResolveFileName("", ev))
	assert.Equal(t, "order_placed_v1-o-42.json", ResolveFileName("{eventName}-{aggregateId}.json", ev))
}

func TestFlowPublish(t *testing.T) {
	bus := flow.NewBus()

	var got flow.Event
	bus.Subscribe("custom.forward", func(_ context.Context, evt flow.Event) error {
		got = evt
		return nil
	})

	s := NewFlowStrategy(bus)
	err := s.Publish(context.Background(), testEvent(), testContext(), map[string]any{"flowEventName": "custom.forward"})
	require.NoError(t, err)

	assert.Equal(t, "order.placed.v1", got.DomainEvent.EventName)
	assert.Equal(t, "del-1", got.DeliveryID)
}

func TestNullPublish(t *testing.T) {
	assert.NoError(t, NewNullStrategy(nil).Publish(context.Background(), testEvent(), testContext(), nil))
}
