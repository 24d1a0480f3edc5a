package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fibhq/outbox-bridge/internal/flow"
	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/fibhq/outbox-bridge/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	claimed []model.ClaimedDelivery

	claimOwner  string
	published   []string
	rescheduled map[string]time.Time
	lastErrors  map[string]string
	dead        []string
}

func newFakeStore(claimed ...model.ClaimedDelivery) *fakeStore {
	return &fakeStore{
		claimed:     claimed,
		rescheduled: map[string]time.Time{},
		lastErrors:  map[string]string{},
	}
}

func (f *fakeStore) ClaimBatch(_ context.Context, limit, _ int, owner string) ([]model.ClaimedDelivery, error) {
	f.claimOwner = owner
	if len(f.claimed) > limit {
		return f.claimed[:limit], nil
	}
	return f.claimed, nil
}

func (f *fakeStore) MarkPublished(_ context.Context, id string) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) Reschedule(_ context.Context, id string, availableAt time.Time, lastError string) error {
	f.rescheduled[id] = availableAt
	f.lastErrors[id] = lastError
	return nil
}

func (f *fakeStore) MarkDead(_ context.Context, id string, lastError string) error {
	f.dead = append(f.dead, id)
	f.lastErrors[id] = lastError
	return nil
}

type fakeSyncer struct {
	synced []string
}

func (f *fakeSyncer) SyncStatusFromDeliveries(_ context.Context, eventID string) (model.EventStatus, error) {
	f.synced = append(f.synced, eventID)
	return model.EventStatusPublished, nil
}

type fakeSeeder struct {
	seeded int
}

func (f *fakeSeeder) SeedMissingDeliveries(context.Context, int) (int, error) {
	return f.seeded, nil
}

type passthroughSecrets struct{}

func (passthroughSecrets) ResolveConfig(config map[string]any) (map[string]any, error) {
	return config, nil
}

type recordingStrategy struct {
	typ       string
	published []strategy.Context
	err       error
}

func (s *recordingStrategy) Type() string                        { return s.typ }
func (s *recordingStrategy) Label() string                       { return s.typ }
func (s *recordingStrategy) ConfigFields() []strategy.ConfigField { return nil }
func (s *recordingStrategy) ValidateConfig(map[string]any) error { return nil }

func (s *recordingStrategy) Publish(_ context.Context, _ model.DomainEvent, dctx strategy.Context, _ map[string]any) error {
	s.published = append(s.published, dctx)
	return s.err
}

type fakeSink struct {
	outcomes []model.DeliveryOutcome
}

func (f *fakeSink) InsertOutcomes(_ context.Context, outcomes []model.DeliveryOutcome) error {
	f.outcomes = append(f.outcomes, outcomes...)
	return nil
}

func claimedDelivery(id, targetType string, attempts int) model.ClaimedDelivery {
	return model.ClaimedDelivery{
		Delivery: model.Delivery{
			ID:            id,
			EventID:       "ev-" + id,
			DestinationID: "dest-" + id,
			TargetKey:     "key-" + id,
			TargetType:    targetType,
			TargetConfig:  json.RawMessage(`{}`),
			Status:        model.DeliveryStatusProcessing,
			Attempts:      attempts,
		},
		EventName:  "order.placed.v1",
		OccurredAt: time.Now().UTC(),
		Payload:    json.RawMessage(`{}`),
	}
}

func newTestDispatcher(t *testing.T, store *fakeStore, strat strategy.Strategy, sink OutcomeSink, opts Options) (*Dispatcher, *fakeSyncer) {
	t.Helper()

	reg, err := strategy.NewRegistry(strat)
	require.NoError(t, err)

	syncer := &fakeSyncer{}
	return New(store, syncer, &fakeSeeder{}, passthroughSecrets{}, reg, flow.NewBus(), sink, nil, opts), syncer
}

func TestDispatchBatchPublishes(t *testing.T) {
	store := newFakeStore(claimedDelivery("d1", "webhook", 0), claimedDelivery("d2", "webhook", 0))
	strat := &recordingStrategy{typ: "webhook"}
	sink := &fakeSink{}
	d, syncer := newTestDispatcher(t, store, strat, sink, Options{WorkerID: "w1"})

	res, err := d.DispatchBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Claimed)
	assert.Equal(t, 2, res.Published)
	assert.Zero(t, res.Retried)
	assert.Zero(t, res.Dead)
	assert.Zero(t, res.Errors)

	assert.Equal(t, []string{"d1", "d2"}, store.published)
	assert.Equal(t, []string{"ev-d1", "ev-d2"}, syncer.synced)

	require.Len(t, strat.published, 2)
	assert.Equal(t, "key-d1", strat.published[0].DestinationKey)

	require.Len(t, sink.outcomes, 2)
	assert.Equal(t, "published", sink.outcomes[0].Outcome)
	assert.Equal(t, 1, sink.outcomes[0].Attempt)
}

func TestDispatchBatchClaimOwnerCarriesWorkerID(t *testing.T) {
	store := newFakeStore()
	d, _ := newTestDispatcher(t, store, &recordingStrategy{typ: "webhook"}, nil, Options{WorkerID: "worker-7"})

	_, err := d.DispatchBatch(context.Background())
	require.NoError(t, err)

	assert.Regexp(t, `^worker-7:[0-9a-f]{8}$`, store.claimOwner)
}

func TestDispatchBatchReschedulesFailure(t *testing.T) {
	store := newFakeStore(claimedDelivery("d1", "webhook", 0))
	strat := &recordingStrategy{typ: "webhook", err: errors.New("connection refused")}
	d, _ := newTestDispatcher(t, store, strat, nil, Options{MaxAttempts: 3})

	res, err := d.DispatchBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Retried)
	assert.Zero(t, res.Dead)
	assert.Equal(t, 1, res.Errors)
	assert.Contains(t, store.lastErrors["d1"], "connection refused")

	retryAt, ok := store.rescheduled["d1"]
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), retryAt, 5*time.Second)
}

func TestDispatchBatchDeadLettersOnLastAttempt(t *testing.T) {
	store := newFakeStore(claimedDelivery("d1", "webhook", 2))
	strat := &recordingStrategy{typ: "webhook", err: errors.New("boom")}

	bus := flow.NewBus()
	var deadEvents []flow.Event
	bus.Subscribe(flow.DeadDeliveryEventName, func(_ context.Context, evt flow.Event) error {
		deadEvents = append(deadEvents, evt)
		return nil
	})

	reg, err := strategy.NewRegistry(strat)
	require.NoError(t, err)

	d := New(store, &fakeSyncer{}, &fakeSeeder{}, passthroughSecrets{}, reg, bus, nil, nil, Options{MaxAttempts: 3})

	res, err := d.DispatchBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Dead)
	assert.Equal(t, []string{"d1"}, store.dead)

	require.Len(t, deadEvents, 1)
	assert.Equal(t, "d1", deadEvents[0].DeliveryID)
	assert.Equal(t, 3, deadEvents[0].Attempts)
	assert.Equal(t, "boom", deadEvents[0].Error)
}

func TestDispatchBatchUnknownTypeFailsDelivery(t *testing.T) {
	store := newFakeStore(claimedDelivery("d1", "carrier-pigeon", 0))
	d, _ := newTestDispatcher(t, store, &recordingStrategy{typ: "webhook"}, nil, Options{MaxAttempts: 3})

	res, err := d.DispatchBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Retried)
	assert.Contains(t, store.lastErrors["d1"], `unknown destination type "carrier-pigeon"`)
}

func TestDispatchBatchOneFailureDoesNotAbortBatch(t *testing.T) {
	store := newFakeStore(claimedDelivery("bad", "carrier-pigeon", 0), claimedDelivery("ok", "webhook", 0))
	d, _ := newTestDispatcher(t, store, &recordingStrategy{typ: "webhook"}, nil, Options{})

	res, err := d.DispatchBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Published)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, []string{"ok"}, store.published)
}
