package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/fibhq/outbox-bridge/internal/flow"
	"github.com/fibhq/outbox-bridge/internal/metrics"
	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/fibhq/outbox-bridge/internal/strategy"
	"github.com/fibhq/outbox-bridge/internal/util"
	"go.uber.org/zap"
)

// deliveryStore is the slice of the deliveries repository the dispatcher
// needs. Narrow so tests can fake it.
type deliveryStore interface {
	ClaimBatch(ctx context.Context, limit, lockSeconds int, owner string) ([]model.ClaimedDelivery, error)
	MarkPublished(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, availableAt time.Time, lastError string) error
	MarkDead(ctx context.Context, id string, lastError string) error
}

type eventSyncer interface {
	SyncStatusFromDeliveries(ctx context.Context, eventID string) (model.EventStatus, error)
}

type deliverySeeder interface {
	SeedMissingDeliveries(ctx context.Context, limit int) (int, error)
}

type configResolver interface {
	ResolveConfig(config map[string]any) (map[string]any, error)
}

// OutcomeSink archives dispatch outcomes, typically into ClickHouse.
type OutcomeSink interface {
	InsertOutcomes(ctx context.Context, outcomes []model.DeliveryOutcome) error
}

// Options tunes one dispatcher instance.
type Options struct {
	BatchSize   int
	LockSeconds int
	MaxAttempts int
	WorkerID    string
}

func (o *Options) normalize() {
	if o.BatchSize < 1 || o.BatchSize > 1000 {
		o.BatchSize = 100
	}
	if o.LockSeconds < 5 || o.LockSeconds > 900 {
		o.LockSeconds = 120
	}
	if o.MaxAttempts < 1 || o.MaxAttempts > 100 {
		o.MaxAttempts = 10
	}
	if o.WorkerID == "" {
		o.WorkerID = "outbox-" + util.RandHex(6)
	}
}

// Result summarizes one dispatch cycle. Errors counts publish failures,
// whether they ended in a retry or a dead-letter.
type Result struct {
	Seeded    int
	Claimed   int
	Published int
	Retried   int
	Dead      int
	Errors    int
}

// Dispatcher drains the delivery backlog: seed, claim, publish, settle.
// Multiple instances may run against the same database; the claim step
// keeps them from stepping on each other.
type Dispatcher struct {
	deliveries deliveryStore
	events     eventSyncer
	seeder     deliverySeeder
	secrets    configResolver
	registry   *strategy.Registry
	bus        *flow.Bus
	outcomes   OutcomeSink
	log        *zap.Logger
	opts       Options
	now        func() time.Time
}

func New(
	deliveries deliveryStore,
	events eventSyncer,
	seeder deliverySeeder,
	secrets configResolver,
	registry *strategy.Registry,
	bus *flow.Bus,
	outcomes OutcomeSink,
	log *zap.Logger,
	opts Options,
) *Dispatcher {
	opts.normalize()
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		deliveries: deliveries,
		events:     events,
		seeder:     seeder,
		secrets:    secrets,
		registry:   registry,
		bus:        bus,
		outcomes:   outcomes,
		log:        log,
		opts:       opts,
		now:        time.Now,
	}
}

// DispatchBatch runs one full cycle and reports what happened. A failing
// delivery never aborts the batch; its error is recorded on the row.
func (d *Dispatcher) DispatchBatch(ctx context.Context) (Result, error) {
	started := d.now()
	defer func() {
		metrics.DispatchBatchDuration.Observe(d.now().Sub(started).Seconds())
	}()

	var res Result

	seeded, err := d.seeder.SeedMissingDeliveries(ctx, d.opts.BatchSize)
	if err != nil {
		return res, fmt.Errorf("seed deliveries: %w", err)
	}
	res.Seeded = seeded

	owner := fmt.Sprintf("%s:%s", d.opts.WorkerID, util.RandHex(4))
	claimed, err := d.deliveries.ClaimBatch(ctx, d.opts.BatchSize, d.opts.LockSeconds, owner)
	if err != nil {
		return res, err
	}
	res.Claimed = len(claimed)

	var outcomes []model.DeliveryOutcome

	for _, cd := range claimed {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		outcome := d.dispatchOne(ctx, cd)
		outcomes = append(outcomes, outcome)

		switch outcome.Outcome {
		case outcomePublished:
			res.Published++
		case outcomeRetried:
			res.Retried++
			res.Errors++
		case outcomeDead:
			res.Dead++
			res.Errors++
		}

		metrics.DeliveriesTotal.WithLabelValues(outcome.Outcome, cd.TargetType).Inc()

		if _, err := d.events.SyncStatusFromDeliveries(ctx, cd.EventID); err != nil {
			d.log.Error("event status sync failed",
				zap.String("event_id", cd.EventID), zap.Error(err))
		}
	}

	if d.outcomes != nil && len(outcomes) > 0 {
		if err := d.outcomes.InsertOutcomes(ctx, outcomes); err != nil {
			d.log.Warn("delivery log write failed", zap.Error(err))
		}
	}

	return res, nil
}

const (
	outcomePublished = "published"
	outcomeRetried   = "retried"
	outcomeDead      = "dead"
)

func (d *Dispatcher) dispatchOne(ctx context.Context, cd model.ClaimedDelivery) model.DeliveryOutcome {
	attempt := cd.Attempts + 1

	outcome := model.DeliveryOutcome{
		DeliveryID:      cd.ID,
		EventID:         cd.EventID,
		EventName:       cd.EventName,
		DestinationKey:  cd.TargetKey,
		DestinationType: cd.TargetType,
		Attempt:         attempt,
		CreatedAt:       d.now().UTC(),
	}

	err := d.publish(ctx, cd)
	if err == nil {
		if err := d.deliveries.MarkPublished(ctx, cd.ID); err != nil {
			d.log.Error("mark delivery published failed",
				zap.String("delivery_id", cd.ID), zap.Error(err))
		}
		d.log.Info("delivery published",
			zap.String("delivery_id", cd.ID),
			zap.String("event_name", cd.EventName),
			zap.String("destination_key", cd.TargetKey),
			zap.Int("attempt", attempt))

		outcome.Outcome = outcomePublished
		return outcome
	}

	outcome.Error = err.Error()

	if attempt >= d.opts.MaxAttempts {
		if derr := d.deliveries.MarkDead(ctx, cd.ID, err.Error()); derr != nil {
			d.log.Error("mark delivery dead failed",
				zap.String("delivery_id", cd.ID), zap.Error(derr))
		}
		d.log.Error("delivery dead, attempts exhausted",
			zap.String("delivery_id", cd.ID),
			zap.String("event_name", cd.EventName),
			zap.String("destination_key", cd.TargetKey),
			zap.Int("attempt", attempt),
			zap.Error(err))

		d.notifyDead(ctx, cd, err)

		outcome.Outcome = outcomeDead
		return outcome
	}

	retryAt := d.now().UTC().Add(Backoff(attempt))
	if rerr := d.deliveries.Reschedule(ctx, cd.ID, retryAt, err.Error()); rerr != nil {
		d.log.Error("reschedule delivery failed",
			zap.String("delivery_id", cd.ID), zap.Error(rerr))
	}
	d.log.Warn("delivery failed, rescheduled",
		zap.String("delivery_id", cd.ID),
		zap.String("event_name", cd.EventName),
		zap.String("destination_key", cd.TargetKey),
		zap.Int("attempt", attempt),
		zap.Time("retry_at", retryAt),
		zap.Error(err))

	outcome.Outcome = outcomeRetried
	return outcome
}

func (d *Dispatcher) publish(ctx context.Context, cd model.ClaimedDelivery) error {
	strat, ok := d.registry.ByType(cd.TargetType)
	if !ok {
		return fmt.Errorf("unknown destination type %q", cd.TargetType)
	}

	config := cd.Config()
	if d.secrets != nil {
		resolved, err := d.secrets.ResolveConfig(config)
		if err != nil {
			return fmt.Errorf("resolve destination credentials: %w", err)
		}
		config = resolved
	}

	if err := strat.ValidateConfig(config); err != nil {
		return err
	}

	return strat.Publish(ctx, cd.Event(), strategy.Context{
		DestinationID:  cd.DestinationID,
		DestinationKey: cd.TargetKey,
		DeliveryID:     cd.ID,
	}, config)
}

// notifyDead emits the dead-letter flow event so host automation can alert.
// Best-effort: a subscriber error must not disturb settling.
func (d *Dispatcher) notifyDead(ctx context.Context, cd model.ClaimedDelivery, cause error) {
	if d.bus == nil {
		return
	}

	err := d.bus.Publish(ctx, flow.Event{
		Name:           flow.DeadDeliveryEventName,
		DomainEvent:    cd.Event(),
		DestinationID:  cd.DestinationID,
		DestinationKey: cd.TargetKey,
		DeliveryID:     cd.ID,
		Attempts:       cd.Attempts + 1,
		Error:          cause.Error(),
	})
	if err != nil {
		d.log.Warn("dead delivery notification failed",
			zap.String("delivery_id", cd.ID), zap.Error(err))
	}
}
