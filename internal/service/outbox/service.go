package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/fibhq/outbox-bridge/internal/repository"
	"github.com/fibhq/outbox-bridge/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// TargetResolver expands an event name into destinations.
type TargetResolver interface {
	ResolveTargetsForEventName(ctx context.Context, eventName string) ([]model.Destination, error)
}

// Service owns the outbox lifecycle outside of dispatch: appending events,
// fanning them out to deliveries, and the maintenance operations.
type Service struct {
	events     repository.EventsRepository
	deliveries repository.DeliveriesRepository
	resolver   TargetResolver
	log        *zap.Logger
}

func New(events repository.EventsRepository, deliveries repository.DeliveriesRepository, resolver TargetResolver, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{events: events, deliveries: deliveries, resolver: resolver, log: log}
}

// Append records a domain event in the outbox. delay postpones eligibility;
// zero means deliverable immediately. Pass the caller's transaction to make
// the append atomic with the business write.
func (s *Service) Append(ctx context.Context, tx *sqlx.Tx, event model.DomainEvent, delay time.Duration) (model.OutboxEvent, error) {
	rows, err := s.AppendMany(ctx, tx, []model.DomainEvent{event}, delay)
	if err != nil {
		return model.OutboxEvent{}, err
	}
	return rows[0], nil
}

func (s *Service) AppendMany(ctx context.Context, tx *sqlx.Tx, events []model.DomainEvent, delay time.Duration) ([]model.OutboxEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if delay < 0 {
		delay = 0
	}

	rows := make([]model.OutboxEvent, 0, len(events))
	for _, ev := range events {
		if ev.EventName == "" {
			return nil, fmt.Errorf("event name must not be empty")
		}
		if ev.ID == "" {
			ev.ID = util.New()
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now().UTC()
		}

		rows = append(rows, model.OutboxEvent{
			ID:            ev.ID,
			EventName:     ev.EventName,
			AggregateType: ev.AggregateType,
			AggregateID:   ev.AggregateID,
			Payload:       ev.Payload,
			Meta:          ev.Meta,
			OccurredAt:    ev.OccurredAt.UTC(),
			AvailableAt:   ev.OccurredAt.UTC().Add(delay),
			Status:        model.EventStatusPending,
		})
	}

	if err := s.events.AppendMany(ctx, tx, rows); err != nil {
		return nil, fmt.Errorf("append outbox events: %w", err)
	}

	return rows, nil
}

// CreateDeliveriesForEvent fans one event out to its resolved destinations.
// An event with zero targets is finalized as published: nobody is listening
// and there is nothing to retry. Each delivery snapshots the destination
// type and config so later edits do not change work already queued.
func (s *Service) CreateDeliveriesForEvent(ctx context.Context, event model.OutboxEvent) (int, error) {
	targets, err := s.resolver.ResolveTargetsForEventName(ctx, event.EventName)
	if err != nil {
		return 0, fmt.Errorf("resolve targets for %q: %w", event.EventName, err)
	}

	if len(targets) == 0 {
		if err := s.events.MarkPublished(ctx, []string{event.ID}); err != nil {
			return 0, err
		}
		s.log.Info("outbox event has no targets, finalized as published",
			zap.String("event_id", event.ID),
			zap.String("event_name", event.EventName))
		return 0, nil
	}

	deliveries := make([]model.Delivery, 0, len(targets))
	for _, dest := range targets {
		deliveries = append(deliveries, model.Delivery{
			ID:            util.New(),
			EventID:       event.ID,
			DestinationID: dest.ID,
			TargetKey:     dest.TechnicalName,
			TargetType:    dest.Type,
			TargetConfig:  dest.Config,
			Status:        model.DeliveryStatusPending,
			AvailableAt:   event.AvailableAt,
		})
	}

	if err := s.deliveries.InsertMany(ctx, nil, deliveries); err != nil {
		return 0, fmt.Errorf("insert deliveries for %q: %w", event.ID, err)
	}

	if _, err := s.events.SyncStatusFromDeliveries(ctx, event.ID); err != nil {
		return len(deliveries), err
	}

	return len(deliveries), nil
}

// SeedMissingDeliveries fans out events that have no delivery rows yet.
// Runs at the start of every dispatch cycle so appended events become
// claimable work.
func (s *Service) SeedMissingDeliveries(ctx context.Context, limit int) (int, error) {
	events, err := s.events.ListWithoutDeliveries(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list events without deliveries: %w", err)
	}

	seeded := 0
	for _, ev := range events {
		n, err := s.CreateDeliveriesForEvent(ctx, ev)
		if err != nil {
			return seeded, err
		}
		seeded += n
	}
	return seeded, nil
}

// RequeueDead returns dead deliveries to pending and resyncs the affected
// event statuses.
func (s *Service) RequeueDead(ctx context.Context, limit int, eventName string) (int64, error) {
	n, eventIDs, err := s.deliveries.RequeueDead(ctx, limit, eventName)
	if err != nil {
		return 0, fmt.Errorf("requeue dead deliveries: %w", err)
	}

	for _, id := range eventIDs {
		if _, err := s.events.SyncStatusFromDeliveries(ctx, id); err != nil {
			return n, err
		}
	}

	if n > 0 {
		s.log.Info("dead deliveries requeued", zap.Int64("count", n), zap.String("event_name", eventName))
	}
	return n, nil
}

// ResetExpiredLocks releases deliveries whose claim expired, typically after
// a worker crash, and resyncs the affected events.
func (s *Service) ResetExpiredLocks(ctx context.Context) (int64, error) {
	n, eventIDs, err := s.deliveries.ResetExpiredLocks(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset expired delivery locks: %w", err)
	}

	for _, id := range eventIDs {
		if _, err := s.events.SyncStatusFromDeliveries(ctx, id); err != nil {
			return n, err
		}
	}

	if n > 0 {
		s.log.Warn("expired delivery locks reset", zap.Int64("count", n))
	}
	return n, nil
}

// Stats is the aggregate backlog view used by the stats command and the
// admin endpoint. OldestPendingAgeSec is nil when nothing is waiting.
type Stats struct {
	Events              map[model.EventStatus]int    `json:"events"`
	Deliveries          map[model.DeliveryStatus]int `json:"deliveries"`
	OldestPendingAgeSec *int64                       `json:"oldestPendingAgeSeconds"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	events, err := s.events.StatusCounts(ctx)
	if err != nil {
		return Stats{}, err
	}

	deliveries, err := s.deliveries.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}

	lag, err := s.events.OldestPendingAgeSeconds(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{Events: events, Deliveries: deliveries, OldestPendingAgeSec: lag}, nil
}
