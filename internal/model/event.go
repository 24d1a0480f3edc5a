package model

import (
	"encoding/json"
	"time"

	"github.com/fibhq/outbox-bridge/internal/util"
)

type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusPublished  EventStatus = "published"
	EventStatusFailed     EventStatus = "failed"
	EventStatusDead       EventStatus = "dead"
)

func (s EventStatus) String() string {
	return string(s)
}

// Terminal reports whether the status can never change again without an
// explicit requeue.
func (s EventStatus) Terminal() bool {
	return s == EventStatusPublished || s == EventStatusDead
}

// DomainEvent is the immutable business fact recorded in the outbox.
// Identity fields never change after creation.
type DomainEvent struct {
	ID            string          `json:"eventId"`
	EventName     string          `json:"eventName"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
	Meta          json.RawMessage `json:"meta,omitempty"`
}

// NewDomainEvent builds an event with a fresh ULID and occurred-at = now.
func NewDomainEvent(eventName, aggregateType, aggregateID string, payload, meta json.RawMessage) DomainEvent {
	return DomainEvent{
		ID:            util.New(),
		EventName:     eventName,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
		Meta:          meta,
	}
}

// OutboxEvent is the persisted projection of a DomainEvent plus its mutable
// lifecycle fields. Once deliveries exist the status is derived from them;
// the lock columns are only used in legacy single-target mode.
type OutboxEvent struct {
	ID            string          `db:"id"`
	EventName     string          `db:"event_name"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	Payload       json.RawMessage `db:"payload"`
	Meta          json.RawMessage `db:"meta"`
	OccurredAt    time.Time       `db:"occurred_at"`
	AvailableAt   time.Time       `db:"available_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Status        EventStatus     `db:"status"`
	Attempts      int             `db:"attempts"`
	LockedUntil   *time.Time      `db:"locked_until"`
	LockOwner     *string         `db:"lock_owner"`
	LastError     *string         `db:"last_error"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Domain reconstructs the immutable DomainEvent from the stored row.
func (e OutboxEvent) Domain() DomainEvent {
	return DomainEvent{
		ID:            e.ID,
		EventName:     e.EventName,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		OccurredAt:    e.OccurredAt,
		Payload:       e.Payload,
		Meta:          e.Meta,
	}
}
