package model

import (
	"encoding/json"
	"time"
)

type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusPublished  DeliveryStatus = "published"
	DeliveryStatusFailed     DeliveryStatus = "failed"
	DeliveryStatusDead       DeliveryStatus = "dead"
)

func (s DeliveryStatus) String() string {
	return string(s)
}

// Delivery is one fan-out unit: "this event must reach this destination".
// TargetType and TargetConfig are a point-in-time snapshot taken at fan-out;
// later destination edits never change undelivered work.
// (event_id, target_key) is unique.
type Delivery struct {
	ID            string          `db:"id"`
	EventID       string          `db:"event_id"`
	DestinationID string          `db:"destination_id"`
	TargetKey     string          `db:"target_key"`
	TargetType    string          `db:"target_type"`
	TargetConfig  json.RawMessage `db:"target_config"`
	Status        DeliveryStatus  `db:"status"`
	Attempts      int             `db:"attempts"`
	AvailableAt   time.Time       `db:"available_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	LockedUntil   *time.Time      `db:"locked_until"`
	LockOwner     *string         `db:"lock_owner"`
	LastError     *string         `db:"last_error"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Config decodes the snapshot configuration. A missing or empty snapshot
// yields an empty map.
func (d Delivery) Config() map[string]any {
	if len(d.TargetConfig) == 0 {
		return map[string]any{}
	}

	var cfg map[string]any
	if err := json.Unmarshal(d.TargetConfig, &cfg); err != nil || cfg == nil {
		return map[string]any{}
	}
	return cfg
}

// ClaimedDelivery is a delivery row joined with its event, as returned by
// the claim step. It carries everything needed to publish without further
// reads.
type ClaimedDelivery struct {
	Delivery
	EventName     string          `db:"event_name"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	Payload       json.RawMessage `db:"payload"`
	Meta          json.RawMessage `db:"meta"`
	OccurredAt    time.Time       `db:"occurred_at"`
}

// Event reconstructs the DomainEvent from the joined columns.
func (c ClaimedDelivery) Event() DomainEvent {
	return DomainEvent{
		ID:            c.EventID,
		EventName:     c.EventName,
		AggregateType: c.AggregateType,
		AggregateID:   c.AggregateID,
		OccurredAt:    c.OccurredAt,
		Payload:       c.Payload,
		Meta:          c.Meta,
	}
}

// DeliveryOutcome is one dispatch result, archived in ClickHouse for
// reporting.
type DeliveryOutcome struct {
	DeliveryID      string    `db:"delivery_id" json:"delivery_id"`
	EventID         string    `db:"event_id" json:"event_id"`
	EventName       string    `db:"event_name" json:"event_name"`
	DestinationKey  string    `db:"destination_key" json:"destination_key"`
	DestinationType string    `db:"destination_type" json:"destination_type"`
	Outcome         string    `db:"outcome" json:"outcome"` // published | retried | dead
	Attempt         int       `db:"attempt" json:"attempt"`
	Error           string    `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
