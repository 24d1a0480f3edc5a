package model

// DeliverySummary is the in-memory aggregate of an event's deliveries used
// to derive the event-level status. Keeping the decision logic on a plain
// value keeps the I/O (fetch summary, write result) out of the rule.
type DeliverySummary struct {
	Counts      map[DeliveryStatus]int
	MaxAttempts int
	// LastError is the most recently updated non-empty delivery error.
	LastError string
}

// Total returns the number of deliveries in the summary.
func (s DeliverySummary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// DeriveEventStatus maps a delivery summary to the event status. First match
// wins; the ordering deliberately surfaces the worst in-flight condition. A
// pending delivery that has already been retried counts as failed, not
// pending.
func DeriveEventStatus(s DeliverySummary) EventStatus {
	if s.Total() == 0 {
		return EventStatusPublished
	}

	switch {
	case s.Counts[DeliveryStatusProcessing] > 0:
		return EventStatusProcessing
	case s.Counts[DeliveryStatusFailed] > 0:
		return EventStatusFailed
	case s.Counts[DeliveryStatusPending] > 0 && s.MaxAttempts > 0:
		return EventStatusFailed
	case s.Counts[DeliveryStatusPending] > 0:
		return EventStatusPending
	case s.Counts[DeliveryStatusDead] > 0:
		return EventStatusDead
	default:
		return EventStatusPublished
	}
}
