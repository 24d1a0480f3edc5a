package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_deliveries_total",
			Help: "Delivery outcomes by result and destination type",
		},
		[]string{"outcome", "type"}, // published|retried|dead , webhook|queue|...
	)

	EventsAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_events_appended_total",
			Help: "Events appended to the outbox",
		},
	)

	DispatchBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_dispatch_batch_duration_seconds",
			Help:    "Wall time of one dispatch cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		DeliveriesTotal,
		EventsAppendedTotal,
		DispatchBatchDuration,
	)
}
