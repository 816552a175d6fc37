package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collection metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagesight_collect_events_total",
			Help: "Total number of events received, by type and outcome",
		},
		[]string{"event_type", "status"},
	)

	EventsSampledOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesight_collect_events_sampled_out_total",
			Help: "Total number of events dropped by tenant sampling",
		},
	)

	SessionUpdateErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesight_collect_session_update_errors_total",
			Help: "Total number of failed session upserts",
		},
	)

	// Storage metrics
	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagesight_storage_duration_seconds",
			Help:    "Duration of event persistence in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesight_storage_errors_total",
			Help: "Total number of storage errors",
		},
	)

	// Side-channel metrics
	RealtimeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesight_realtime_errors_total",
			Help: "Total number of realtime tracker errors",
		},
	)

	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesight_publish_errors_total",
			Help: "Total number of event publish errors",
		},
	)

	// Query metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagesight_query_duration_seconds",
			Help:    "Duration of analytics queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)
)
