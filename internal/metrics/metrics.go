package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapse_events_ingested_total",
		Help: "Events received by the ingestion endpoint, labelled by source and outcome.",
	}, []string{"source_system", "outcome"})

	SyncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapse_sync_cycles_total",
		Help: "Completed sync cycles, labelled by adapter and outcome.",
	}, []string{"adapter", "outcome"})

	SyncItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapse_sync_items_total",
		Help: "Source items handled by sync cycles, labelled by adapter and result.",
	}, []string{"adapter", "result"})

	SyncCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synapse_sync_cycle_duration_seconds",
		Help:    "Wall time of one sync cycle.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"adapter"})

	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapse_delivery_attempts_total",
		Help: "HTTP delivery attempts to the ingestion endpoint, labelled by result.",
	}, []string{"result"})

	CursorLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "synapse_cursor_lag_seconds",
		Help: "Age of the committed cursor position after each cycle.",
	}, []string{"adapter", "scope"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapse_http_requests_total",
		Help: "HTTP requests served, labelled by route template, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synapse_http_request_duration_seconds",
		Help:    "Latency of HTTP requests by route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	HTTPPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synapse_http_panics_total",
		Help: "Handler panics recovered by the HTTP middleware.",
	})
)

// Outcome labels for EventsIngested.
const (
	IngestCreated   = "created"
	IngestDuplicate = "duplicate"
	IngestRejected  = "rejected"
	IngestFailed    = "failed"
)

// Result labels for SyncItems and DeliveryAttempts.
const (
	ItemDelivered           = "delivered"
	ItemNormalizationFailed = "normalization_failed"
	ItemDeliveryFailed      = "delivery_failed"

	AttemptSucceeded = "succeeded"
	AttemptRetried   = "retried"
	AttemptFailed    = "failed"
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
