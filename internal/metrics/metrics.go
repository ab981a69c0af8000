// Package metrics exposes the Prometheus collectors of the detection
// pipeline and its satellites.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline
	PacketsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nids_packets_ingested_total",
			Help: "Total number of packets pushed into the analysis window",
		},
	)

	BytesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nids_bytes_ingested_total",
			Help: "Total on-wire bytes of ingested packets",
		},
	)

	Ticks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nids_ticks_total",
			Help: "Total number of detection ticks executed",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nids_tick_duration_seconds",
			Help:    "Wall time spent in one detection tick",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	WindowSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nids_window_packets",
			Help: "Current number of packets held in the analysis window",
		},
	)

	Candidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nids_alert_candidates_total",
			Help: "Rule hits before deduplication",
		},
		[]string{"attack"},
	)

	AlertsAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nids_alerts_admitted_total",
			Help: "Alerts admitted into the ledger",
		},
		[]string{"attack", "severity"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nids_alerts_suppressed_total",
			Help: "Candidates discarded as duplicates of a retained alert",
		},
		[]string{"attack"},
	)

	CaptureDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nids_capture_dropped_total",
			Help: "Frames or messages rejected at the ingest boundary",
		},
		[]string{"source", "reason"},
	)

	// Enrichment
	EnrichmentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nids_enrichment_requests_total",
			Help: "AI enrichment requests by outcome",
		},
		[]string{"result"}, // "ok", "cached", "error", "disabled", "empty"
	)

	EnrichmentBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nids_enrichment_breaker_state",
			Help: "Enrichment circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nids_enrichment_duration_seconds",
			Help:    "Latency of AI enrichment calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Sinks
	SinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nids_sink_writes_total",
			Help: "Sink flushes by writer and outcome",
		},
		[]string{"writer", "result"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nids_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nids_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

// RecordTick records one completed tick.
func RecordTick(packets int, bytes uint64, windowLen int, duration time.Duration) {
	Ticks.Inc()
	PacketsIngested.Add(float64(packets))
	BytesIngested.Add(float64(bytes))
	WindowSize.Set(float64(windowLen))
	TickDuration.Observe(duration.Seconds())
}

func RecordCandidate(attack string) {
	Candidates.WithLabelValues(attack).Inc()
}

func RecordAdmitted(attack, severity string) {
	AlertsAdmitted.WithLabelValues(attack, severity).Inc()
}

func RecordSuppressed(attack string, n int) {
	if n <= 0 {
		return
	}
	AlertsSuppressed.WithLabelValues(attack).Add(float64(n))
}

func RecordDropped(source, reason string) {
	CaptureDropped.WithLabelValues(source, reason).Inc()
}

func RecordEnrichment(result string, duration time.Duration) {
	EnrichmentRequests.WithLabelValues(result).Inc()
	if duration > 0 {
		EnrichmentDuration.Observe(duration.Seconds())
	}
}

func RecordSinkWrite(writer string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SinkWrites.WithLabelValues(writer, result).Inc()
}

func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
