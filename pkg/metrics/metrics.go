// Package metrics defines the Prometheus metric collectors used by the build
// and lookup services and exposes an HTTP handler for scraping.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the forward index services.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	LookupsTotal         *prometheus.CounterVec
	LookupLatency        *prometheus.HistogramVec
	LookupTokens         prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	TokensIndexedTotal   prometheus.Counter
	SegmentFlushesTotal  *prometheus.CounterVec
	BuildDuration        prometheus.Histogram
	LockWait             prometheus.Histogram
	ActiveSegments       *prometheus.GaugeVec
	BufferedDocs         *prometheus.GaugeVec
	ActiveShards         prometheus.Gauge
	BreakerState         *prometheus.GaugeVec
	BreakerTransitions   *prometheus.CounterVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg. Tests pass
// a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forward_lookups_total",
				Help: "Forward index lookups by operation and status (ok, not_found, error).",
			},
			[]string{"operation", "status"},
		),
		LookupLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forward_lookup_latency_seconds",
				Help:    "Forward index lookup latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"operation"},
		),
		LookupTokens: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forward_lookup_tokens",
				Help:    "Number of tokens returned per lookup.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents buffered for indexing.",
			},
		),
		TokensIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "forward_tokens_written_total",
				Help: "Total tokens written to sealed segments.",
			},
		),
		SegmentFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segment_flushes_total",
				Help: "Total segment flush operations by status.",
			},
			[]string{"status"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forward_build_duration_seconds",
				Help:    "Time to build and seal one segment.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		LockWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forward_build_lock_wait_seconds",
				Help:    "Time spent waiting for the build lock.",
				Buckets: []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		ActiveSegments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_segments",
				Help: "Number of open sealed segments per shard.",
			},
			[]string{"shard_id"},
		),
		BufferedDocs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_buffered_documents",
				Help: "Documents buffered in memory per shard.",
			},
			[]string{"shard_id"},
		),
		ActiveShards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_shards",
				Help: "Number of active index shards.",
			},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
			},
			[]string{"name"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_transitions_total",
				Help: "Circuit breaker state changes by target state.",
			},
			[]string{"name", "to"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.LookupsTotal,
		m.LookupLatency,
		m.LookupTokens,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.TokensIndexedTotal,
		m.SegmentFlushesTotal,
		m.BuildDuration,
		m.LockWait,
		m.ActiveSegments,
		m.BufferedDocs,
		m.ActiveShards,
		m.BreakerState,
		m.BreakerTransitions,
	)

	return m
}

// Handler serves g in the Prometheus text or OpenMetrics format, whichever
// the scraper asks for. A collector that fails is logged and skipped.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}
