// Package metrics defines the Prometheus collectors used by the ETL and the
// dashboard API and a standalone scrape server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	PipelineRunsTotal      *prometheus.CounterVec
	PipelineRunDuration    prometheus.Histogram
	PipelineRetriesTotal   prometheus.Counter
	StageDuration          *prometheus.HistogramVec
	StageFailuresTotal     *prometheus.CounterVec
	SnapshotMovies         prometheus.Gauge
	LastSuccessTimestamp   prometheus.Gauge
	CatalogRequestsTotal   *prometheus.CounterVec
	CatalogRequestDuration *prometheus.HistogramVec
	PosterLookupsTotal     *prometheus.CounterVec
	CacheHitsTotal         *prometheus.CounterVec
	CacheMissesTotal       *prometheus.CounterVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PipelineRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Pipeline runs by outcome (success, failure).",
			},
			[]string{"status"},
		),
		PipelineRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "Wall time of a single pipeline run.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		PipelineRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_retries_total",
				Help: "Pipeline runs re-attempted after a failure.",
			},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Duration of each pipeline stage.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
		StageFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_failures_total",
				Help: "Stage failures by stage and error class.",
			},
			[]string{"stage", "class"},
		),
		SnapshotMovies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapshot_movies",
				Help: "Number of movies in the last committed snapshot.",
			},
		),
		LastSuccessTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_last_success_timestamp_seconds",
				Help: "Unix time of the last committed snapshot.",
			},
		),
		CatalogRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_requests_total",
				Help: "Catalog API requests by endpoint and status code (or error).",
			},
			[]string{"endpoint", "status"},
		),
		CatalogRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_request_duration_seconds",
				Help:    "Catalog API request latency.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),
		PosterLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poster_lookups_total",
				Help: "Poster lookups by result (cached, found, not_found, network, malformed, circuit_open).",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Redis cache hits by cache name.",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Redis cache misses by cache name.",
			},
			[]string{"cache"},
		),
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
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.PipelineRunsTotal,
		m.PipelineRunDuration,
		m.PipelineRetriesTotal,
		m.StageDuration,
		m.StageFailuresTotal,
		m.SnapshotMovies,
		m.LastSuccessTimestamp,
		m.CatalogRequestsTotal,
		m.CatalogRequestDuration,
		m.PosterLookupsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CircuitBreakerState,
	)

	return m
}

// NewUnregistered returns collectors attached to a private registry.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
