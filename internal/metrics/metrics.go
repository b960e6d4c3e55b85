// Package metrics provides Prometheus metrics for agenda parsing and the API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Parsing
	ParsesTotal        *prometheus.CounterVec
	ParseDuration      *prometheus.HistogramVec
	DocumentsParsed    prometheus.Counter
	UnmatchedCosigners prometheus.Counter

	// Cache
	CacheLookupsTotal *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.ParsesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdocflow_parses_total",
			Help: "Agenda reports parsed, by detected format and outcome",
		},
		[]string{"format", "outcome"},
	)

	m.ParseDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tdocflow_parse_duration_seconds",
			Help:    "Time spent parsing one agenda report",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)

	m.DocumentsParsed = f.NewCounter(
		prometheus.CounterOpts{
			Name: "tdocflow_documents_parsed_total",
			Help: "Documents produced by agenda parsing",
		},
	)

	m.UnmatchedCosigners = f.NewCounter(
		prometheus.CounterOpts{
			Name: "tdocflow_unmatched_cosigners_total",
			Help: "Co-signer tokens no vendor signature recognised",
		},
	)

	m.CacheLookupsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdocflow_cache_lookups_total",
			Help: "Parsed report cache lookups, by result (memory, disk, miss, stale)",
		},
		[]string{"result"},
	)

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdocflow_http_requests_total",
			Help: "HTTP requests, by route and status",
		},
		[]string{"route", "status"},
	)

	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tdocflow_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveParse(format, outcome string, documents, unmatched int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if format == "" {
		format = "unknown"
	}
	m.ParsesTotal.WithLabelValues(format, outcome).Inc()
	m.ParseDuration.WithLabelValues(format).Observe(elapsed.Seconds())
	m.DocumentsParsed.Add(float64(documents))
	m.UnmatchedCosigners.Add(float64(unmatched))
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
