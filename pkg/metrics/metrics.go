// Package metrics defines the Prometheus collectors for the index engine and
// its HTTP surface and exposes an HTTP handler for scraping. Every recording
// helper is safe to call on a nil *Metrics so components can run unmetered.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DocsIndexedTotal     prometheus.Counter
	PostingsTotal        prometheus.Counter
	MemtableKeywords     prometheus.Gauge
	FlushesTotal         *prometheus.CounterVec
	FlushDuration        prometheus.Histogram
	CompactionsTotal     *prometheus.CounterVec
	CompactionDuration   prometheus.Histogram
	LiveSegments         prometheus.Gauge
	SegmentsDeletedTotal prometheus.Counter
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them on reg. A nil reg registers
// on the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_documents_total",
				Help: "Total documents ingested into the index.",
			},
		),
		PostingsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_postings_total",
				Help: "Total keyword postings appended to the memtable.",
			},
		),
		MemtableKeywords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_memtable_keywords",
				Help: "Distinct keywords currently held in the memtable.",
			},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total memtable flushes by status.",
			},
			[]string{"status"},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_flush_duration_seconds",
				Help:    "Memtable flush latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		CompactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_compactions_total",
				Help: "Total compaction cycles that merged segments, by status.",
			},
			[]string{"status"},
		),
		CompactionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_compaction_duration_seconds",
				Help:    "Segment merge latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
		LiveSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_live_segments",
				Help: "Number of segments referenced by the catalog.",
			},
		),
		SegmentsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_segments_deleted_total",
				Help: "Total superseded segment files removed after their grace period.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by kind (single, conjunctive) and result (hit, empty, error).",
			},
			[]string{"kind", "result"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"kind"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of document ids returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
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
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocsIndexedTotal,
		m.PostingsTotal,
		m.MemtableKeywords,
		m.FlushesTotal,
		m.FlushDuration,
		m.CompactionsTotal,
		m.CompactionDuration,
		m.LiveSegments,
		m.SegmentsDeletedTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveIngest records one ingested document and the postings it produced.
func (m *Metrics) ObserveIngest(postings int, memtableKeywords int) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Inc()
	m.PostingsTotal.Add(float64(postings))
	m.MemtableKeywords.Set(float64(memtableKeywords))
}

// ObserveFlush records a flush attempt. status is "ok" or "error".
func (m *Metrics) ObserveFlush(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.FlushesTotal.WithLabelValues(status).Inc()
	m.FlushDuration.Observe(d.Seconds())
	if status == "ok" {
		m.MemtableKeywords.Set(0)
	}
}

// ObserveCompaction records a merge cycle. status is "ok" or "error".
func (m *Metrics) ObserveCompaction(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.CompactionsTotal.WithLabelValues(status).Inc()
	m.CompactionDuration.Observe(d.Seconds())
}

func (m *Metrics) SetLiveSegments(n int) {
	if m == nil {
		return
	}
	m.LiveSegments.Set(float64(n))
}

func (m *Metrics) SegmentDeleted() {
	if m == nil {
		return
	}
	m.SegmentsDeletedTotal.Inc()
}

// ObserveSearch records a query of the given kind ("single" or
// "conjunctive").
func (m *Metrics) ObserveSearch(kind string, results int, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "hit"
	switch {
	case err != nil:
		result = "error"
	case results == 0:
		result = "empty"
	}
	m.SearchQueriesTotal.WithLabelValues(kind, result).Inc()
	m.SearchLatency.WithLabelValues(kind).Observe(d.Seconds())
	if err == nil {
		m.SearchResultsCount.Observe(float64(results))
	}
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
