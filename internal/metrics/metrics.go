// Package metrics exports TactiMerge counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tactimerge"

// Ingest outcomes.
const (
	OutcomeCreated = "created"
	OutcomeExists  = "exists"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

// Metrics holds the collectors of one process. A nil *Metrics discards
// observations, so components can be built without it.
type Metrics struct {
	registry *prometheus.Registry

	ingested        *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	backendCalls    *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	evidenceSize    *prometheus.HistogramVec
	corpusDocuments prometheus.Gauge
}

// LatencyBuckets are in seconds.
var LatencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// New creates collectors on a fresh registry, including Go runtime metrics.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ingested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "documents_total",
		Help:      "Documents processed by the ingestion pipeline, by outcome",
	}, []string{"outcome"})

	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "API requests by operation and error code",
	}, []string{"operation", "code"})

	m.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "API request latency in seconds",
		Buckets:   LatencyBuckets,
	}, []string{"operation"})

	m.backendCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "calls_total",
		Help:      "Calls to embedding and LLM backends by status",
	}, []string{"backend", "status"})

	m.backendLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "call_duration_seconds",
		Help:      "Latency of backend calls including retries",
		Buckets:   LatencyBuckets,
	}, []string{"backend"})

	m.evidenceSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retrieval",
		Name:      "evidence_items",
		Help:      "Size of retrieved evidence sets",
		Buckets:   prometheus.LinearBuckets(0, 5, 11),
	}, []string{"operation"})

	m.corpusDocuments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "corpus",
		Name:      "documents",
		Help:      "Reports in the corpus store at last check",
	})

	m.registry.MustRegister(
		m.ingested, m.requests, m.requestLatency, m.backendCalls, m.backendLatency,
		m.evidenceSize, m.corpusDocuments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Ingested counts one ingestion outcome.
func (m *Metrics) Ingested(outcome string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(outcome).Inc()
}

// Request records a finished API request. code is empty on success.
func (m *Metrics) Request(operation, code string, d time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	m.requests.WithLabelValues(operation, code).Inc()
	m.requestLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// BackendCall records one logical call to an external backend.
func (m *Metrics) BackendCall(backend string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.backendCalls.WithLabelValues(backend, status).Inc()
	m.backendLatency.WithLabelValues(backend).Observe(d.Seconds())
}

// Evidence records the size of a retrieved evidence set.
func (m *Metrics) Evidence(operation string, n int) {
	if m == nil {
		return
	}
	m.evidenceSize.WithLabelValues(operation).Observe(float64(n))
}

// CorpusDocuments sets the corpus size gauge.
func (m *Metrics) CorpusDocuments(n int) {
	if m == nil {
		return
	}
	m.corpusDocuments.Set(float64(n))
}
