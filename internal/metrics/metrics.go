// Package metrics exposes prometheus counters for the quoting service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshquote"

// Analysis outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeUnsupported = "unsupported"
	OutcomeTooLarge    = "too_large"
	OutcomeError       = "error"
	OutcomeInvalid     = "invalid"
)

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	analyses         *prometheus.CounterVec
	volumeMethods    *prometheus.CounterVec
	analyzeSeconds   prometheus.Histogram
	leads            *prometheus.CounterVec
	sinkFailures     *prometheus.CounterVec
	previewEvictions prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Model uploads processed by /analyze, by outcome.",
		}, []string{"outcome"}),
		volumeMethods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_methods_total",
			Help:      "Successful analyses by the volume estimation stage that produced the result.",
		}, []string{"method"}),
		analyzeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyze_duration_seconds",
			Help:      "Time spent decoding, measuring and pricing an upload.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		leads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_requests_total",
			Help:      "Quote requests received by /send-quote, by outcome.",
		}, []string{"outcome"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_sink_failures_total",
			Help:      "Quote request deliveries that failed, by sink.",
		}, []string{"sink"}),
		previewEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_evictions_total",
			Help:      "Preview artifacts removed after their time to live.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.analyses,
		m.volumeMethods,
		m.analyzeSeconds,
		m.leads,
		m.sinkFailures,
		m.previewEvictions,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Analysis records one /analyze request. method is empty unless the
// outcome is OutcomeOK.
func (m *Metrics) Analysis(outcome, method string, took time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.volumeMethods.WithLabelValues(method).Inc()
		m.analyzeSeconds.Observe(took.Seconds())
	}
}

// Lead records one /send-quote request.
func (m *Metrics) Lead(outcome string) {
	if m == nil {
		return
	}
	m.leads.WithLabelValues(outcome).Inc()
}

// SinkFailure records a failed delivery to the named sink.
func (m *Metrics) SinkFailure(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// PreviewEvicted adds n evicted preview artifacts.
func (m *Metrics) PreviewEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.previewEvictions.Add(float64(n))
}
