package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the document router.
type Metrics struct {
	DocumentsTotal     *prometheus.CounterVec
	DocumentDurationMs *prometheus.HistogramVec
	SubtaskTotal       *prometheus.CounterVec
	BackendDurationMs  *prometheus.HistogramVec
	RuleHitsTotal      *prometheus.CounterVec
	CircuitTransitions *prometheus.CounterVec
	Confidence         prometheus.Histogram
	RateLimitedTotal   *prometheus.CounterVec
	GuardDeniedTotal   *prometheus.CounterVec
	CacheTotal         *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docroute_documents_total",
			Help: "Total number of documents processed.",
		}, []string{"mode", "status"}),

		DocumentDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docroute_document_duration_ms",
			Help:    "End-to-end document processing duration in milliseconds.",
			Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000},
		}, []string{"mode"}),

		SubtaskTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docroute_subtask_total",
			Help: "Subtask outcomes by task and state.",
		}, []string{"task", "state"}),

		BackendDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docroute_backend_duration_ms",
			Help:    "Backend call latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"provider", "model", "outcome"}),

		RuleHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docroute_routing_rule_hits_total",
			Help: "Routing decisions by task and matched rule.",
		}, []string{"task", "rule"}),

		CircuitTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docroute_circuit_transitions_total",
			Help: "Circuit breaker state transitions per provider.",
		}, []string{"provider", "to"}),

		Confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docroute_confidence",
			Help:    "Confidence score of processed documents.",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),

		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docroute_ratelimited_total",
			Help: "Requests or backend calls rejected by a rate limit.",
		}, []string{"scope"}),

		GuardDeniedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docroute_guard_denied_total",
			Help: "Backend calls denied by the dispatch guard.",
		}, []string{"provider"}),

		CacheTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docroute_cache_total",
			Help: "Result cache lookups by outcome.",
		}, []string{"result"}),
	}
}

// RecordDocument records a finished document.
func (m *Metrics) RecordDocument(mode string, success bool, confidence float64, d time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.DocumentsTotal.WithLabelValues(mode, status).Inc()
	m.DocumentDurationMs.WithLabelValues(mode).Observe(float64(d.Milliseconds()))
	if success {
		m.Confidence.Observe(confidence)
	}
}

func (m *Metrics) RecordSubtask(task, state string) {
	m.SubtaskTotal.WithLabelValues(task, state).Inc()
}

// RecordBackendCall records one attempt against a backend. outcome is
// "ok", "error", "malformed" or "timeout".
func (m *Metrics) RecordBackendCall(provider, model, outcome string, d time.Duration) {
	m.BackendDurationMs.WithLabelValues(provider, model, outcome).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) RecordRuleHit(task, rule string) {
	m.RuleHitsTotal.WithLabelValues(task, rule).Inc()
}

func (m *Metrics) RecordCircuitTransition(provider, to string) {
	m.CircuitTransitions.WithLabelValues(provider, to).Inc()
}

// RecordRateLimitHit counts a rejection. scope is "ingest" or the provider name.
func (m *Metrics) RecordRateLimitHit(scope string) {
	m.RateLimitedTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) RecordGuardDenied(provider string) {
	m.GuardDeniedTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}
