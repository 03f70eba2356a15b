// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Evaluation metrics
	EvaluationsTotal    *prometheus.CounterVec
	EvaluationDuration  *prometheus.HistogramVec
	InvariantViolations *prometheus.CounterVec
	CallsSkipped        *prometheus.CounterVec
	PathMetricsComputed prometheus.Counter

	// Optimizer metrics
	OptimizerConfigs *prometheus.CounterVec
	OptimizerRuns    *prometheus.CounterVec

	// Persistence metrics
	StoreWrites  *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "alertlab"
	}
	factory := promauto.With(reg)

	return &Metrics{
		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "evaluations_total",
			Help:      "Total number of policy evaluations by kind and status",
		}, []string{"kind", "status"}),
		EvaluationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "duration_seconds",
			Help:      "Single evaluation duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"kind"}),
		InvariantViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "invariant_violations_total",
			Help:      "Total number of invariant violations by invariant",
		}, []string{"invariant"}),
		CallsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "calls_skipped_total",
			Help:      "Total number of calls skipped by reason",
		}, []string{"reason"}),
		PathMetricsComputed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "truth",
			Name:      "path_metrics_computed_total",
			Help:      "Total number of path metrics rows computed",
		}),

		OptimizerConfigs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "configs_total",
			Help:      "Total number of optimizer configs by status",
		}, []string{"status"}),
		OptimizerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "runs_total",
			Help:      "Total number of optimizer runs by mode",
		}, []string{"mode"}),

		StoreWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "writes_total",
			Help:      "Total number of store writes by store and status",
		}, []string{"store", "status"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"breaker"}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful batch run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the metrics instance registered on the default registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// RecordEvaluation records one policy evaluation.
func (m *Metrics) RecordEvaluation(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(kind, status).Inc()
	m.EvaluationDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordInvariantViolation records an invariant violation.
func (m *Metrics) RecordInvariantViolation(invariant string) {
	if m == nil {
		return
	}
	m.InvariantViolations.WithLabelValues(invariant).Inc()
}

// RecordSkip records a skipped call.
func (m *Metrics) RecordSkip(reason string) {
	if m == nil {
		return
	}
	m.CallsSkipped.WithLabelValues(reason).Inc()
}

// RecordPathMetrics records a computed truth row.
func (m *Metrics) RecordPathMetrics() {
	if m == nil {
		return
	}
	m.PathMetricsComputed.Inc()
}

// RecordOptimizerConfig records a finished optimizer config.
func (m *Metrics) RecordOptimizerConfig(status string) {
	if m == nil {
		return
	}
	m.OptimizerConfigs.WithLabelValues(status).Inc()
}

// RecordOptimizerRun records an optimizer run.
func (m *Metrics) RecordOptimizerRun(mode string) {
	if m == nil {
		return
	}
	m.OptimizerRuns.WithLabelValues(mode).Inc()
}

// RecordStoreWrite records a store write.
func (m *Metrics) RecordStoreWrite(store string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreWrites.WithLabelValues(store, status).Inc()
}

// SetBreakerState records the state of a named circuit breaker.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordRunSuccess stamps the last successful run.
func (m *Metrics) RecordRunSuccess(unixSeconds int64) {
	if m == nil {
		return
	}
	m.LastSuccessfulRun.Set(float64(unixSeconds))
}
