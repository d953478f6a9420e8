// Package metrics exposes Prometheus collectors for fit jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/copyleftdev/gdfit/internal/optimization"
)

const namespace = "gdfit"

// Outcome labels for runs that produced no result
const (
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// MethodUnknown labels requests whose method could not be parsed
const MethodUnknown = "unknown"

// Metrics groups the fit collectors
type Metrics struct {
	runs     *prometheus.CounterVec
	steps    *prometheus.HistogramVec
	duration *prometheus.HistogramVec
	cost     *prometheus.GaugeVec
	running  prometheus.Gauge
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fit_runs_total",
			Help:      "Fit runs by method and terminal status.",
		}, []string{"method", "status"}),
		steps: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_steps",
			Help:      "Parameter updates applied per completed fit.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
		}, []string{"method"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      "Wall time of completed fits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		cost: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fit_last_final_cost",
			Help:      "Final cost of the most recent completed fit.",
		}, []string{"method"}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fit_jobs_running",
			Help:      "Fit jobs currently holding a worker slot.",
		}),
	}
}

// ObserveResult records a completed fit
func (m *Metrics) ObserveResult(method string, res *optimization.Result, elapsed time.Duration) {
	m.runs.WithLabelValues(method, string(res.Status)).Inc()
	m.steps.WithLabelValues(method).Observe(float64(res.Steps))
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
	m.cost.WithLabelValues(method).Set(res.FinalCost)
}

// ObserveOutcome records a fit that ended without a result
func (m *Metrics) ObserveOutcome(method, outcome string) {
	m.runs.WithLabelValues(method, outcome).Inc()
}

// JobStarted marks a job as holding a worker slot
func (m *Metrics) JobStarted() {
	m.running.Inc()
}

// JobFinished releases the slot taken by JobStarted
func (m *Metrics) JobFinished() {
	m.running.Dec()
}
