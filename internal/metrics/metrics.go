// Package metrics exposes workflow activity as Prometheus metrics.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus collectors for the orchestrator.
type Metrics struct {
	// Runs
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec
	RunsActive   prometheus.Gauge

	// Phases
	PhaseDuration   *prometheus.HistogramVec
	PhaseFailures   *prometheus.CounterVec
	PhaseCompletion *prometheus.CounterVec

	SupervisorRetries prometheus.Counter
	Clarifications    *prometheus.CounterVec
}

// NewMetrics returns the process-wide metrics registered on the default
// registerer. Registration happens once.
//
// Metrics:
//   - devopsd_runs_started_total
//   - devopsd_runs_finished_total{status}
//   - devopsd_runs_active
//   - devopsd_phase_duration_seconds{phase,outcome}
//   - devopsd_phase_failures_total{phase}
//   - devopsd_phase_completions_total{phase}
//   - devopsd_supervisor_retries_total
//   - devopsd_clarifications_total{phase}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsWith(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

// NewMetricsWith registers a fresh set of collectors on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "devopsd_runs_started_total",
			Help: "Total number of workflow runs started",
		}),
		RunsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devopsd_runs_finished_total",
				Help: "Total number of workflow runs finished, by final status",
			},
			[]string{"status"},
		),
		RunsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devopsd_runs_active",
			Help: "Number of workflow runs in progress",
		}),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devopsd_phase_duration_seconds",
				Help:    "Duration of phase agent execution in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"phase", "outcome"},
		),
		PhaseFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devopsd_phase_failures_total",
				Help: "Total number of failed phase attempts",
			},
			[]string{"phase"},
		),
		PhaseCompletion: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devopsd_phase_completions_total",
				Help: "Total number of phases completed",
			},
			[]string{"phase"},
		),
		SupervisorRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "devopsd_supervisor_retries_total",
			Help: "Total number of supervisor decision retries",
		}),
		Clarifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devopsd_clarifications_total",
				Help: "Total number of runs paused for clarification",
			},
			[]string{"phase"},
		),
	}
}

// Observe implements orchestrator.Observer.
func (m *Metrics) Observe(_ context.Context, event orchestrator.Event) {
	phase := string(event.Phase)
	switch event.Type {
	case orchestrator.EventRunStarted:
		m.RunsStarted.Inc()
		m.RunsActive.Inc()
	case orchestrator.EventRunFinished:
		m.RunsFinished.WithLabelValues(string(event.Status)).Inc()
		m.RunsActive.Dec()
	case orchestrator.EventPhaseCompleted:
		m.PhaseCompletion.WithLabelValues(phase).Inc()
		m.PhaseDuration.WithLabelValues(phase, "completed").Observe(event.Duration.Seconds())
	case orchestrator.EventPhaseFailed:
		m.PhaseFailures.WithLabelValues(phase).Inc()
		m.PhaseDuration.WithLabelValues(phase, "failed").Observe(event.Duration.Seconds())
	case orchestrator.EventClarification:
		m.Clarifications.WithLabelValues(phase).Inc()
		m.PhaseDuration.WithLabelValues(phase, "clarification").Observe(event.Duration.Seconds())
	case orchestrator.EventSupervisorRetry:
		m.SupervisorRetries.Inc()
	}
}
