// Package observability holds the Prometheus metrics of the repository and
// the feature pipeline.
//
// A nil *Metrics is valid and records nothing, so services and tests can run
// without a registry.
package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"model-repository-service/internal/core/domain"
)

const metricsNamespace = "model_repository"

// Metrics groups every collector exported under /metrics.
type Metrics struct {
	// Labels: operation, outcome (ok, or the error kind)
	RepositoryOperationsTotal *prometheus.CounterVec

	ChunkDurationSeconds prometheus.Histogram

	// Labels: outcome (success, failure)
	ChunksTotal *prometheus.CounterVec

	// Labels: backend, state (final learn state)
	LearnRunsTotal *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RepositoryOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "repository_operations_total",
				Help:      "Repository operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ChunkDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "chunk_duration_seconds",
				Help:      "Time spent running the workflow on one chunk",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
		ChunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "chunks_total",
				Help:      "Processed chunks by outcome",
			},
			[]string{"outcome"},
		),
		LearnRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "learn",
				Name:      "runs_total",
				Help:      "Learn runs by backend and final state",
			},
			[]string{"backend", "state"},
		),
	}
}

// ObserveOperation counts one repository operation.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.RepositoryOperationsTotal.WithLabelValues(op, Outcome(err)).Inc()
}

func (m *Metrics) ObserveChunk(elapsed time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.ChunkDurationSeconds.Observe(elapsed.Seconds())
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.ChunksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLearn(backend string, state domain.LearnState) {
	if m == nil {
		return
	}
	m.LearnRunsTotal.WithLabelValues(backend, string(state)).Inc()
}

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrUserInput):
		return "user_input"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrIO):
		return "io"
	case errors.Is(err, domain.ErrBackend):
		return "backend"
	case errors.Is(err, domain.ErrConsistency):
		return "consistency"
	default:
		return "internal"
	}
}
