package chatbot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================================
// METRICS — Prometheus instruments for the question pipeline
// ============================================================================

// Outcomes recorded on finchat_questions_total.
const (
	OutcomeAnswered        = "answered"
	OutcomeGenerationError = "generation_error"
	OutcomeExecutionError  = "execution_error"
)

// Metrics groups the pipeline instruments. Each Metrics registers on its own
// registerer, so tests can use a fresh prometheus.NewRegistry().
type Metrics struct {
	questions      *prometheus.CounterVec
	stageLatency   *prometheus.HistogramVec
	executionSteps prometheus.Histogram
}

// NewMetrics creates and registers the instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: outcome (answered, generation_error, execution_error)
		questions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finchat",
			Name:      "questions_total",
			Help:      "Questions processed by outcome",
		}, []string{"outcome"}),

		// Labels: stage (generate, execute)
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finchat",
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),

		executionSteps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finchat",
			Name:      "execution_steps",
			Help:      "Evaluation steps used by successful programs",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 7),
		}),
	}
}

func (m *Metrics) observeStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) countQuestion(outcome string) {
	if m == nil {
		return
	}
	m.questions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSteps(n int) {
	if m == nil {
		return
	}
	m.executionSteps.Observe(float64(n))
}
