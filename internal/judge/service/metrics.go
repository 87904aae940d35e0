package service

import (
	"time"

	"codejudge/internal/judge/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records orchestrator activity. A nil *Metrics records nothing.
type Metrics struct {
	InFlight        prometheus.Gauge
	Attempts        *prometheus.CounterVec
	TestCaseResults *prometheus.CounterVec
	Verdicts        *prometheus.CounterVec
	RemoteLatency   prometheus.Histogram
	EvaluateLatency prometheus.Histogram
}

// NewMetrics registers the orchestrator collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "judge_remote_requests_in_flight",
			Help: "Execution requests currently holding a concurrency slot",
		}),
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_execution_attempts_total",
			Help: "Remote execution attempts by outcome status",
		}, []string{"status"}),
		TestCaseResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_test_case_results_total",
			Help: "Finalized test cases by task state and pass flag",
		}, []string{"state", "passed"}),
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_verdicts_total",
			Help: "Submission verdicts by overall result",
		}, []string{"result"}),
		RemoteLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "judge_remote_request_seconds",
			Help:    "Latency of single remote execution requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "judge_evaluate_seconds",
			Help:    "Wall time of whole submission evaluations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

func (m *Metrics) requestStarted() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) requestFinished(outcome model.ExecutionOutcome) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Attempts.WithLabelValues(string(outcome.Status)).Inc()
	m.RemoteLatency.Observe(outcome.Elapsed.Seconds())
}

func (m *Metrics) resultFinalized(res model.TestCaseResult) {
	if m == nil {
		return
	}
	passed := "false"
	if res.Passed {
		passed = "true"
	}
	m.TestCaseResults.WithLabelValues(string(res.State), passed).Inc()
}

func (m *Metrics) verdictReady(v *model.SubmissionVerdict, elapsed time.Duration) {
	if m == nil || v == nil {
		return
	}
	result := "failed"
	if v.OverallPassed {
		result = "passed"
	}
	m.Verdicts.WithLabelValues(result).Inc()
	m.EvaluateLatency.Observe(elapsed.Seconds())
}
