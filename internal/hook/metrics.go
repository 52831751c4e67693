package hook

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for evaluation outcome.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

var (
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_evaluations_total",
			Help: "Total number of evaluation tasks by evaluator kind and outcome.",
		},
		[]string{"evaluator", "status"},
	)

	evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arbiter_evaluation_duration_seconds",
			Help:    "Evaluation task duration in seconds, by evaluator kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"evaluator"},
	)

	inflightTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbiter_inflight_tasks",
			Help: "Number of evaluation tasks currently tracked in the registry.",
		},
	)

	runsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arbiter_runs_skipped_total",
			Help: "Total number of runs skipped by the unfinished-run policy.",
		},
	)
)

func init() {
	prometheus.MustRegister(evaluationsTotal)
	prometheus.MustRegister(evaluationDuration)
	prometheus.MustRegister(inflightTasks)
	prometheus.MustRegister(runsSkippedTotal)
}
