// Package metrics defines the Prometheus instruments exposed by the metering
// pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	WindowsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterd",
			Name:      "windows_processed_total",
			Help:      "Total number of billing windows processed",
		},
		[]string{"status"}, // "ok" / "error"
	)

	UsageEventsReadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterd",
			Name:      "usage_events_read_total",
			Help:      "Total raw usage events read from object storage",
		},
	)

	ContractsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterd",
			Name:      "contracts_submitted_total",
			Help:      "Per-contract submission outcomes",
		},
		[]string{"status"}, // "success" / "error" / "skipped"
	)

	SubmissionAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterd",
			Name:      "submission_attempts_total",
			Help:      "Total billing API submission attempts, including retries",
		},
	)

	FormulaFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterd",
			Name:      "formula_failures_total",
			Help:      "Total custom dimension evaluation failures",
		},
	)

	RunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "meterd",
			Name:      "run_duration_seconds",
			Help:      "Full pipeline run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

var registered bool

// Register registers the pipeline metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(WindowsProcessedTotal)
	prometheus.MustRegister(UsageEventsReadTotal)
	prometheus.MustRegister(ContractsSubmittedTotal)
	prometheus.MustRegister(SubmissionAttemptsTotal)
	prometheus.MustRegister(FormulaFailuresTotal)
	prometheus.MustRegister(RunDurationSeconds)
	registered = true
}
