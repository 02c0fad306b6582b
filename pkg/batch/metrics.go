package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for batch execution.
var (
	fetchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cps_fetch_outcomes_total",
		Help: "Final per-enrollment fetch outcomes by pass and result",
	}, []string{"pass", "result"})

	inlineRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cps_inline_retries_total",
		Help: "Inline re-attempts by failure kind of the first attempt",
	}, []string{"kind"})

	inlineBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cps_inline_backoff_seconds",
		Help:    "Wait before an inline re-attempt",
		Buckets: []float64{0, 1, 3, 5, 10, 30, 60, 120},
	})

	poolInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cps_pool_in_flight",
		Help: "Fetches currently admitted by the worker pool",
	}, []string{"pass"})

	batchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cps_batch_duration_seconds",
		Help:    "Wall time to execute one batch",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"pass"})
)
