package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for audit passes.
var (
	passDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cps_audit_pass_duration_seconds",
		Help:    "Wall time of a full audit pass",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"pass"})

	contractsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cps_audit_contracts_total",
		Help: "Contracts run through the orchestrator by pass",
	}, []string{"pass"})

	batchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cps_audit_batch_failures_total",
		Help: "Batches that failed as a whole by pass",
	}, []string{"pass"})

	enrollmentsUnresolved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cps_audit_enrollments_unresolved",
		Help: "Enrollments still failed after the retry pass of the last audit",
	})
)
