// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compat_cache_lookups_total",
			Help: "Compatibility cache lookups by outcome (hit, miss, expired)",
		},
		[]string{"outcome"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compat_cache_evictions_total",
			Help: "Entries removed from the compatibility cache by reason",
		},
		[]string{"reason"},
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "compat_cache_entries",
			Help: "Current number of entries in the compatibility cache",
		},
	)

	ScoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compat_score_duration_seconds",
			Help:    "Time spent computing a compatibility score",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"strategy"},
	)

	ScoresServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compat_scores_served_total",
			Help: "Scores returned by source (memory, durable, computed)",
		},
		[]string{"source"},
	)

	FactorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compat_factor_failures_total",
			Help: "Factor scorers that failed and contributed zero",
		},
		[]string{"factor"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compat_batch_size",
			Help:    "Number of requests flushed per dispatcher batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
	)

	BatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compat_batch_failures_total",
			Help: "Dispatcher batches rejected as a whole",
		},
		[]string{"reason"},
	)

	PersistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compat_persistence_errors_total",
			Help: "Durable store failures by operation",
		},
		[]string{"store", "operation"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)
