package reviewworker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricJobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revu_worker_jobs_processed_total",
		Help: "Review jobs picked up from the queue.",
	})
	metricJobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revu_worker_jobs_failed_total",
		Help: "Review jobs that failed and were requeued.",
	})
	metricJobsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revu_worker_jobs_dead_lettered_total",
		Help: "Review jobs moved to the DLQ after exhausting retries.",
	})
	metricJobsSkippedBudget = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revu_worker_jobs_skipped_budget_total",
		Help: "Review jobs skipped by the budget gate.",
	})
	metricActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "revu_worker_active_workers",
		Help: "Reviews currently in flight.",
	})
	metricReviewDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "revu_worker_review_duration_seconds",
		Help:    "Wall time of completed reviews.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
