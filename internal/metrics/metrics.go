// Package metrics exposes Prometheus instrumentation for the Yantra core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts accepted submissions by language.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yantra_submissions_total",
		Help: "Submissions accepted by the API, by language.",
	}, []string{"language"})

	// JobsProcessed counts worker job outcomes.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yantra_jobs_processed_total",
		Help: "Jobs processed by the worker, by terminal status.",
	}, []string{"status"})

	// BuildsProcessed counts worker build outcomes.
	BuildsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yantra_builds_processed_total",
		Help: "Image builds processed by the worker, by result.",
	}, []string{"result"})

	// JobDuration observes sandbox execution wall time.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yantra_job_duration_seconds",
		Help:    "Wall-clock duration of sandbox executions.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// BuildDuration observes image build wall time.
	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yantra_build_duration_seconds",
		Help:    "Wall-clock duration of image builds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
