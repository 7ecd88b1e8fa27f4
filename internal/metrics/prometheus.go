package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted counts submissions by decision.
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "betascrubber_jobs_submitted_total",
			Help: "Total number of submitted videos by decision",
		},
		[]string{"decision"},
	)

	// JobsProcessed counts finished worker runs by outcome.
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "betascrubber_jobs_processed_total",
			Help: "Total number of processed jobs by outcome",
		},
		[]string{"status"},
	)

	// JobDuration tracks the wall time of a whole worker run in seconds.
	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "betascrubber_job_duration_seconds",
			Help:    "Duration of a full download and extraction run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		},
	)

	// StageDuration tracks the duration of each pipeline stage in seconds.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "betascrubber_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"stage"},
	)

	// WorkersActive tracks the number of currently busy workers.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "betascrubber_workers_active",
			Help: "Number of workers currently processing a job",
		},
	)

	// FramesExtracted counts frames stored as candidates.
	FramesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "betascrubber_frames_extracted_total",
			Help: "Total number of candidate frames stored",
		},
	)

	// FramesFinalized counts frames promoted to a final bucket.
	FramesFinalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "betascrubber_frames_finalized_total",
			Help: "Total number of frames promoted to final",
		},
	)

	// StorageErrors counts swallowed backend failures.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "betascrubber_storage_errors_total",
			Help: "Total number of storage backend failures",
		},
		[]string{"backend", "op"},
	)

	// JanitorRemoved counts stale work files removed by the janitor.
	JanitorRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "betascrubber_janitor_removed_total",
			Help: "Total number of stale work files removed",
		},
	)
)
