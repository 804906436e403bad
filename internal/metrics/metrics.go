package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	JobsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicenotes_jobs_submitted_total",
			Help: "Total number of jobs accepted by the queue",
		},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicenotes_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"status"}, // completed, error
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicenotes_retries_total",
			Help: "Total number of retries scheduled by the pipeline",
		},
		[]string{"scope"}, // stt, llm, pipeline
	)

	// Gauges
	QueuedJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicenotes_queued_jobs",
			Help: "Current number of jobs waiting for the worker",
		},
	)

	ProcessingJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicenotes_processing_jobs",
			Help: "Current number of jobs being processed (0 or 1)",
		},
	)

	// Buckets: 0.5s to ~17min
	StepDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicenotes_step_duration_seconds",
			Help:    "Duration of a single pipeline step call in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"step"},
	)

	JobDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voicenotes_job_duration_seconds",
			Help:    "Wall time from job start to terminal status in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicenotes_http_requests_total",
			Help: "HTTP requests served by the API",
		},
		[]string{"route", "code"},
	)
)
