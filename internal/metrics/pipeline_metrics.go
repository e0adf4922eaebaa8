package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics. All metrics are low-cardinality (no video_id/animal_id
// labels) so cardinality stays bounded regardless of herd size.

var (
	// PipelineJobsTotal counts completed jobs by terminal status.
	PipelineJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_total",
			Help: "Total video jobs by terminal status",
		},
		[]string{"status"},
	)

	// PipelineJobDuration tracks end-to-end job wall time.
	PipelineJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_job_duration_seconds",
			Help:    "Video job wall-clock duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	// PipelineFramesProcessedTotal counts frames that passed through the
	// detector, by stage.
	PipelineFramesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_frames_processed_total",
			Help: "Total frames processed",
		},
		[]string{"stage"},
	)

	// PipelineFramesSkippedTotal counts frames skipped by frame_skip sampling.
	PipelineFramesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_frames_skipped_total",
			Help: "Total frames skipped by frame-skip sampling",
		},
	)

	// PipelineReidDecisionsTotal counts Re-ID decisions by tier.
	PipelineReidDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_reid_decisions_total",
			Help: "Total re-identification decisions by decision tier",
		},
		[]string{"decision"},
	)

	// PipelineReidMatchScore observes the cosine similarity of every Re-ID
	// decision, regardless of tier.
	PipelineReidMatchScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_reid_match_score",
			Help:    "Cosine similarity score of re-identification decisions",
			Buckets: []float64{0.0, 0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		},
	)

	// PipelineCountUncertaintyLevel counts finalized jobs by uncertainty level.
	PipelineCountUncertaintyLevel = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_count_uncertainty_total",
			Help: "Total jobs by final count uncertainty level",
		},
		[]string{"level"},
	)

	// PipelineWorkerPoolActive is the number of worker goroutines currently
	// processing a job.
	PipelineWorkerPoolActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_worker_pool_active",
			Help: "Number of worker goroutines currently processing a job",
		},
	)

	// PipelineQueueDepth is the number of jobs waiting to be picked up.
	PipelineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Number of jobs queued and not yet assigned a worker",
		},
	)

	// PipelineServiceUp is a gauge for service health.
	PipelineServiceUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_service_up",
			Help: "Pipeline worker service health status (1=up, 0=down)",
		},
	)
)

func RecordJobTerminal(status string, durationSeconds float64) {
	PipelineJobsTotal.WithLabelValues(status).Inc()
	PipelineJobDuration.WithLabelValues(status).Observe(durationSeconds)
}

func RecordFrameProcessed(stage string) {
	PipelineFramesProcessedTotal.WithLabelValues(stage).Inc()
}

func RecordFramesSkipped(count int) {
	PipelineFramesSkippedTotal.Add(float64(count))
}

func RecordReidDecision(decision string, score float64) {
	PipelineReidDecisionsTotal.WithLabelValues(decision).Inc()
	PipelineReidMatchScore.Observe(score)
}

func RecordCountUncertainty(level string) {
	PipelineCountUncertaintyLevel.WithLabelValues(level).Inc()
}

func SetServiceUp(up bool) {
	if up {
		PipelineServiceUp.Set(1)
	} else {
		PipelineServiceUp.Set(0)
	}
}
