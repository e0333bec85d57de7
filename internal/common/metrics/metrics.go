// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
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

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// TurnsTotal counts finished turns by how they ended
	// (answered, clarify, consent_prompt, gate, error, ...).
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Total number of conversation turns processed",
		},
		[]string{"outcome"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_turn_duration_seconds",
			Help:    "Duration of a conversation turn in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CascadeStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_cascade_stage_total",
			Help: "Cascade stage attempts by kind, stage and result",
		},
		[]string{"kind", "stage", "result"},
	)

	ConsentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_consent_transitions_total",
			Help: "Consent state transitions by kind",
		},
		[]string{"kind", "transition"},
	)

	CollaboratorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_collaborator_errors_total",
			Help: "Errors returned by external collaborators",
		},
		[]string{"collaborator"},
	)
)
