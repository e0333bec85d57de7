package processturn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/models"
)

const TaskType = "process-turn"

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// TurnProcessor is satisfied by *dispatcher.Dispatcher.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, threadID, message string) (*models.TurnResult, error)
}

// Locker is satisfied by *dispatcher.ThreadLocks.
type Locker interface {
	Lock(threadID string) func()
}

// JobRecorder is satisfied by *observability.Observability.
type JobRecorder interface {
	RecordJobProcessed(ctx context.Context, status string)
	RecordJobDuration(ctx context.Context, duration time.Duration, status string)
}

// Retrier is satisfied by *camunda.Client.
type Retrier interface {
	ExecuteWithRetry(ctx context.Context, commandFunc func(context.Context) (interface{}, error), operationName string) (interface{}, error)
}

// Handler is the process-turn job handler.
type Handler struct {
	config       *Config
	turns        TurnProcessor
	locks        Locker
	errorHandler *apperrors.ErrorHandler
	recorder     JobRecorder
	retrier      Retrier
	logger       Logger
	now          func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithRecorder records job counts and durations through otel.
func WithRecorder(r JobRecorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithRetrier retries the complete-job command on transient broker errors.
func WithRetrier(r Retrier) Option {
	return func(h *Handler) { h.retrier = r }
}

func NewHandler(config *Config, turns TurnProcessor, locks Locker, log Logger, opts ...Option) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	logger := log.With(map[string]interface{}{"taskType": TaskType})
	h := &Handler{
		config:       config,
		turns:        turns,
		locks:        locks,
		errorHandler: apperrors.NewErrorHandler(logger),
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle answers one turn per job. Invalid input throws INVALID_TURN_INPUT;
// the dispatcher degrades every other failure to a reply.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	start := h.now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		err = apperrors.NewInvalidTurnInputError(fmt.Sprintf("parse variables: %v", err))
		h.errorHandler.HandleJobError(ctx, client, job, err)
		h.record(ctx, start, err)
		return nil
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		h.record(ctx, start, err)
		return nil
	}

	err = h.completeJob(ctx, client, job, output)
	h.record(ctx, start, err)
	return err
}

// record counts the job as completed or failed, labelling failures with
// their error code.
func (h *Handler) record(ctx context.Context, start time.Time, err error) {
	elapsed := h.now().Sub(start)
	status := "completed"
	if err != nil {
		status = "failed"
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
	} else {
		metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	}
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(elapsed.Seconds())

	if h.recorder != nil {
		h.recorder.RecordJobProcessed(ctx, status)
		h.recorder.RecordJobDuration(ctx, elapsed, status)
	}
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := h.validate(input); err != nil {
		return nil, err
	}

	unlock := h.locks.Lock(input.ThreadID)
	defer unlock()

	res, err := h.turns.ProcessTurn(ctx, input.ThreadID, input.Message)
	if err != nil {
		return nil, err
	}

	citations := res.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	h.logger.Info("turn processed", map[string]interface{}{
		"threadId":  input.ThreadID,
		"citations": len(citations),
	})
	return &Output{
		ThreadID:  input.ThreadID,
		Reply:     res.Reply,
		Citations: citations,
		Done:      res.Done,
	}, nil
}

func (h *Handler) validate(input *Input) error {
	if input.ThreadID == "" {
		return apperrors.NewInvalidTurnInputError("threadId is required")
	}
	if h.config.MaxMessageLength > 0 && len(input.Message) > h.config.MaxMessageLength {
		return apperrors.NewInvalidTurnInputError(
			fmt.Sprintf("message exceeds %d characters", h.config.MaxMessageLength))
	}
	return nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return err
	}

	send := func(ctx context.Context) (interface{}, error) { return cmd.Send(ctx) }
	if err := h.send(ctx, send, "complete-job"); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return err
	}
	return nil
}

func (h *Handler) send(ctx context.Context, command func(context.Context) (interface{}, error), operation string) error {
	if h.retrier == nil {
		_, err := command(ctx)
		return err
	}
	_, err := h.retrier.ExecuteWithRetry(ctx, command, operation)
	return err
}
