package processturn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/models"
)

type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

type stubTurns struct {
	result *models.TurnResult
	err    error
	calls  int
}

func (s *stubTurns) ProcessTurn(ctx context.Context, threadID, message string) (*models.TurnResult, error) {
	s.calls++
	return s.result, s.err
}

type countingLocks struct {
	mu     sync.Mutex
	locked []string
	held   int
}

func (c *countingLocks) Lock(threadID string) func() {
	c.mu.Lock()
	c.locked = append(c.locked, threadID)
	c.held++
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.held--
		c.mu.Unlock()
	}
}

func TestHandler_Execute_Success(t *testing.T) {
	turns := &stubTurns{result: &models.TurnResult{
		Done:  true,
		Reply: "Which city should I check the weather for?",
	}}
	locks := &countingLocks{}
	h := NewHandler(nil, turns, locks, &TestLogger{t: t})

	out, err := h.execute(context.Background(), &Input{ThreadID: "thread-1", Message: "weather?"})

	require.NoError(t, err)
	assert.Equal(t, "thread-1", out.ThreadID)
	assert.True(t, out.Done)
	assert.Equal(t, "Which city should I check the weather for?", out.Reply)
	assert.NotNil(t, out.Citations)
	assert.Equal(t, []string{"thread-1"}, locks.locked)
	assert.Equal(t, 0, locks.held)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input Input
	}{
		{"missing thread", Input{Message: "hi"}},
		{"message too long", Input{ThreadID: "t", Message: strings.Repeat("a", 2001)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := &stubTurns{}
			h := NewHandler(LoadConfig(), turns, &countingLocks{}, &TestLogger{t: t})

			_, err := h.execute(context.Background(), &tt.input)

			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeInvalidTurnInput, apperrors.CodeOf(err))
			assert.Equal(t, "INVALID_TURN_INPUT", apperrors.BPMNErrorMapping[apperrors.CodeOf(err)])
			assert.Equal(t, 0, apperrors.GetRetryCount(apperrors.CodeOf(err)))
			assert.Equal(t, 0, turns.calls)
		})
	}
}

func TestHandler_Execute_ProcessorError(t *testing.T) {
	turns := &stubTurns{err: errors.New("unexpected")}
	locks := &countingLocks{}
	h := NewHandler(nil, turns, locks, &TestLogger{t: t})

	_, err := h.execute(context.Background(), &Input{ThreadID: "thread-2", Message: "hi"})

	require.Error(t, err)
	assert.Equal(t, 0, locks.held)
}

type fakeRecorder struct {
	processed []string
	durations []time.Duration
}

func (f *fakeRecorder) RecordJobProcessed(ctx context.Context, status string) {
	f.processed = append(f.processed, status)
}

func (f *fakeRecorder) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	f.durations = append(f.durations, duration)
}

type fakeRetrier struct {
	operations []string
	attempts   int
}

func (f *fakeRetrier) ExecuteWithRetry(ctx context.Context, commandFunc func(context.Context) (interface{}, error), operationName string) (interface{}, error) {
	f.operations = append(f.operations, operationName)
	var lastErr error
	for i := 0; i < f.attempts; i++ {
		res, err := commandFunc(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func TestHandler_Record(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewHandler(nil, &stubTurns{}, &countingLocks{}, &TestLogger{t: t}, WithRecorder(rec))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return base.Add(250 * time.Millisecond) }

	completed := testutil.ToFloat64(metrics.WorkerJobsCompleted.WithLabelValues(TaskType))
	failed := testutil.ToFloat64(metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.ErrCodeInvalidTurnInput)))

	h.record(context.Background(), base, nil)
	h.record(context.Background(), base, apperrors.NewInvalidTurnInputError("threadId is required"))

	assert.Equal(t, completed+1, testutil.ToFloat64(metrics.WorkerJobsCompleted.WithLabelValues(TaskType)))
	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.ErrCodeInvalidTurnInput))))
	assert.Equal(t, []string{"completed", "failed"}, rec.processed)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, rec.durations)
}

func TestHandler_SendRetriesThroughRetrier(t *testing.T) {
	retrier := &fakeRetrier{attempts: 3}
	h := NewHandler(nil, &stubTurns{}, &countingLocks{}, &TestLogger{t: t}, WithRetrier(retrier))

	calls := 0
	err := h.send(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("rpc error: code = Unavailable")
		}
		return "ok", nil
	}, "complete-job")

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"complete-job"}, retrier.operations)
}

func TestHandler_SendWithoutRetrierCallsOnce(t *testing.T) {
	h := NewHandler(nil, &stubTurns{}, &countingLocks{}, &TestLogger{t: t})

	calls := 0
	err := h.send(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("rpc error: code = Unavailable")
	}, "complete-job")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
