package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardError_WrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewToolFailedError("weather", cause)

	assert.Equal(t, ErrCodeToolFailed, err.Code)
	assert.Equal(t, "connection refused", err.Details)
	assert.Equal(t, "weather", err.Metadata["tool"])
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "StandardError[TOOL_FAILED]: Tool 'weather' error", err.Error())
}

func TestIsRetryableAndCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewLLMTimeoutError(stderrors.New("deadline")))

	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrCodeLLMTimeout, CodeOf(wrapped))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
}

func TestGetRetryCount(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeClassifierFailed, 3},
		{ErrCodeSessionSaveFailed, 3},
		{ErrCodeClassifierTimeout, 2},
		{ErrCodeLLMTimeout, 1},
		{ErrCodeInvalidTurnInput, 0},
		{ErrCodeWebSearchTimeout, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, GetRetryCount(tt.code))
		})
	}
}

func TestConvertToBPMNError(t *testing.T) {
	bpmn := ConvertToBPMNError(NewInvalidTurnInputError("threadId is required"))

	assert.Equal(t, "INVALID_TURN_INPUT", bpmn.Code)
	assert.Equal(t, 0, bpmn.Retries)
	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "threadId is required", vars["errorDetails"])
	assert.Equal(t, false, vars["retryable"])
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidTurnInput))
}
