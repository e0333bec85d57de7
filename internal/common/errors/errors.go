package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	ErrCodeClassifierFailed  ErrorCode = "CLASSIFIER_FAILED"
	ErrCodeClassifierTimeout ErrorCode = "CLASSIFIER_TIMEOUT"

	ErrCodeLLMTimeout          ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMCompletionFailed ErrorCode = "LLM_COMPLETION_FAILED"
	ErrCodeLLMInvalidJSON      ErrorCode = "LLM_INVALID_JSON"

	ErrCodeWebSearchTimeout ErrorCode = "WEB_SEARCH_TIMEOUT"
	ErrCodeWebSearchFailed  ErrorCode = "WEB_SEARCH_FAILED"

	ErrCodeRAGQueryFailed ErrorCode = "RAG_QUERY_FAILED"
	ErrCodeToolFailed     ErrorCode = "TOOL_FAILED"
	ErrCodeGeocodeFailed  ErrorCode = "GEOCODE_FAILED"

	ErrCodeSessionLoadFailed    ErrorCode = "SESSION_LOAD_FAILED"
	ErrCodeSessionSaveFailed    ErrorCode = "SESSION_SAVE_FAILED"
	ErrCodeReceiptArchiveFailed ErrorCode = "RECEIPT_ARCHIVE_FAILED"

	ErrCodeWorkflowEngineUnavailable ErrorCode = "WORKFLOW_ENGINE_UNAVAILABLE"
	ErrCodeWorkflowEngineTimeout     ErrorCode = "WORKFLOW_ENGINE_TIMEOUT"

	ErrCodeInvalidTurnInput ErrorCode = "INVALID_TURN_INPUT"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the structured error every collaborator failure is mapped to.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	e := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// BPMNError is what the process-turn worker throws to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns the variables attached to a failed or thrown job.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// NewClassifierFailedError creates a retryable classifier error.
func NewClassifierFailedError(err error) *StandardError {
	return newError(ErrCodeClassifierFailed, "Classifier service error", err, true)
}

// NewClassifierTimeoutError creates a retryable classifier timeout error.
func NewClassifierTimeoutError(err error) *StandardError {
	return newError(ErrCodeClassifierTimeout, "Classifier service timeout", err, true)
}

// NewLLMTimeoutError creates a retryable completion timeout error.
func NewLLMTimeoutError(err error) *StandardError {
	return newError(ErrCodeLLMTimeout, "LLM completion timeout", err, true)
}

// NewLLMCompletionFailedError creates a retryable completion error.
func NewLLMCompletionFailedError(err error) *StandardError {
	return newError(ErrCodeLLMCompletionFailed, "LLM completion error", err, true)
}

// NewLLMInvalidJSONError creates a non-retryable error for unparseable model output.
func NewLLMInvalidJSONError(err error) *StandardError {
	return newError(ErrCodeLLMInvalidJSON, "LLM returned malformed JSON", err, false)
}

// NewWebSearchTimeoutError creates a non-retryable web search timeout error.
func NewWebSearchTimeoutError(err error) *StandardError {
	return newError(ErrCodeWebSearchTimeout, "Web search timeout", err, false)
}

// NewWebSearchFailedError creates a retryable web search error.
func NewWebSearchFailedError(err error) *StandardError {
	return newError(ErrCodeWebSearchFailed, "Web search error", err, true)
}

// NewRAGQueryFailedError creates a retryable retrieval error tagged with the corpus.
func NewRAGQueryFailedError(corpus string, err error) *StandardError {
	return newError(ErrCodeRAGQueryFailed, "Retrieval query error", err, true).
		WithMetadata("corpus", corpus)
}

// NewToolFailedError creates a retryable error for a failed tool call.
func NewToolFailedError(tool string, err error) *StandardError {
	return newError(ErrCodeToolFailed, fmt.Sprintf("Tool '%s' error", tool), err, true).
		WithMetadata("tool", tool)
}

// NewGeocodeFailedError creates a retryable geocoding error.
func NewGeocodeFailedError(name string, err error) *StandardError {
	return newError(ErrCodeGeocodeFailed, "Geocoding error", err, true).
		WithMetadata("name", name)
}

// NewSessionLoadFailedError creates a retryable thread state read error.
func NewSessionLoadFailedError(threadID string, err error) *StandardError {
	return newError(ErrCodeSessionLoadFailed, "Session load error", err, true).
		WithMetadata("threadId", threadID)
}

// NewSessionSaveFailedError creates a retryable thread state write error.
func NewSessionSaveFailedError(threadID string, err error) *StandardError {
	return newError(ErrCodeSessionSaveFailed, "Session save error", err, true).
		WithMetadata("threadId", threadID)
}

// NewReceiptArchiveFailedError creates a retryable receipts archive error.
func NewReceiptArchiveFailedError(err error) *StandardError {
	return newError(ErrCodeReceiptArchiveFailed, "Receipt archive error", err, true)
}

// NewInvalidTurnInputError creates a non-retryable input validation error.
func NewInvalidTurnInputError(details string) *StandardError {
	e := newError(ErrCodeInvalidTurnInput, "Invalid turn input", nil, false)
	e.Details = details
	return e
}

// NewWorkflowEngineUnavailableError creates a retryable broker connectivity error.
func NewWorkflowEngineUnavailableError(err error) *StandardError {
	return newError(ErrCodeWorkflowEngineUnavailable, "Workflow engine unavailable", err, true)
}

// NewWorkflowEngineTimeoutError creates a retryable broker timeout error.
func NewWorkflowEngineTimeoutError(err error) *StandardError {
	return newError(ErrCodeWorkflowEngineTimeout, "Workflow engine request timed out", err, true)
}

// NewInternalError wraps an unexpected error as non-retryable.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeClassifierFailed:     "CLASSIFIER_FAILED",
	ErrCodeClassifierTimeout:    "CLASSIFIER_TIMEOUT",
	ErrCodeLLMTimeout:           "LLM_TIMEOUT",
	ErrCodeLLMCompletionFailed:  "LLM_COMPLETION_FAILED",
	ErrCodeLLMInvalidJSON:       "LLM_INVALID_JSON",
	ErrCodeWebSearchTimeout:     "WEB_SEARCH_TIMEOUT",
	ErrCodeWebSearchFailed:      "WEB_SEARCH_FAILED",
	ErrCodeRAGQueryFailed:       "RAG_QUERY_FAILED",
	ErrCodeToolFailed:           "TOOL_FAILED",
	ErrCodeGeocodeFailed:        "GEOCODE_FAILED",
	ErrCodeSessionLoadFailed:    "SESSION_LOAD_FAILED",
	ErrCodeSessionSaveFailed:    "SESSION_SAVE_FAILED",
	ErrCodeReceiptArchiveFailed: "RECEIPT_ARCHIVE_FAILED",
	ErrCodeInvalidTurnInput:     "INVALID_TURN_INPUT",
}

// GetRetryCount returns how many times a job failing with code is retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeClassifierFailed,
		ErrCodeLLMCompletionFailed,
		ErrCodeWebSearchFailed,
		ErrCodeRAGQueryFailed,
		ErrCodeToolFailed,
		ErrCodeSessionLoadFailed,
		ErrCodeSessionSaveFailed,
		ErrCodeReceiptArchiveFailed,
		ErrCodeWorkflowEngineUnavailable:
		return 3

	case ErrCodeClassifierTimeout,
		ErrCodeGeocodeFailed,
		ErrCodeWorkflowEngineTimeout:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeClassifierFailed, ErrCodeClassifierTimeout,
		ErrCodeLLMTimeout, ErrCodeLLMCompletionFailed, ErrCodeLLMInvalidJSON:
		return "MODEL"
	case ErrCodeWebSearchTimeout, ErrCodeWebSearchFailed,
		ErrCodeRAGQueryFailed, ErrCodeToolFailed, ErrCodeGeocodeFailed:
		return "COLLABORATOR"
	case ErrCodeSessionLoadFailed, ErrCodeSessionSaveFailed, ErrCodeReceiptArchiveFailed:
		return "STORAGE"
	case ErrCodeWorkflowEngineUnavailable, ErrCodeWorkflowEngineTimeout:
		return "WORKFLOW"
	case ErrCodeInvalidTurnInput:
		return "VALIDATION"
	default:
		return "INTERNAL"
	}
}

// IsRetryable reports whether err (or anything it wraps) is a retryable
// StandardError.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// ConvertToBPMNError maps a StandardError onto its BPMN error code.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	code, ok := BPMNErrorMapping[stdErr.Code]
	if !ok {
		code = string(stdErr.Code)
	}
	return &BPMNError{
		Code:           code,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        GetRetryCount(stdErr.Code),
		ErrorVariables: stdErr.Metadata,
	}
}
