// Package errors provides standardized error handling for the compatibility
// engine and its workflow job workers.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeProfileStoreUnavailable ErrorCode = "PROFILE_STORE_UNAVAILABLE"
	ErrCodeProfileNotFound         ErrorCode = "PROFILE_NOT_FOUND"

	ErrCodeScoreLookupFailed  ErrorCode = "SCORE_LOOKUP_FAILED"
	ErrCodeScorePersistFailed ErrorCode = "SCORE_PERSIST_FAILED"

	ErrCodeBatchExecutionFailed ErrorCode = "BATCH_EXECUTION_FAILED"
	ErrCodeDispatcherClosed     ErrorCode = "DISPATCHER_CLOSED"

	ErrCodeInvalidJobInput  ErrorCode = "INVALID_JOB_INPUT"
	ErrCodeUnknownStrategy  ErrorCode = "UNKNOWN_STRATEGY"
	ErrCodeCacheOperation   ErrorCode = "CACHE_OPERATION_FAILED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"

	ErrCodeWorkflowEngine ErrorCode = "WORKFLOW_ENGINE_UNAVAILABLE"
)

// StandardError represents a structured application error.
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
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a metadata key and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the workflow engine.
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

// ToErrorVariables returns a map suitable for setting job fail variables.
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

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewProfileStoreUnavailableError wraps an infrastructure failure of the profile store.
func NewProfileStoreUnavailableError(err error) *StandardError {
	return newError(ErrCodeProfileStoreUnavailable, "Profile store unavailable", err, true)
}

// NewProfileNotFoundError reports a missing advisor or client profile.
func NewProfileNotFoundError(kind, id string) *StandardError {
	e := newError(ErrCodeProfileNotFound, fmt.Sprintf("%s profile not found", kind), nil, false)
	e.Details = fmt.Sprintf("id: %s", id)
	return e
}

func NewScoreLookupFailedError(err error) *StandardError {
	return newError(ErrCodeScoreLookupFailed, "Stored score lookup failed", err, true)
}

func NewScorePersistFailedError(err error) *StandardError {
	return newError(ErrCodeScorePersistFailed, "Storing compatibility score failed", err, true)
}

// NewBatchExecutionFailedError reports that a whole batch was rejected.
func NewBatchExecutionFailedError(batchID string, err error) *StandardError {
	e := newError(ErrCodeBatchExecutionFailed, "Batch execution failed", err, false)
	return e.WithMetadata("batchId", batchID)
}

func NewDispatcherClosedError() *StandardError {
	return newError(ErrCodeDispatcherClosed, "Score dispatcher is shut down", nil, false)
}

func NewInvalidJobInputError(details string) *StandardError {
	e := newError(ErrCodeInvalidJobInput, "Job input failed validation", nil, false)
	e.Details = details
	return e
}

func NewUnknownStrategyError(name string) *StandardError {
	e := newError(ErrCodeUnknownStrategy, "Unknown scoring strategy", nil, false)
	e.Details = fmt.Sprintf("strategy: %s", name)
	return e
}

// NewWorkflowEngineError wraps a failed call to the workflow broker.
func NewWorkflowEngineError(err error) *StandardError {
	return newError(ErrCodeWorkflowEngine, "Workflow engine unavailable", err, true)
}

func NewDeadlineExceededError(op string, err error) *StandardError {
	return newError(ErrCodeDeadlineExceeded, fmt.Sprintf("Operation '%s' timed out", op), err, true)
}

func NewCacheOperationError(op string, err error) *StandardError {
	return newError(ErrCodeCacheOperation, fmt.Sprintf("Cache operation '%s' failed", op), err, false)
}

// ==========================
// 4. Classification
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeProfileStoreUnavailable: "PROFILE_STORE_UNAVAILABLE",
	ErrCodeProfileNotFound:         "PROFILE_NOT_FOUND",
	ErrCodeScoreLookupFailed:       "SCORE_LOOKUP_FAILED",
	ErrCodeScorePersistFailed:      "SCORE_PERSIST_FAILED",
	ErrCodeBatchExecutionFailed:    "BATCH_EXECUTION_FAILED",
	ErrCodeDispatcherClosed:        "DISPATCHER_CLOSED",
	ErrCodeInvalidJobInput:         "INVALID_JOB_INPUT",
	ErrCodeUnknownStrategy:         "UNKNOWN_STRATEGY",
	ErrCodeDeadlineExceeded:        "DEADLINE_EXCEEDED",
}

// GetRetryCount returns how many times a job failing with code may be retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProfileStoreUnavailable,
		ErrCodeWorkflowEngine,
		ErrCodeScoreLookupFailed,
		ErrCodeScorePersistFailed:
		return 3
	case ErrCodeDeadlineExceeded:
		return 2
	case ErrCodeBatchExecutionFailed:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError maps a StandardError onto the workflow error shape.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// AsStandardError extracts a StandardError from err's chain or wraps err as INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// GetErrorCategory groups codes for logging and dashboards.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "PROFILE"):
		return "PROFILES"
	case strings.HasPrefix(codeStr, "SCORE"):
		return "PERSISTENCE"
	case strings.Contains(codeStr, "BATCH") || strings.Contains(codeStr, "DISPATCHER"):
		return "DISPATCH"
	case strings.HasPrefix(codeStr, "WORKFLOW") || strings.Contains(codeStr, "DEADLINE"):
		return "INFRASTRUCTURE"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "UNKNOWN"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
