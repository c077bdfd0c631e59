package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of workflow errors
type ErrorType string

const (
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeAlreadyCompleted ErrorType = "already_completed"
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeStoreUnavailable ErrorType = "store_unavailable"
	ErrorTypeForkPartial      ErrorType = "fork_partial_failure"
	ErrorTypeInternal         ErrorType = "internal"
)

// WorkflowError represents a structured error in the workflow engine
type WorkflowError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *WorkflowError {
	return &WorkflowError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewAlreadyCompletedError creates the error returned when a stage's
// actual timestamp is already set. Surfaced distinctly so the UI can
// tell a lost race from a generic failure.
func NewAlreadyCompletedError(taskID string, stageIndex int) *WorkflowError {
	return &WorkflowError{
		Type:    ErrorTypeAlreadyCompleted,
		Code:    ErrCodeStageAlreadyCompleted,
		Message: fmt.Sprintf("stage %d of task %s is already completed", stageIndex, taskID),
		Details: map[string]interface{}{
			"task_id":     taskID,
			"stage_index": stageIndex,
		},
	}
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *WorkflowError {
	return &WorkflowError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewStoreUnavailableError wraps a transient store failure. Safe for
// the caller to retry; the engine performs no retries of its own.
func NewStoreUnavailableError(message string, cause error) *WorkflowError {
	return &WorkflowError{
		Type:    ErrorTypeStoreUnavailable,
		Code:    ErrCodeStoreUnavailable,
		Message: message,
		Cause:   cause,
	}
}

// NewForkPartialError reports a fork whose primary completion was
// applied but whose dependent insert failed. Needs manual
// reconciliation; must never be collapsed into a generic success.
func NewForkPartialError(taskID string, targetKind TaskKind, cause error) *WorkflowError {
	return &WorkflowError{
		Type:    ErrorTypeForkPartial,
		Code:    ErrCodeForkInsertFailed,
		Message: fmt.Sprintf("stage completion for task %s succeeded but creating the %s task failed", taskID, targetKind),
		Details: map[string]interface{}{
			"task_id":     taskID,
			"target_kind": string(targetKind),
		},
		Cause: cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *WorkflowError {
	return &WorkflowError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// errType extracts the workflow error type, if any
func errType(err error) (ErrorType, bool) {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Type, true
	}
	return "", false
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrorTypeNotFound
}

// IsAlreadyCompleted reports whether err is an already completed error
func IsAlreadyCompleted(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrorTypeAlreadyCompleted
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrorTypeValidation
}

// IsStoreUnavailable reports whether err is a transient store error
func IsStoreUnavailable(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrorTypeStoreUnavailable
}

// IsForkPartial reports whether err is a fork partial failure
func IsForkPartial(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrorTypeForkPartial
}

// Common error codes
const (
	ErrCodeTaskNotFound          = "TASK_NOT_FOUND"
	ErrCodeStageAlreadyCompleted = "STAGE_ALREADY_COMPLETED"
	ErrCodeStageNotOpened        = "STAGE_NOT_OPENED"
	ErrCodeStageOutOfRange       = "STAGE_OUT_OF_RANGE"
	ErrCodeUnknownKind           = "UNKNOWN_TASK_KIND"
	ErrCodeMissingField          = "MISSING_REQUIRED_FIELD"
	ErrCodeCaptureMismatch       = "CAPTURE_SCHEMA_MISMATCH"
	ErrCodePayloadLocked         = "PAYLOAD_LOCKED"
	ErrCodeEmptyBatch            = "EMPTY_BATCH"
	ErrCodeStoreUnavailable      = "STORE_UNAVAILABLE"
	ErrCodeForkInsertFailed      = "FORK_INSERT_FAILED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)
