// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrUnsupportedDatabase indicates a database URL with an unknown scheme.
	ErrUnsupportedDatabase = errors.New("unsupported database url")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string
	Err        error
	Message    string
}

func (e *WorkflowError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for workflow %s: %s (%v)", e.Op, e.WorkflowID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
