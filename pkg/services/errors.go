// Package services holds the workflow service business logic behind the HTTP API.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest        = errors.New("invalid request")
	ErrWorkflowNameRequired  = errors.New("workflow name is required")
	ErrWorkflowNil           = errors.New("workflow cannot be nil")
	ErrDuplicateNodeID       = errors.New("duplicate node id")
	ErrInvalidConnectionData = errors.New("invalid connection data")
	ErrNoInputFiles          = errors.New("at least one input file is required")

	// ErrCycle fails an execution whose graph is not a DAG.
	ErrCycle = errors.New("workflow contains a dependency cycle")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrDuplicateNodeID) ||
		errors.Is(err, ErrInvalidConnectionData) ||
		errors.Is(err, ErrNoInputFiles)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
