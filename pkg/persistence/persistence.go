// Package persistence provides the data storage abstraction for workflows and executions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/pdfflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores saved workflows.
type WorkflowRepository interface {
	// List returns every workflow, most recently updated first.
	List(ctx context.Context) ([]*models.Workflow, error)
	// GetByID returns ErrWorkflowNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	// Save inserts or replaces a workflow. Timestamps are the caller's responsibility.
	Save(ctx context.Context, workflow *models.Workflow) error
	// Delete returns ErrWorkflowNotFound when the id is unknown.
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.Execution) error
	// GetByID returns ErrExecutionNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	// ListByWorkflow returns the executions of a workflow, newest first.
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
	// DeleteFinishedBefore removes executions completed before the cutoff and reports how many.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
