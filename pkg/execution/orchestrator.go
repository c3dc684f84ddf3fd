// Package execution runs saved workflows against the workflow service and
// tracks the outcome of the current run.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dukex/pdfflow/pkg/client"
	"github.com/dukex/pdfflow/pkg/models"
)

var (
	ErrNotSaved = errors.New("workflow must be saved before it can be executed")
	ErrNoFiles  = errors.New("at least one file is required to execute a workflow")
	ErrBusy     = errors.New("an execution is already in progress")
)

// State is the lifecycle of the current execution.
type State string

const (
	StateIdle      State = "idle"
	StateExecuting State = "executing"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Executor is the remote side of an execution. *client.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, workflowID string, files []client.File) (*models.ExecutionResult, error)
	Download(ctx context.Context, filePath string, w io.Writer) (string, error)
}

// Orchestrator allows a single execution in flight and keeps the last result.
// Runs are not retried, streamed or cancelled by the orchestrator itself; the
// caller's context and the client's timeout bound them.
type Orchestrator struct {
	mu       sync.Mutex
	executor Executor
	logger   *slog.Logger
	state    State
	result   *models.ExecutionResult
	err      error
}

// New creates an idle orchestrator.
func New(executor Executor, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		executor: executor,
		logger:   logger.With("module", "execution"),
		state:    StateIdle,
	}
}

// Execute uploads files and runs the saved workflow. Preconditions are checked
// before any network call.
func (o *Orchestrator) Execute(ctx context.Context, workflowID string, files []client.File) (*models.ExecutionResult, error) {
	if workflowID == "" {
		return nil, ErrNotSaved
	}

	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	o.mu.Lock()
	if o.state == StateExecuting {
		o.mu.Unlock()

		return nil, ErrBusy
	}

	o.state = StateExecuting
	o.result = nil
	o.err = nil
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "Executing workflow", "workflow_id", workflowID, "files", len(files))

	result, err := o.executor.Execute(ctx, workflowID, files)

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case err != nil:
		o.state = StateFailed
		o.err = err
		o.logger.ErrorContext(ctx, "Workflow execution request failed", "workflow_id", workflowID, "error", err)

		return nil, err
	case !result.Success:
		o.state = StateFailed
		o.result = result
		o.logger.WarnContext(ctx, "Workflow execution failed", "workflow_id", workflowID, "execution_id", result.ExecutionID, "error", result.Error)
	default:
		o.state = StateSucceeded
		o.result = result
		o.logger.InfoContext(ctx, "Workflow executed", "workflow_id", workflowID, "execution_id", result.ExecutionID, "outputs", len(result.OutputFiles))
	}

	return result, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// Result returns the last execution result, if any.
func (o *Orchestrator) Result() *models.ExecutionResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.result
}

// Err returns the transport or service error of the last run.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.err
}

// Reset clears the last result. It is a no-op while executing.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateExecuting {
		return
	}

	o.state = StateIdle
	o.result = nil
	o.err = nil
}

// DownloadOutput saves one output file into dir and returns the written path.
func (o *Orchestrator) DownloadOutput(ctx context.Context, filePath, dir string) (string, error) {
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}

	name, err := o.executor.Download(ctx, filePath, tmp)

	closeErr := tmp.Close()

	if err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return "", err
	}

	target := filepath.Join(dir, filepath.Base(name))
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to store download: %w", err)
	}

	o.logger.InfoContext(ctx, "Downloaded output", "path", filePath, "saved_to", target)

	return target, nil
}
