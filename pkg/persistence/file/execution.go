package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence"
)

// ExecutionRepository stores execution records as JSON files.
type ExecutionRepository struct {
	dir string
	mu  *sync.RWMutex
}

func (er *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	if !validID(execution.ID) {
		return fmt.Errorf("invalid execution id %q", execution.ID)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	return writeJSON(er.dir, execution.ID, execution)
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	if !validID(id) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	er.mu.RLock()
	defer er.mu.RUnlock()

	body, err := os.ReadFile(filepath.Join(er.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch execution %s: %w", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(body, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

func (er *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	executions, err := er.all()
	if err != nil {
		return nil, err
	}

	out := make([]*models.Execution, 0, len(executions))
	for _, e := range executions {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return startedAt(out[i]).After(startedAt(out[j]))
	})

	return out, nil
}

func (er *ExecutionRepository) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	executions, err := er.all()
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, e := range executions {
		if e.CompletedAt == nil || !e.CompletedAt.Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(er.dir, e.ID+".json")); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to delete execution %s: %w", e.ID, err)
		}

		removed++
	}

	return removed, nil
}

func (er *ExecutionRepository) all() ([]*models.Execution, error) {
	executions := make([]*models.Execution, 0)

	err := readJSONDir(er.dir, func(id string, body []byte) error {
		var execution models.Execution
		if err := json.Unmarshal(body, &execution); err != nil {
			return fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
		}

		executions = append(executions, &execution)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	return executions, nil
}

func startedAt(e *models.Execution) time.Time {
	if e.StartedAt == nil {
		return time.Time{}
	}

	return *e.StartedAt
}
