package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	dir string
	mu  *sync.RWMutex
}

// List returns every stored workflow, most recently updated first.
func (wr *WorkflowRepository) List(_ context.Context) ([]*models.Workflow, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	workflows := make([]*models.Workflow, 0)

	err := readJSONDir(wr.dir, func(id string, body []byte) error {
		var workflow models.Workflow
		if err := json.Unmarshal(body, &workflow); err != nil {
			return fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
		}

		workflows = append(workflows, &workflow)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].UpdatedAt.After(workflows[j].UpdatedAt)
	})

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	if !validID(workflowID) {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
	}

	wr.mu.RLock()
	defer wr.mu.RUnlock()

	body, err := os.ReadFile(filepath.Join(wr.dir, workflowID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(body, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", workflowID, err)
	}

	return &workflow, nil
}

// Save writes a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if !validID(workflow.ID) {
		return fmt.Errorf("invalid workflow id %q", workflow.ID)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	return writeJSON(wr.dir, workflow.ID, workflow)
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.Remove(filepath.Join(wr.dir, id+".json"))
	if err != nil && os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}
