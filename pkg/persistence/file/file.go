// Package file provides file-based persistence for workflows and executions.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/pdfflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	mu            *sync.RWMutex
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.RWMutex{}

	return &Persistence{
		root:          cleanRoot,
		mu:            mu,
		workflowRepo:  &WorkflowRepository{dir: filepath.Join(cleanRoot, "workflows"), mu: mu},
		executionRepo: &ExecutionRepository{dir: filepath.Join(cleanRoot, "executions"), mu: mu},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists, creating it on first use.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(fp.root, 0o750); err != nil {
		return fmt.Errorf("failed to create persistence root: %w", err)
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

// validID rejects ids that would escape the storage directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// writeJSON writes v next to its final path and renames it into place.
func writeJSON(dir, id string, v any) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(dir, id+".*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), filepath.Join(dir, id+".json"))
}

// readJSONDir decodes every *.json file of dir with load.
func readJSONDir(dir string, load func(id string, body []byte) error) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}

	for _, match := range matches {
		body, err := os.ReadFile(match)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return err
		}

		if err := load(strings.TrimSuffix(filepath.Base(match), ".json"), body); err != nil {
			return err
		}
	}

	return nil
}
