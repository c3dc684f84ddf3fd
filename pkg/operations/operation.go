// Package operations implements the node types the workflow service can execute natively.
package operations

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dukex/pdfflow/pkg/models"
)

// FilesKey is the output entry carrying the files handed downstream.
const FilesKey = "files"

var (
	ErrUnsupported  = errors.New("unsupported node type")
	ErrMissingParam = errors.New("missing parameter")
)

// Input is what a node receives when it runs.
type Input struct {
	ExecutionID string
	WorkflowID  string
	NodeID      string
	// Files are the upstream files, or the execution uploads for nodes without upstream output.
	Files []string
	// Uploads are the files uploaded with the execution request.
	Uploads []string
	// Params are the node parameters with catalog defaults filled in.
	Params map[string]models.ParamValue
}

func (in Input) Text(id string) string {
	return in.Params[id].Text()
}

func (in Input) Number(id string) float64 {
	return in.Params[id].Number()
}

// Operation executes one node type.
type Operation interface {
	Type() string
	Execute(ctx context.Context, input Input) (map[string]any, error)
}

// Registry maps node type keys to operations. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

func (r *Registry) Register(op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops[op.Type()] = op
}

func (r *Registry) Get(nodeType string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[nodeType]

	return op, ok
}

// Types returns the registered type keys, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.ops))
	for t := range r.ops {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// Execute runs the operation registered for nodeType.
func (r *Registry) Execute(ctx context.Context, nodeType string, input Input) (map[string]any, error) {
	op, ok := r.Get(nodeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, nodeType)
	}

	return op.Execute(ctx, input)
}

func filesOutput(files []string) map[string]any {
	if files == nil {
		files = []string{}
	}

	return map[string]any{FilesKey: files, "count": len(files)}
}
