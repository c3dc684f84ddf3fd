package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow or node execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// NodeResult is the per-node diagnostic payload of an execution.
type NodeResult struct {
	NodeID      string          `json:"node_id,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Output      map[string]any  `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Execution is the service-side record of one workflow run.
type Execution struct {
	ID          string                `json:"id"`
	WorkflowID  string                `json:"workflow_id"`
	Status      ExecutionStatus       `json:"status"`
	NodeResults map[string]NodeResult `json:"node_results"`
	InputFiles  []string              `json:"input_files"`
	OutputFiles []string              `json:"output_files"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// Result projects the execution into the response returned to the editor.
func (e *Execution) Result() ExecutionResult {
	nodes := make(map[string]NodeResult, len(e.NodeResults))
	for id, r := range e.NodeResults {
		nodes[id] = NodeResult{Status: r.Status, Error: r.Error, Output: r.Output}
	}

	outputs := e.OutputFiles
	if outputs == nil {
		outputs = []string{}
	}

	return ExecutionResult{
		Success:     e.Status == ExecutionStatusCompleted,
		ExecutionID: e.ID,
		Status:      e.Status,
		OutputFiles: outputs,
		NodeResults: nodes,
		Error:       e.Error,
	}
}

// ExecutionResult is the transient outcome of one execute request.
type ExecutionResult struct {
	Success     bool                  `json:"success"`
	ExecutionID string                `json:"execution_id,omitempty"`
	Status      ExecutionStatus       `json:"status,omitempty"`
	OutputFiles []string              `json:"output_files"`
	NodeResults map[string]NodeResult `json:"node_results"`
	Error       string                `json:"error,omitempty"`
}
