package models

import "time"

// Workflow is the persisted form of a graph, owned by the workflow service.
// Node type keys and parameter ids are a compatibility contract: saved workflows must stay loadable.
type Workflow struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"        validate:"required,max=255"`
	Description string               `json:"description"`
	Nodes       []WorkflowNode       `json:"nodes"       validate:"dive"`
	Connections []WorkflowConnection `json:"connections" validate:"dive"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// WorkflowNode is the transport shape of a graph node.
type WorkflowNode struct {
	ID       string     `json:"id"       validate:"required"`
	Type     string     `json:"type"     validate:"required"`
	Position Position   `json:"position"`
	Config   NodeConfig `json:"config"`
}

// NodeConfig carries the user-editable part of a node.
type NodeConfig struct {
	Label       string                `json:"label"`
	Description string                `json:"description"`
	Params      map[string]ParamValue `json:"params"`
}

// WorkflowConnection is the transport shape of a graph edge.
type WorkflowConnection struct {
	ID           string `json:"id"`
	SourceNode   string `json:"source_node"   validate:"required"`
	SourceHandle string `json:"source_handle"`
	TargetNode   string `json:"target_node"   validate:"required"`
	TargetHandle string `json:"target_handle"`
}

// WorkflowSummary is one entry of the saved-workflow picker.
type WorkflowSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	NodeCount   int       `json:"node_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary projects a workflow into its list entry.
func (w *Workflow) Summary() WorkflowSummary {
	return WorkflowSummary{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		NodeCount:   len(w.Nodes),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

// Node returns the node with the given id.
func (w *Workflow) Node(id string) (WorkflowNode, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return WorkflowNode{}, false
}

// SaveWorkflowResponse is returned by create and update.
type SaveWorkflowResponse struct {
	Success    bool   `json:"success"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// ListWorkflowsResponse is returned by list.
type ListWorkflowsResponse struct {
	Workflows []WorkflowSummary `json:"workflows"`
	Count     int               `json:"count"`
}

// NodeTypesResponse is the palette listing served by the workflow service.
type NodeTypesResponse struct {
	NodeTypes  []NodeTypeDefinition              `json:"node_types"`
	Categories map[Category][]NodeTypeDefinition `json:"categories"`
	Schemas    map[string]*JSONSchema            `json:"schemas,omitempty"`
	Total      int                               `json:"total"`
}
