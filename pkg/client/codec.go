package client

import (
	"fmt"
	"maps"
	"slices"

	"github.com/dukex/pdfflow/pkg/models"
)

// Graph is the editable node and edge set a workflow is saved from and loaded into.
type Graph struct {
	Nodes []*models.GraphNode
	Edges []models.GraphEdge
}

// Catalog resolves node types while decoding saved workflows.
type Catalog interface {
	Definition(nodeType string) (models.NodeTypeDefinition, bool)
}

// LoadWarning records saved data that was tolerated with a fallback.
type LoadWarning struct {
	NodeID       string
	ConnectionID string
	Message      string
}

func (w LoadWarning) String() string {
	switch {
	case w.NodeID != "":
		return fmt.Sprintf("node %s: %s", w.NodeID, w.Message)
	case w.ConnectionID != "":
		return fmt.Sprintf("connection %s: %s", w.ConnectionID, w.Message)
	default:
		return w.Message
	}
}

// EncodeGraph converts the editable graph into the service's node and connection shapes.
func EncodeGraph(g Graph) ([]models.WorkflowNode, []models.WorkflowConnection) {
	nodes := make([]models.WorkflowNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		params := make(map[string]models.ParamValue, len(n.Parameters))
		for k, v := range n.Parameters {
			params[k] = v
		}

		nodes = append(nodes, models.WorkflowNode{
			ID:       n.ID,
			Type:     n.Type,
			Position: n.Position,
			Config: models.NodeConfig{
				Label:       n.Label,
				Description: n.Description,
				Params:      params,
			},
		})
	}

	connections := make([]models.WorkflowConnection, 0, len(g.Edges))
	for _, e := range g.Edges {
		connections = append(connections, models.WorkflowConnection{
			ID:           e.ID,
			SourceNode:   e.Source,
			SourceHandle: e.SourceHandle,
			TargetNode:   e.Target,
			TargetHandle: e.TargetHandle,
		})
	}

	return nodes, connections
}

// DecodeGraph rebuilds an editable graph from a saved workflow. Unknown node
// types and missing config are tolerated: the node is kept with its type key as
// label and empty parameters. Connections to missing nodes are dropped.
func DecodeGraph(saved *models.Workflow, catalog Catalog) (Graph, []LoadWarning) {
	var warnings []LoadWarning

	g := Graph{
		Nodes: make([]*models.GraphNode, 0, len(saved.Nodes)),
		Edges: make([]models.GraphEdge, 0, len(saved.Connections)),
	}

	seen := make(map[string]bool, len(saved.Nodes))

	for _, n := range saved.Nodes {
		if n.ID == "" || seen[n.ID] {
			warnings = append(warnings, LoadWarning{NodeID: n.ID, Message: "missing or duplicate node id, node skipped"})

			continue
		}

		seen[n.ID] = true

		node := &models.GraphNode{
			ID:          n.ID,
			Type:        n.Type,
			Position:    n.Position,
			Label:       n.Config.Label,
			Description: n.Config.Description,
			Parameters:  make(map[string]models.ParamValue, len(n.Config.Params)),
		}

		for _, k := range slices.Sorted(maps.Keys(n.Config.Params)) {
			v := n.Config.Params[k]
			if v.Kind() == models.ValueRaw {
				warnings = append(warnings, LoadWarning{
					NodeID:  n.ID,
					Message: fmt.Sprintf("parameter %q holds an unsupported value %s, using default", k, v.Raw()),
				})

				continue
			}

			node.Parameters[k] = v
		}

		def, known := catalog.Definition(n.Type)
		if !known {
			warnings = append(warnings, LoadWarning{NodeID: n.ID, Message: fmt.Sprintf("unknown node type %q", n.Type)})
		}

		if node.Label == "" {
			node.Label = n.Type
			if known {
				node.Label = def.Label
			}
		}

		if n.Config.Params == nil {
			warnings = append(warnings, LoadWarning{NodeID: n.ID, Message: "missing parameters, using defaults"})
		}

		g.Nodes = append(g.Nodes, node)
	}

	for _, c := range saved.Connections {
		if !seen[c.SourceNode] || !seen[c.TargetNode] {
			warnings = append(warnings, LoadWarning{ConnectionID: c.ID, Message: "references a missing node, dropped"})

			continue
		}

		edge := models.GraphEdge{
			ID:           c.ID,
			Source:       c.SourceNode,
			Target:       c.TargetNode,
			SourceHandle: c.SourceHandle,
			TargetHandle: c.TargetHandle,
		}

		if edge.ID == "" {
			edge.ID = fmt.Sprintf("edge-%s-%s", c.SourceNode, c.TargetNode)
		}

		if edge.SourceHandle == "" {
			edge.SourceHandle = models.DefaultSourceHandle
		}

		if edge.TargetHandle == "" {
			edge.TargetHandle = models.DefaultTargetHandle
		}

		g.Edges = append(g.Edges, edge)
	}

	return g, warnings
}
