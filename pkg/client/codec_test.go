package client

import (
	"encoding/json"
	"testing"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeGraph_WireShape(t *testing.T) {
	t.Parallel()

	nodes, connections := EncodeGraph(sampleGraph())

	data, err := json.Marshal(map[string]any{"nodes": nodes, "connections": connections})
	require.NoError(t, err)

	var raw struct {
		Nodes []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Position struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"position"`
			Config struct {
				Label  string         `json:"label"`
				Params map[string]any `json:"params"`
			} `json:"config"`
		} `json:"nodes"`
		Connections []map[string]string `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))

	require.Len(t, raw.Nodes, 3)
	assert.Equal(t, "pdf_compress-2", raw.Nodes[1].ID)
	assert.Equal(t, "Shrink", raw.Nodes[1].Config.Label)
	assert.Equal(t, "low", raw.Nodes[1].Config.Params["quality"])
	assert.InDelta(t, 200.5, raw.Nodes[2].Position.Y, 1e-9)

	assert.Equal(t, map[string]string{
		"id":            "edge-4",
		"source_node":   "input_file-1",
		"source_handle": "output",
		"target_node":   "pdf_compress-2",
		"target_handle": "input",
	}, raw.Connections[0])
}

func TestDecodeGraph_ToleratesMalformedData(t *testing.T) {
	t.Parallel()

	saved := &models.Workflow{
		ID:   "wf-1",
		Name: "legacy",
		Nodes: []models.WorkflowNode{
			{ID: "a", Type: "input_file"},
			{ID: "b", Type: "pdf_teleport", Config: models.NodeConfig{Params: map[string]models.ParamValue{"speed": models.NumberValue(9)}}},
			{ID: "a", Type: "output_save"},
		},
		Connections: []models.WorkflowConnection{
			{SourceNode: "a", TargetNode: "b"},
			{ID: "c2", SourceNode: "b", TargetNode: "missing"},
		},
	}

	g, warnings := DecodeGraph(saved, testCatalog)

	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "File Input", g.Nodes[0].Label)
	assert.NotNil(t, g.Nodes[0].Parameters)
	assert.Empty(t, g.Nodes[0].Parameters)
	assert.Equal(t, "pdf_teleport", g.Nodes[1].Label)
	assert.InDelta(t, 9.0, g.Nodes[1].Parameters["speed"].Number(), 1e-9)

	require.Len(t, g.Edges, 1)
	assert.Equal(t, "output", g.Edges[0].SourceHandle)
	assert.Equal(t, "input", g.Edges[0].TargetHandle)
	assert.NotEmpty(t, g.Edges[0].ID)

	var messages []string
	for _, w := range warnings {
		messages = append(messages, w.String())
	}

	assert.Contains(t, messages, `node b: unknown node type "pdf_teleport"`)
	assert.Contains(t, messages, "node a: missing parameters, using defaults")
	assert.Contains(t, messages, "node a: missing or duplicate node id, node skipped")
	assert.Contains(t, messages, "connection c2: references a missing node, dropped")
}

func TestDecodeGraph_NonScalarParamFallsBackToDefault(t *testing.T) {
	t.Parallel()

	data := `{
		"id": "legacy",
		"name": "Legacy",
		"nodes": [
			{"id": "n1", "type": "pdf_compress", "config": {"label": "Shrink", "params": {"quality": "high", "pages": [1, 3]}}}
		],
		"connections": []
	}`

	var saved models.Workflow

	require.NoError(t, json.Unmarshal([]byte(data), &saved))

	g, warnings := DecodeGraph(&saved, testCatalog)

	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "high", g.Nodes[0].Parameters["quality"].Text())
	assert.NotContains(t, g.Nodes[0].Parameters, "pages")

	require.Len(t, warnings, 1)
	assert.Equal(t, "n1", warnings[0].NodeID)
	assert.Contains(t, warnings[0].String(), `parameter "pages" holds an unsupported value`)
}
