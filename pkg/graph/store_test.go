package graph

import (
	"testing"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
node_types:
  - type: input_file
    category: input
    label: input_file
    rule:
      allows_incoming: false
  - type: input_folder
    category: input
    label: input_folder
    rule:
      allows_incoming: false
  - type: pdf_compress
    category: pdf
    label: pdf_compress
    parameters:
      - id: quality
        kind: select
        label: Quality
        default: medium
        options:
          - { value: low, label: Low }
          - { value: medium, label: Medium }
  - type: pdf_merge
    category: pdf
    label: pdf_merge
  - type: ai_compare
    category: ai
    label: ai_compare
    rule:
      max_incoming: 2
      exact_incoming: true
  - type: ai_pair
    category: ai
    label: ai_pair
    rule:
      max_incoming: 2
  - type: ai_summarize
    category: ai
    label: ai_summarize
    rule:
      max_incoming: 1
      max_outgoing: 1
  - type: output_save
    category: output
    label: output_save
    rule:
      allows_outgoing: false
`

func newTestStore(t *testing.T) *Store {
	t.Helper()

	catalog, err := registry.Parse([]byte(testCatalog))
	require.NoError(t, err)

	return NewStore(catalog, WithIDGenerator(NewSequence()))
}

func addNode(t *testing.T, s *Store, nodeType string) *models.GraphNode {
	t.Helper()

	node, err := s.AddNode(nodeType, models.Position{})
	require.NoError(t, err)

	return node
}

func TestStore_AddNode(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	node, err := s.AddNode("pdf_compress", models.Position{X: 10, Y: 20})
	require.NoError(t, err)

	assert.Equal(t, "pdf_compress-1", node.ID)
	assert.Equal(t, "pdf_compress", node.Label)
	assert.Equal(t, models.Position{X: 10, Y: 20}, node.Position)
	assert.Empty(t, node.Parameters)
	assert.Equal(t, node.ID, s.Selection())
	assert.Equal(t, 1, s.Len())

	_, err = s.AddNode("pdf_teleport", models.Position{})
	require.ErrorIs(t, err, ErrUnknownNodeType)
	assert.Equal(t, 1, s.Len())
}

func TestStore_AddNode_ReturnsCopy(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	node := addNode(t, s, "pdf_compress")

	node.Label = "mutated"
	node.Parameters["quality"] = models.TextValue("low")

	stored, ok := s.Node(node.ID)
	require.True(t, ok)
	assert.Equal(t, "pdf_compress", stored.Label)
	assert.Empty(t, stored.Parameters)
}

func TestStore_DefaultIDsAreUnique(t *testing.T) {
	t.Parallel()

	catalog, err := registry.Parse([]byte(testCatalog))
	require.NoError(t, err)

	s := NewStore(catalog)
	seen := map[string]bool{}

	for range 50 {
		node, err := s.AddNode("pdf_merge", models.Position{})
		require.NoError(t, err)
		assert.Contains(t, node.ID, "pdf_merge-")
		assert.False(t, seen[node.ID])
		seen[node.ID] = true
	}
}

func TestStore_RemoveNode_CascadesEdges(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	in := addNode(t, s, "input_file")
	merge := addNode(t, s, "pdf_merge")
	compress := addNode(t, s, "pdf_compress")
	out := addNode(t, s, "output_save")

	for _, pair := range [][2]string{
		{in.ID, merge.ID},
		{merge.ID, compress.ID},
		{compress.ID, out.ID},
		{in.ID, compress.ID},
	} {
		_, err := s.TryConnect(pair[0], pair[1], "", "")
		require.NoError(t, err)
	}

	require.NoError(t, s.Select(merge.ID))
	require.NoError(t, s.RemoveNode(compress.ID))

	for _, e := range s.Edges() {
		assert.NotEqual(t, compress.ID, e.Source)
		assert.NotEqual(t, compress.ID, e.Target)
	}

	assert.Len(t, s.Edges(), 1)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, merge.ID, s.Selection())

	require.NoError(t, s.RemoveNode(merge.ID))
	assert.Empty(t, s.Selection())
	assert.Empty(t, s.Edges())

	assert.ErrorIs(t, s.RemoveNode("missing"), ErrNodeNotFound)
}

func TestStore_RemoveNode_ClearsSelectedEdge(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	in := addNode(t, s, "input_file")
	out := addNode(t, s, "output_save")

	edge, err := s.TryConnect(in.ID, out.ID, "", "")
	require.NoError(t, err)
	require.NoError(t, s.Select(edge.ID))

	require.NoError(t, s.RemoveNode(out.ID))
	assert.Empty(t, s.Selection())
}

func TestStore_MoveRenameUpdate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	node := addNode(t, s, "pdf_compress")

	require.NoError(t, s.MoveNode(node.ID, models.Position{X: 5, Y: 6}))
	require.NoError(t, s.RenameNode(node.ID, "Shrink"))
	require.NoError(t, s.UpdateNodeParameter(node.ID, "quality", models.TextValue("low")))
	require.NoError(t, s.UpdateNodeParameter(node.ID, "anything", models.NumberValue(3)))

	stored, ok := s.Node(node.ID)
	require.True(t, ok)
	assert.Equal(t, models.Position{X: 5, Y: 6}, stored.Position)
	assert.Equal(t, "Shrink", stored.Label)
	assert.Equal(t, "low", stored.Parameters["quality"].Text())
	assert.InDelta(t, 3.0, stored.Parameters["anything"].Number(), 1e-9)

	assert.ErrorIs(t, s.MoveNode("missing", models.Position{}), ErrNodeNotFound)
	assert.ErrorIs(t, s.RenameNode("missing", "x"), ErrNodeNotFound)
	assert.ErrorIs(t, s.UpdateNodeParameter("missing", "q", models.TextValue("x")), ErrNodeNotFound)
}

func TestStore_TryConnect_DefaultHandles(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	in := addNode(t, s, "input_file")
	out := addNode(t, s, "output_save")

	edge, err := s.TryConnect(in.ID, out.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "output", edge.SourceHandle)
	assert.Equal(t, "input", edge.TargetHandle)
	assert.Equal(t, in.ID, edge.Source)
	assert.Equal(t, out.ID, edge.Target)
}

func TestStore_TryConnect_RejectionLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	in := addNode(t, s, "input_file")
	out := addNode(t, s, "output_save")

	_, err := s.TryConnect(out.ID, in.ID, "", "")
	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.Empty(t, s.Edges())
}

func TestStore_RemoveEdge(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	in := addNode(t, s, "input_file")
	out := addNode(t, s, "output_save")

	edge, err := s.TryConnect(in.ID, out.ID, "", "")
	require.NoError(t, err)
	require.NoError(t, s.Select(edge.ID))

	require.NoError(t, s.RemoveEdge(edge.ID))
	assert.Empty(t, s.Edges())
	assert.Empty(t, s.Selection())
	assert.ErrorIs(t, s.RemoveEdge(edge.ID), ErrEdgeNotFound)
}

func TestStore_ClearAndReplace(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	in := addNode(t, s, "input_file")
	out := addNode(t, s, "output_save")
	_, err := s.TryConnect(in.ID, out.ID, "", "")
	require.NoError(t, err)

	nodes := s.Nodes()
	edges := s.Edges()

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Edges())
	assert.Empty(t, s.Selection())

	s.Replace(nodes, edges)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, edges, s.Edges())
	assert.Empty(t, s.Selection())
}

func TestStore_ApplyPositions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	a := addNode(t, s, "input_file")
	b := addNode(t, s, "output_save")

	s.ApplyPositions(map[string]models.Position{
		a.ID:      {X: 1, Y: 2},
		"unknown": {X: 9, Y: 9},
	})

	stored, _ := s.Node(a.ID)
	assert.Equal(t, models.Position{X: 1, Y: 2}, stored.Position)

	stored, _ = s.Node(b.ID)
	assert.Equal(t, models.Position{}, stored.Position)
}

func TestStore_Select(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	a := addNode(t, s, "input_file")

	require.NoError(t, s.Select(""))
	assert.Empty(t, s.Selection())

	require.NoError(t, s.Select(a.ID))
	assert.Equal(t, a.ID, s.Selection())

	assert.Error(t, s.Select("missing"))
	assert.Equal(t, a.ID, s.Selection())
}
