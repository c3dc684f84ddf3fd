package layout

import (
	"testing"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, nodeType string, x, y float64) *models.GraphNode {
	return &models.GraphNode{ID: id, Type: nodeType, Position: models.Position{X: x, Y: y}}
}

func edge(source, target string) models.GraphEdge {
	return models.GraphEdge{ID: source + "->" + target, Source: source, Target: target}
}

func isInput(nodeType string) bool {
	return nodeType == "input_file" || nodeType == "input_folder"
}

func TestAlignHorizontal(t *testing.T) {
	t.Parallel()

	nodes := []*models.GraphNode{
		node("a", "pdf_merge", 0, 0),
		node("b", "pdf_merge", 50, 30),
		node("c", "pdf_merge", 90, 90),
	}

	got := AlignHorizontal(nodes)

	assert.Equal(t, map[string]models.Position{
		"a": {X: 0, Y: 40},
		"b": {X: 50, Y: 40},
		"c": {X: 90, Y: 40},
	}, got)
	assert.Empty(t, AlignHorizontal(nil))
}

func TestAlignVertical(t *testing.T) {
	t.Parallel()

	nodes := []*models.GraphNode{
		node("a", "pdf_merge", 10, 0),
		node("b", "pdf_merge", 20, 30),
	}

	got := AlignVertical(nodes)

	assert.Equal(t, map[string]models.Position{
		"a": {X: 15, Y: 0},
		"b": {X: 15, Y: 30},
	}, got)
	assert.Empty(t, AlignVertical(nil))
}

func TestAutoArrange_Chain(t *testing.T) {
	t.Parallel()

	nodes := []*models.GraphNode{
		node("A", "input_file", 500, 500),
		node("B", "pdf_compress", 0, 0),
		node("C", "pdf_watermark", 10, 700),
	}
	edges := []models.GraphEdge{edge("A", "B"), edge("B", "C")}

	res := AutoArrange(nodes, edges, isInput, DefaultConfig())

	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, res.Order)

	a, b, c := res.Positions["A"], res.Positions["B"], res.Positions["C"]
	assert.Less(t, a.X, b.X)
	assert.Less(t, b.X, c.X)
	assert.InDelta(t, 100.0, a.X, 1e-9)
	assert.InDelta(t, 350.0, b.X, 1e-9)
	assert.InDelta(t, a.Y, b.Y, 1e-9)
	assert.InDelta(t, b.Y, c.Y, 1e-9)
	assert.InDelta(t, 200.0, a.Y, 1e-9)
}

func TestAutoArrange_CentersLevels(t *testing.T) {
	t.Parallel()

	nodes := []*models.GraphNode{
		node("in", "input_file", 0, 0),
		node("x", "pdf_compress", 0, 0),
		node("y", "pdf_rotate", 0, 0),
		node("z", "pdf_split", 0, 0),
	}
	edges := []models.GraphEdge{edge("in", "x"), edge("in", "y"), edge("in", "z")}

	res := AutoArrange(nodes, edges, isInput, DefaultConfig())

	require.Equal(t, [][]string{{"in"}, {"x", "y", "z"}}, res.Order)
	assert.InDelta(t, 80.0, res.Positions["x"].Y, 1e-9)
	assert.InDelta(t, 200.0, res.Positions["y"].Y, 1e-9)
	assert.InDelta(t, 320.0, res.Positions["z"].Y, 1e-9)
}

func TestAutoArrange_DeduplicatesTargets(t *testing.T) {
	t.Parallel()

	nodes := []*models.GraphNode{
		node("a", "input_file", 0, 0),
		node("b", "input_file", 0, 0),
		node("cmp", "ai_compare", 0, 0),
	}
	edges := []models.GraphEdge{edge("a", "cmp"), edge("b", "cmp")}

	res := AutoArrange(nodes, edges, isInput, DefaultConfig())

	assert.Equal(t, [][]string{{"a", "b"}, {"cmp"}}, res.Order)
	assert.Equal(t, 1, res.Levels["cmp"])
}

func TestAutoArrange_SourceTypeIsRootEvenWithIncoming(t *testing.T) {
	t.Parallel()

	nodes := []*models.GraphNode{
		node("m", "pdf_merge", 0, 0),
		node("in", "input_file", 0, 0),
	}
	edges := []models.GraphEdge{edge("m", "in")}

	res := AutoArrange(nodes, edges, isInput, DefaultConfig())

	assert.Equal(t, [][]string{{"m", "in"}}, res.Order)
}

func TestAutoArrange_CycleOnlyNodesBecomeSingletons(t *testing.T) {
	t.Parallel()

	nodes := []*models.GraphNode{
		node("in", "input_file", 0, 0),
		node("p", "pdf_compress", 0, 0),
		node("q", "pdf_rotate", 0, 0),
		node("lonely", "pdf_split", 0, 0),
	}
	edges := []models.GraphEdge{edge("p", "q"), edge("q", "p")}

	res := AutoArrange(nodes, edges, isInput, DefaultConfig())

	assert.Equal(t, [][]string{{"in", "lonely"}, {"p"}, {"q"}}, res.Order)
	assert.InDelta(t, 200.0, res.Positions["p"].Y, 1e-9)
}

func TestAutoArrange_Idempotent(t *testing.T) {
	t.Parallel()

	nodes := []*models.GraphNode{
		node("in", "input_file", 0, 0),
		node("a", "pdf_compress", 0, 0),
		node("b", "pdf_rotate", 0, 0),
		node("out", "output_save", 0, 0),
	}
	edges := []models.GraphEdge{edge("in", "a"), edge("in", "b"), edge("a", "out"), edge("b", "out")}

	first := AutoArrange(nodes, edges, isInput, DefaultConfig())

	for _, n := range nodes {
		n.Position = first.Positions[n.ID]
	}

	second := AutoArrange(nodes, edges, isInput, DefaultConfig())

	assert.Equal(t, first.Levels, second.Levels)

	for id, pos := range first.Positions {
		assert.InDelta(t, pos.X, second.Positions[id].X, 1e-9)
	}
}

func TestAutoArrange_IgnoresDanglingEdges(t *testing.T) {
	t.Parallel()

	nodes := []*models.GraphNode{node("a", "pdf_compress", 0, 0)}
	edges := []models.GraphEdge{edge("ghost", "a")}

	res := AutoArrange(nodes, edges, nil, DefaultConfig())

	assert.Equal(t, [][]string{{"a"}}, res.Order)
}

func TestAutoArrange_Empty(t *testing.T) {
	t.Parallel()

	res := AutoArrange(nil, nil, isInput, DefaultConfig())

	assert.Empty(t, res.Order)
	assert.Empty(t, res.Positions)
}
