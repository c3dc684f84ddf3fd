// Package layout computes canvas positions for workflow graphs.
// Every function is pure: it returns new positions and never touches the graph.
package layout

import (
	"github.com/dukex/pdfflow/pkg/models"
)

// Config holds the spacing used by AutoArrange.
type Config struct {
	// BaseX is the x of level 0.
	BaseX float64
	// BaseY is the baseline each level is centered on.
	BaseY float64
	// HorizontalGap separates consecutive levels.
	HorizontalGap float64
	// VerticalGap separates nodes inside a level.
	VerticalGap float64
}

// DefaultConfig returns the spacing used by the editor canvas.
func DefaultConfig() Config {
	return Config{
		BaseX:         100,
		BaseY:         200,
		HorizontalGap: 250,
		VerticalGap:   120,
	}
}

// Result contains the computed positions for each node.
type Result struct {
	// Positions maps node ids to their new positions.
	Positions map[string]models.Position
	// Levels maps node ids to their BFS depth.
	Levels map[string]int
	// Order lists node ids per level, top to bottom.
	Order [][]string
}

// AlignHorizontal puts every node on the mean y, keeping x.
func AlignHorizontal(nodes []*models.GraphNode) map[string]models.Position {
	if len(nodes) == 0 {
		return map[string]models.Position{}
	}

	var sum float64
	for _, n := range nodes {
		sum += n.Position.Y
	}

	mean := sum / float64(len(nodes))

	out := make(map[string]models.Position, len(nodes))
	for _, n := range nodes {
		out[n.ID] = models.Position{X: n.Position.X, Y: mean}
	}

	return out
}

// AlignVertical puts every node on the mean x, keeping y.
func AlignVertical(nodes []*models.GraphNode) map[string]models.Position {
	if len(nodes) == 0 {
		return map[string]models.Position{}
	}

	var sum float64
	for _, n := range nodes {
		sum += n.Position.X
	}

	mean := sum / float64(len(nodes))

	out := make(map[string]models.Position, len(nodes))
	for _, n := range nodes {
		out[n.ID] = models.Position{X: mean, Y: n.Position.Y}
	}

	return out
}

// AutoArrange levels the graph breadth-first from its roots and lays levels out
// left to right. A root is a node whose type is a data source (isSource) or a
// node without incoming edges. Nodes the traversal never reaches get their own
// level each, in node order. Edge crossings and cycles get no special handling.
func AutoArrange(nodes []*models.GraphNode, edges []models.GraphEdge, isSource func(nodeType string) bool, cfg Config) Result {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	outgoing := make(map[string][]string)
	incoming := make(map[string]int)

	for _, e := range edges {
		if !known[e.Source] || !known[e.Target] {
			continue
		}

		outgoing[e.Source] = append(outgoing[e.Source], e.Target)
		incoming[e.Target]++
	}

	visited := make(map[string]bool, len(nodes))

	var order [][]string

	var roots []string

	for _, n := range nodes {
		if (isSource != nil && isSource(n.Type)) || incoming[n.ID] == 0 {
			roots = append(roots, n.ID)
			visited[n.ID] = true
		}
	}

	for level := roots; len(level) > 0; {
		order = append(order, level)

		var next []string

		for _, id := range level {
			for _, target := range outgoing[id] {
				if visited[target] {
					continue
				}

				visited[target] = true
				next = append(next, target)
			}
		}

		level = next
	}

	for _, n := range nodes {
		if !visited[n.ID] {
			visited[n.ID] = true
			order = append(order, []string{n.ID})
		}
	}

	result := Result{
		Positions: make(map[string]models.Position, len(nodes)),
		Levels:    make(map[string]int, len(nodes)),
		Order:     order,
	}

	for level, ids := range order {
		x := cfg.BaseX + float64(level)*cfg.HorizontalGap
		center := float64(len(ids)-1) / 2

		for i, id := range ids {
			result.Levels[id] = level
			result.Positions[id] = models.Position{
				X: x,
				Y: cfg.BaseY + (float64(i)-center)*cfg.VerticalGap,
			}
		}
	}

	return result
}
