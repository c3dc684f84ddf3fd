// Package graph holds the editable workflow graph and the connection validator.
package graph

import (
	"fmt"

	"github.com/dukex/pdfflow/pkg/models"
)

// Catalog is the subset of the node registry the store depends on.
type Catalog interface {
	RuleSource
	Definition(nodeType string) (models.NodeTypeDefinition, bool)
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the default time-ordered id generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Store) {
		s.ids = ids
	}
}

// Store is the in-memory node and edge collection behind the editor canvas.
// It is not safe for concurrent use; a single session owns it.
type Store struct {
	catalog   Catalog
	ids       IDGenerator
	nodes     []*models.GraphNode
	edges     []*models.GraphEdge
	selection string
}

// NewStore creates an empty store.
func NewStore(catalog Catalog, opts ...Option) *Store {
	s := &Store{
		catalog: catalog,
		ids:     TimeOrderedIDs{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AddNode places a new node of nodeType at pos and selects it.
func (s *Store) AddNode(nodeType string, pos models.Position) (*models.GraphNode, error) {
	def, ok := s.catalog.Definition(nodeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	node := &models.GraphNode{
		ID:          s.ids.NewNodeID(nodeType),
		Type:        nodeType,
		Position:    pos,
		Label:       def.Label,
		Description: def.Description,
		Parameters:  map[string]models.ParamValue{},
	}

	s.nodes = append(s.nodes, node)
	s.selection = node.ID

	return node.Clone(), nil
}

// RemoveNode deletes a node and every edge touching it.
func (s *Store) RemoveNode(id string) error {
	i := s.nodeIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)

	if s.selection == id {
		s.selection = ""
	}

	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			if s.selection == e.ID {
				s.selection = ""
			}

			continue
		}

		kept = append(kept, e)
	}

	s.edges = kept

	return nil
}

// MoveNode sets the canvas position of a node.
func (s *Store) MoveNode(id string, pos models.Position) error {
	node, err := s.mustNode(id)
	if err != nil {
		return err
	}

	node.Position = pos

	return nil
}

// UpdateNodeParameter merges value into the node's parameters without checking it.
// Kind and range coercion happen where the value is committed by the user.
func (s *Store) UpdateNodeParameter(id, paramID string, value models.ParamValue) error {
	node, err := s.mustNode(id)
	if err != nil {
		return err
	}

	node.Parameters[paramID] = value

	return nil
}

// RenameNode sets the user-visible label of a node.
func (s *Store) RenameNode(id, label string) error {
	node, err := s.mustNode(id)
	if err != nil {
		return err
	}

	node.Label = label

	return nil
}

// TryConnect adds an edge when the connection rules allow it. A refused edge
// returns a *ConnectionRejection and leaves the store unchanged.
func (s *Store) TryConnect(sourceID, targetID, sourceHandle, targetHandle string) (*models.GraphEdge, error) {
	if rejection := ValidateConnection(s, s.catalog, sourceID, targetID); rejection != nil {
		return nil, rejection
	}

	if sourceHandle == "" {
		sourceHandle = models.DefaultSourceHandle
	}

	if targetHandle == "" {
		targetHandle = models.DefaultTargetHandle
	}

	edge := &models.GraphEdge{
		ID:           s.ids.NewEdgeID(),
		Source:       sourceID,
		Target:       targetID,
		SourceHandle: sourceHandle,
		TargetHandle: targetHandle,
	}

	s.edges = append(s.edges, edge)

	e := *edge

	return &e, nil
}

// RemoveEdge deletes one edge.
func (s *Store) RemoveEdge(id string) error {
	for i, e := range s.edges {
		if e.ID == id {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)

			if s.selection == id {
				s.selection = ""
			}

			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.nodes = nil
	s.edges = nil
	s.selection = ""
}

// Replace swaps the whole graph, as when a saved workflow is opened.
func (s *Store) Replace(nodes []*models.GraphNode, edges []models.GraphEdge) {
	s.Clear()

	for _, n := range nodes {
		s.nodes = append(s.nodes, n.Clone())
	}

	for _, e := range edges {
		edge := e
		s.edges = append(s.edges, &edge)
	}
}

// ApplyPositions moves several nodes at once. Unknown ids are ignored.
func (s *Store) ApplyPositions(positions map[string]models.Position) {
	for _, n := range s.nodes {
		if pos, ok := positions[n.ID]; ok {
			n.Position = pos
		}
	}
}

func (s *Store) Len() int {
	return len(s.nodes)
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (*models.GraphNode, bool) {
	i := s.nodeIndex(id)
	if i < 0 {
		return nil, false
	}

	return s.nodes[i].Clone(), true
}

// Nodes returns copies of every node in creation order.
func (s *Store) Nodes() []*models.GraphNode {
	out := make([]*models.GraphNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}

	return out
}

// Edges returns copies of every edge in creation order.
func (s *Store) Edges() []models.GraphEdge {
	out := make([]models.GraphEdge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, *e)
	}

	return out
}

// Select marks a node or edge as selected. An empty id clears the selection.
func (s *Store) Select(id string) error {
	if id == "" || s.nodeIndex(id) >= 0 {
		s.selection = id

		return nil
	}

	for _, e := range s.edges {
		if e.ID == id {
			s.selection = id

			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
}

// Selection returns the selected node or edge id, or "" when nothing is selected.
func (s *Store) Selection() string {
	return s.selection
}

func (s *Store) nodeIndex(id string) int {
	for i, n := range s.nodes {
		if n.ID == id {
			return i
		}
	}

	return -1
}

func (s *Store) mustNode(id string) (*models.GraphNode, error) {
	i := s.nodeIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	return s.nodes[i], nil
}
