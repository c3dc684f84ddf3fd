package graph

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator produces node and edge identifiers.
type IDGenerator interface {
	NewNodeID(nodeType string) string
	NewEdgeID() string
}

// TimeOrderedIDs prefixes node ids with their type and suffixes a ULID, so ids
// sort by creation time and never collide across sessions.
type TimeOrderedIDs struct{}

func (TimeOrderedIDs) NewNodeID(nodeType string) string {
	return nodeType + "-" + strings.ToLower(ulid.Make().String())
}

func (TimeOrderedIDs) NewEdgeID() string {
	return "edge-" + uuid.NewString()
}

// Sequence is a deterministic generator for tests and reproducible imports.
type Sequence struct {
	n atomic.Uint64
}

func NewSequence() *Sequence {
	return &Sequence{}
}

func (s *Sequence) NewNodeID(nodeType string) string {
	return nodeType + "-" + strconv.FormatUint(s.n.Add(1), 10)
}

func (s *Sequence) NewEdgeID() string {
	return "edge-" + strconv.FormatUint(s.n.Add(1), 10)
}
