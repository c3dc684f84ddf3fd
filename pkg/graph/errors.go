package graph

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrNodeNotFound    = errors.New("node not found")
	ErrEdgeNotFound    = errors.New("edge not found")
)

// RejectionCode classifies why a proposed edge was refused.
type RejectionCode string

const (
	RejectNodeNotFound  RejectionCode = "node_not_found"
	RejectSelfLoop      RejectionCode = "self_loop"
	RejectNoOutput      RejectionCode = "source_no_output"
	RejectNoInput       RejectionCode = "target_no_input"
	RejectMaxIncoming   RejectionCode = "max_incoming"
	RejectMaxOutgoing   RejectionCode = "max_outgoing"
	RejectDuplicateEdge RejectionCode = "duplicate_edge"
)

// ConnectionRejection is returned when a proposed edge violates a connection rule.
// Reason is meant for display.
type ConnectionRejection struct {
	Code   RejectionCode
	Reason string
}

func (r *ConnectionRejection) Error() string {
	return fmt.Sprintf("connection rejected: %s", r.Reason)
}

// IsRejection reports whether err is a connection rule rejection.
func IsRejection(err error) bool {
	var rejection *ConnectionRejection

	return errors.As(err, &rejection)
}
