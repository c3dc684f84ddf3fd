package graph

import (
	"fmt"

	"github.com/dukex/pdfflow/pkg/models"
)

// View is the read-only graph state the validator needs.
type View interface {
	Node(id string) (*models.GraphNode, bool)
	Edges() []models.GraphEdge
}

// RuleSource resolves the connection rule of a node type.
type RuleSource interface {
	Rule(nodeType string) models.ConnectionRule
}

// ValidateConnection decides whether an edge from source to target is legal
// against the current graph. The first failing check wins. Cycles are allowed.
func ValidateConnection(view View, rules RuleSource, sourceID, targetID string) *ConnectionRejection {
	source, ok := view.Node(sourceID)
	if !ok {
		return &ConnectionRejection{Code: RejectNodeNotFound, Reason: "node not found"}
	}

	target, ok := view.Node(targetID)
	if !ok {
		return &ConnectionRejection{Code: RejectNodeNotFound, Reason: "node not found"}
	}

	if sourceID == targetID {
		return &ConnectionRejection{Code: RejectSelfLoop, Reason: "cannot connect a node to itself"}
	}

	sourceRule := rules.Rule(source.Type)
	targetRule := rules.Rule(target.Type)

	if !sourceRule.AllowsOutgoing {
		return &ConnectionRejection{
			Code:   RejectNoOutput,
			Reason: fmt.Sprintf("%s cannot be an output source", displayName(source)),
		}
	}

	if !targetRule.AllowsIncoming {
		return &ConnectionRejection{
			Code:   RejectNoInput,
			Reason: fmt.Sprintf("%s cannot receive input", displayName(target)),
		}
	}

	var incoming, outgoing int

	duplicate := false

	for _, e := range view.Edges() {
		if e.Target == targetID {
			incoming++
		}

		if e.Source == sourceID {
			outgoing++
		}

		if e.Source == sourceID && e.Target == targetID {
			duplicate = true
		}
	}

	if limit := targetRule.MaxIncoming; limit >= 0 && incoming >= limit {
		reason := fmt.Sprintf("%s accepts at most %d inputs (currently %d)", displayName(target), limit, incoming)
		if targetRule.ExactIncoming {
			reason = fmt.Sprintf("%s requires exactly %d inputs (already has %d)", displayName(target), limit, incoming)
		}

		return &ConnectionRejection{Code: RejectMaxIncoming, Reason: reason}
	}

	if limit := sourceRule.MaxOutgoing; limit >= 0 && outgoing >= limit {
		return &ConnectionRejection{
			Code:   RejectMaxOutgoing,
			Reason: fmt.Sprintf("%s allows at most %d outputs", displayName(source), limit),
		}
	}

	if duplicate {
		return &ConnectionRejection{Code: RejectDuplicateEdge, Reason: "duplicate connection"}
	}

	return nil
}

func displayName(n *models.GraphNode) string {
	if n.Label != "" {
		return n.Label
	}

	return n.Type
}
