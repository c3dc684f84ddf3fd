package models

// Unbounded marks a cardinality limit that does not apply.
const Unbounded = -1

// ConnectionRule describes whether a node type may receive or produce edges and how many.
type ConnectionRule struct {
	AllowsIncoming bool `json:"allows_incoming"`
	AllowsOutgoing bool `json:"allows_outgoing"`
	MaxIncoming    int  `json:"max_incoming"    validate:"min=-1"`
	MaxOutgoing    int  `json:"max_outgoing"    validate:"min=-1"`
	// ExactIncoming marks MaxIncoming as the number of inputs the type needs, not just an upper bound.
	ExactIncoming  bool `json:"exact_incoming,omitempty"`
}

// DefaultConnectionRule is applied to node types without an explicit rule.
// It is maximally permissive so new node types never break the editor.
func DefaultConnectionRule() ConnectionRule {
	return ConnectionRule{
		AllowsIncoming: true,
		AllowsOutgoing: true,
		MaxIncoming:    Unbounded,
		MaxOutgoing:    Unbounded,
	}
}

// EffectiveMaxIncoming folds AllowsIncoming into the limit: 0 when incoming edges are not allowed.
func (r ConnectionRule) EffectiveMaxIncoming() int {
	if !r.AllowsIncoming {
		return 0
	}

	return r.MaxIncoming
}

// EffectiveMaxOutgoing folds AllowsOutgoing into the limit: 0 when outgoing edges are not allowed.
func (r ConnectionRule) EffectiveMaxOutgoing() int {
	if !r.AllowsOutgoing {
		return 0
	}

	return r.MaxOutgoing
}
