// Package models defines the core domain models for the pdfflow workflow editor and service.
package models

// Category groups node types for palette organization and layout coloring.
type Category string

const (
	CategoryInput      Category = "input"
	CategoryPDF        Category = "pdf"
	CategoryConvert    Category = "convert"
	CategoryAI         Category = "ai"
	CategoryOCR        Category = "ocr"
	CategoryLogic      Category = "logic"
	CategoryOutput     Category = "output"
	CategoryUnresolved Category = "unresolved" // saved node whose type is no longer registered
)

// CategoryDisplayOrder is the fixed order in which palette groups are shown.
func CategoryDisplayOrder() []Category {
	return []Category{
		CategoryInput,
		CategoryPDF,
		CategoryConvert,
		CategoryAI,
		CategoryOCR,
		CategoryLogic,
		CategoryOutput,
	}
}

// IsValid reports whether c is one of the registered categories.
func (c Category) IsValid() bool {
	for _, known := range CategoryDisplayOrder() {
		if c == known {
			return true
		}
	}

	return false
}

// Default logical ports used when an edge does not name its handles.
const (
	DefaultSourceHandle = "output"
	DefaultTargetHandle = "input"
)

// NodeTypeDefinition is an immutable catalog entry describing one operation kind.
type NodeTypeDefinition struct {
	Type        string                `json:"type"        validate:"required"`
	Category    Category              `json:"category"    validate:"required,oneof=input pdf convert ai ocr logic output"`
	Label       string                `json:"label"       validate:"required"`
	Description string                `json:"description"`
	Parameters  []ParameterDescriptor `json:"parameters"  validate:"dive"`
}

// Parameter returns the descriptor with the given id.
func (d NodeTypeDefinition) Parameter(id string) (ParameterDescriptor, bool) {
	for _, p := range d.Parameters {
		if p.ID == id {
			return p, true
		}
	}

	return ParameterDescriptor{}, false
}

// Position is a point in canvas coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GraphNode is one operation instance in the editable graph.
type GraphNode struct {
	ID          string                `json:"id"`
	Type        string                `json:"type"`
	Position    Position              `json:"position"`
	Label       string                `json:"label"`
	Description string                `json:"description,omitempty"`
	Parameters  map[string]ParamValue `json:"parameters"`
}

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (n *GraphNode) Clone() *GraphNode {
	c := *n

	c.Parameters = make(map[string]ParamValue, len(n.Parameters))
	for k, v := range n.Parameters {
		c.Parameters[k] = v
	}

	return &c
}

// GraphEdge is a directed data-flow link between two node handles.
type GraphEdge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle"`
	TargetHandle string `json:"target_handle"`
}
