// Package registry holds the node type catalog and the connection rule table.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var ErrInvalidCatalog = errors.New("invalid node catalog")

// CategoryGroup is one palette section.
type CategoryGroup struct {
	Category    models.Category             `json:"category"`
	Definitions []models.NodeTypeDefinition `json:"definitions"`
}

// Catalog is the read-only registry of node types and their connection rules.
// It is built once and shared by reference.
type Catalog struct {
	definitions []models.NodeTypeDefinition
	index       map[string]int
	rules       map[string]models.ConnectionRule
	schemas     map[string]*models.JSONSchema
}

type catalogFile struct {
	NodeTypes []nodeTypeEntry `yaml:"node_types"`
}

type nodeTypeEntry struct {
	Type        string           `yaml:"type"`
	Category    string           `yaml:"category"`
	Label       string           `yaml:"label"`
	Description string           `yaml:"description"`
	Rule        *ruleEntry       `yaml:"rule"`
	Parameters  []parameterEntry `yaml:"parameters"`
}

type ruleEntry struct {
	AllowsIncoming *bool `yaml:"allows_incoming"`
	AllowsOutgoing *bool `yaml:"allows_outgoing"`
	MaxIncoming    *int  `yaml:"max_incoming"`
	MaxOutgoing    *int  `yaml:"max_outgoing"`
	ExactIncoming  bool  `yaml:"exact_incoming"`
}

type parameterEntry struct {
	ID          string          `yaml:"id"`
	Kind        string          `yaml:"kind"`
	Label       string          `yaml:"label"`
	Default     any             `yaml:"default"`
	Options     []models.Option `yaml:"options"`
	Min         *float64        `yaml:"min"`
	Max         *float64        `yaml:"max"`
	Required    bool            `yaml:"required"`
	Description string          `yaml:"description"`
}

// Load parses the embedded default catalog.
func Load(logger *slog.Logger) (*Catalog, error) {
	catalog, err := Parse(defaultCatalog)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded node catalog", "node_types", len(catalog.definitions), "rules", len(catalog.rules))

	return catalog, nil
}

// Parse builds a catalog from YAML. Every default must be representable by its
// parameter kind; a violation fails the whole catalog.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	catalog := &Catalog{
		definitions: make([]models.NodeTypeDefinition, 0, len(file.NodeTypes)),
		index:       make(map[string]int, len(file.NodeTypes)),
		rules:       make(map[string]models.ConnectionRule),
		schemas:     make(map[string]*models.JSONSchema, len(file.NodeTypes)),
	}

	for _, entry := range file.NodeTypes {
		def, err := entry.definition()
		if err != nil {
			return nil, fmt.Errorf("%w: node type %q: %w", ErrInvalidCatalog, entry.Type, err)
		}

		if err := validate.Struct(def); err != nil {
			return nil, fmt.Errorf("%w: node type %q: %w", ErrInvalidCatalog, entry.Type, err)
		}

		if _, exists := catalog.index[def.Type]; exists {
			return nil, fmt.Errorf("%w: duplicate node type %q", ErrInvalidCatalog, def.Type)
		}

		if entry.Rule != nil {
			rule := entry.Rule.connectionRule()
			if err := validate.Struct(rule); err != nil {
				return nil, fmt.Errorf("%w: rule for %q: %w", ErrInvalidCatalog, def.Type, err)
			}

			if rule.ExactIncoming && rule.MaxIncoming < 1 {
				return nil, fmt.Errorf("%w: rule for %q: exact_incoming needs a positive max_incoming", ErrInvalidCatalog, def.Type)
			}

			catalog.rules[def.Type] = rule
		}

		catalog.index[def.Type] = len(catalog.definitions)
		catalog.definitions = append(catalog.definitions, def)
		catalog.schemas[def.Type] = buildSchema(def)
	}

	return catalog, nil
}

func (e nodeTypeEntry) definition() (models.NodeTypeDefinition, error) {
	def := models.NodeTypeDefinition{
		Type:        e.Type,
		Category:    models.Category(e.Category),
		Label:       e.Label,
		Description: e.Description,
		Parameters:  make([]models.ParameterDescriptor, 0, len(e.Parameters)),
	}

	seen := make(map[string]bool, len(e.Parameters))

	for _, p := range e.Parameters {
		if seen[p.ID] {
			return def, fmt.Errorf("duplicate parameter %q", p.ID)
		}

		seen[p.ID] = true

		desc := models.ParameterDescriptor{
			ID:          p.ID,
			Kind:        models.ParameterKind(p.Kind),
			Label:       p.Label,
			Options:     p.Options,
			Min:         p.Min,
			Max:         p.Max,
			Required:    p.Required,
			Description: p.Description,
		}

		if p.Default != nil {
			value, err := models.ValueOf(p.Default)
			if err != nil {
				return def, fmt.Errorf("parameter %q default: %w", p.ID, err)
			}

			if !desc.Representable(value) {
				return def, fmt.Errorf("parameter %q default %v is not a valid %s", p.ID, p.Default, p.Kind)
			}

			desc.Default = &value
		}

		def.Parameters = append(def.Parameters, desc)
	}

	return def, nil
}

func (r ruleEntry) connectionRule() models.ConnectionRule {
	rule := models.DefaultConnectionRule()

	if r.AllowsIncoming != nil {
		rule.AllowsIncoming = *r.AllowsIncoming
	}

	if r.AllowsOutgoing != nil {
		rule.AllowsOutgoing = *r.AllowsOutgoing
	}

	if r.MaxIncoming != nil {
		rule.MaxIncoming = *r.MaxIncoming
	}

	if r.MaxOutgoing != nil {
		rule.MaxOutgoing = *r.MaxOutgoing
	}

	rule.ExactIncoming = r.ExactIncoming

	return rule
}

// Definition returns the definition for a node type key.
func (c *Catalog) Definition(nodeType string) (models.NodeTypeDefinition, bool) {
	i, ok := c.index[nodeType]
	if !ok {
		return models.NodeTypeDefinition{}, false
	}

	return c.definitions[i], true
}

// Has reports whether nodeType is registered.
func (c *Catalog) Has(nodeType string) bool {
	_, ok := c.index[nodeType]

	return ok
}

// Definitions returns every definition in catalog order.
func (c *Catalog) Definitions() []models.NodeTypeDefinition {
	out := make([]models.NodeTypeDefinition, len(c.definitions))
	copy(out, c.definitions)

	return out
}

// Types returns every node type key in catalog order.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.definitions))
	for _, d := range c.definitions {
		out = append(out, d.Type)
	}

	return out
}

// DefinitionsByCategory groups definitions in palette display order.
// Categories without definitions are omitted.
func (c *Catalog) DefinitionsByCategory() []CategoryGroup {
	groups := make([]CategoryGroup, 0, len(models.CategoryDisplayOrder()))

	for _, category := range models.CategoryDisplayOrder() {
		var defs []models.NodeTypeDefinition

		for _, d := range c.definitions {
			if d.Category == category {
				defs = append(defs, d)
			}
		}

		if len(defs) > 0 {
			groups = append(groups, CategoryGroup{Category: category, Definitions: defs})
		}
	}

	return groups
}

// CategoryOf returns the category of nodeType, or CategoryUnresolved for unknown types.
func (c *Catalog) CategoryOf(nodeType string) models.Category {
	def, ok := c.Definition(nodeType)
	if !ok {
		return models.CategoryUnresolved
	}

	return def.Category
}

// LabelOf returns the type label, or the type key itself for unknown types.
func (c *Catalog) LabelOf(nodeType string) string {
	def, ok := c.Definition(nodeType)
	if !ok {
		return nodeType
	}

	return def.Label
}

// Rule returns the connection rule for nodeType. Types without an explicit
// entry get the permissive default.
func (c *Catalog) Rule(nodeType string) models.ConnectionRule {
	if rule, ok := c.rules[nodeType]; ok {
		return rule
	}

	return models.DefaultConnectionRule()
}

// ParameterValue reads a node parameter, falling back to the descriptor default.
func (c *Catalog) ParameterValue(node *models.GraphNode, paramID string) (models.ParamValue, bool) {
	return c.Resolve(node.Type, node.Parameters, paramID)
}

// Resolve looks paramID up in values and falls back to the default declared for nodeType.
func (c *Catalog) Resolve(nodeType string, values map[string]models.ParamValue, paramID string) (models.ParamValue, bool) {
	if v, ok := values[paramID]; ok && !v.IsZero() {
		return v, true
	}

	def, ok := c.Definition(nodeType)
	if !ok {
		return models.ParamValue{}, false
	}

	desc, ok := def.Parameter(paramID)
	if !ok || desc.Default == nil {
		return models.ParamValue{}, false
	}

	return *desc.Default, true
}

// Defaults returns every declared default of nodeType.
func (c *Catalog) Defaults(nodeType string) map[string]models.ParamValue {
	out := map[string]models.ParamValue{}

	def, ok := c.Definition(nodeType)
	if !ok {
		return out
	}

	for _, p := range def.Parameters {
		if p.Default != nil {
			out[p.ID] = *p.Default
		}
	}

	return out
}
