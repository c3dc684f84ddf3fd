package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrUnknownNodeType = errors.New("unknown node type")

// ParameterSchema returns the JSON Schema describing the parameters of nodeType.
func (c *Catalog) ParameterSchema(nodeType string) (*models.JSONSchema, bool) {
	schema, ok := c.schemas[nodeType]

	return schema, ok
}

// ValidateParameters checks values against the parameter schema of nodeType.
// Absent values are filled from defaults before validation.
func (c *Catalog) ValidateParameters(nodeType string, values map[string]models.ParamValue) error {
	schema, ok := c.schemas[nodeType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	merged := c.Defaults(nodeType)
	for k, v := range values {
		if !v.IsZero() {
			merged[k] = v
		}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(models.ParamsToMap(merged)))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}

		return fmt.Errorf("parameter validation failed for %s: %s", nodeType, strings.Join(errs, "; "))
	}

	return nil
}

func buildSchema(def models.NodeTypeDefinition) *models.JSONSchema {
	schema := &models.JSONSchema{
		Schema:      "http://json-schema.org/draft-07/schema#",
		Type:        "object",
		Title:       def.Label,
		Description: def.Description,
		Properties:  make(map[string]*models.Property, len(def.Parameters)),
	}

	for _, p := range def.Parameters {
		prop := &models.Property{
			Title:       p.Label,
			Description: p.Description,
		}

		switch p.Kind.ValueKind() {
		case models.ValueNumber:
			prop.Type = "number"
			prop.Minimum = p.Min
			prop.Maximum = p.Max
		case models.ValueBool:
			prop.Type = "boolean"
		default:
			prop.Type = "string"
		}

		switch p.Kind {
		case models.KindSelect:
			for _, o := range p.Options {
				prop.Enum = append(prop.Enum, o.Value)
			}
		case models.KindPassword:
			prop.Format = "password"
			prop.WriteOnly = true
		case models.KindTextarea:
			prop.Format = "textarea"
		case models.KindFile:
			prop.Format = "file"
		}

		if p.Default != nil {
			prop.Default = p.Default.Interface()
		}

		if p.Required {
			schema.Required = append(schema.Required, p.ID)

			if prop.Type == "string" {
				one := 1
				prop.MinLength = &one
			}
		}

		schema.Properties[p.ID] = prop
	}

	return schema
}
