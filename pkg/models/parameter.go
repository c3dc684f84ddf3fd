package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParameterKind is the declared form-field kind of a node parameter.
type ParameterKind string

const (
	KindText     ParameterKind = "text"     // short text
	KindTextarea ParameterKind = "textarea" // long text
	KindNumber   ParameterKind = "number"
	KindSelect   ParameterKind = "select" // single select
	KindBoolean  ParameterKind = "boolean"
	KindPassword ParameterKind = "password" // masked text
	KindFile     ParameterKind = "file"     // file reference
)

var (
	ErrParameterKind     = errors.New("value does not match parameter kind")
	ErrParameterOption   = errors.New("value is not one of the allowed options")
	ErrParameterRequired = errors.New("parameter is required")
)

// ParameterError reports which parameter rejected a value.
type ParameterError struct {
	Param string
	Err   error
	Value any
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter %q: %v (got %v)", e.Param, e.Err, e.Value)
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

// Option is one value/label pair of a single-select parameter.
type Option struct {
	Value string `json:"value" yaml:"value" validate:"required"`
	Label string `json:"label" yaml:"label"`
}

// ParameterDescriptor describes one configurable parameter of a node type.
type ParameterDescriptor struct {
	ID          string        `json:"id"                    validate:"required"`
	Kind        ParameterKind `json:"kind"                  validate:"required,oneof=text textarea number select boolean password file"`
	Label       string        `json:"label"                 validate:"required"`
	Default     *ParamValue   `json:"default,omitempty"`
	Options     []Option      `json:"options,omitempty"     validate:"required_if=Kind select,dive"`
	Min         *float64      `json:"min,omitempty"`
	Max         *float64      `json:"max,omitempty"`
	Required    bool          `json:"required,omitempty"`
	Description string        `json:"description,omitempty"`
}

// ValueKind is the storage variant a parameter kind maps to.
func (k ParameterKind) ValueKind() ValueKind {
	switch k {
	case KindNumber:
		return ValueNumber
	case KindBoolean:
		return ValueBool
	case KindText, KindTextarea, KindSelect, KindPassword, KindFile:
		return ValueText
	default:
		return ValueNone
	}
}

// Representable reports whether v can be stored in a parameter described by d.
func (d ParameterDescriptor) Representable(v ParamValue) bool {
	if v.Kind() != d.Kind.ValueKind() {
		return false
	}

	switch d.Kind {
	case KindNumber:
		n := v.Number()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return false
		}

		return (d.Min == nil || n >= *d.Min) && (d.Max == nil || n <= *d.Max)
	case KindSelect:
		return d.hasOption(v.Text())
	default:
		return true
	}
}

// Coerce converts a raw form value into the descriptor's kind.
// Numbers are clamped into [Min, Max]; select values must be one of the options.
func (d ParameterDescriptor) Coerce(raw any) (ParamValue, error) {
	fail := func(err error) (ParamValue, error) {
		return ParamValue{}, &ParameterError{Param: d.ID, Err: err, Value: raw}
	}

	if pv, ok := raw.(ParamValue); ok {
		raw = pv.Interface()
	}

	switch d.Kind.ValueKind() {
	case ValueText:
		s, ok := raw.(string)
		if !ok {
			return fail(ErrParameterKind)
		}

		if d.Required && strings.TrimSpace(s) == "" {
			return fail(ErrParameterRequired)
		}

		if d.Kind == KindSelect && !d.hasOption(s) {
			return fail(ErrParameterOption)
		}

		return TextValue(s), nil
	case ValueNumber:
		n, ok := toFloat(raw)
		if !ok {
			if s, isString := raw.(string); isString && strings.TrimSpace(s) == "" && d.Required {
				return fail(ErrParameterRequired)
			}

			return fail(ErrParameterKind)
		}

		return NumberValue(d.clamp(n)), nil
	case ValueBool:
		switch b := raw.(type) {
		case bool:
			return BoolValue(b), nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return fail(ErrParameterKind)
			}

			return BoolValue(parsed), nil
		default:
			return fail(ErrParameterKind)
		}
	default:
		return fail(ErrParameterKind)
	}
}

func (d ParameterDescriptor) clamp(n float64) float64 {
	if d.Min != nil && n < *d.Min {
		n = *d.Min
	}

	if d.Max != nil && n > *d.Max {
		n = *d.Max
	}

	return n
}

func (d ParameterDescriptor) hasOption(value string) bool {
	if len(d.Options) == 0 {
		return true
	}

	for _, o := range d.Options {
		if o.Value == value {
			return true
		}
	}

	return false
}

func toFloat(raw any) (float64, bool) {
	var n float64

	switch v := raw.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case int32:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}

		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}

		n = f
	default:
		return 0, false
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}

	return n, true
}

// ValueKind tags which variant a ParamValue holds.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueText
	ValueNumber
	ValueBool
	// ValueRaw holds a saved value no parameter kind can represent, such as a
	// list or an object. It is kept verbatim so loading never fails on it.
	ValueRaw
)

func (k ValueKind) String() string {
	switch k {
	case ValueText:
		return "text"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "boolean"
	case ValueRaw:
		return "raw"
	default:
		return "none"
	}
}

// ParamValue is a typed parameter value. The zero value holds nothing.
// It encodes to JSON as the bare scalar so saved workflows stay plain JSON.
type ParamValue struct {
	kind    ValueKind
	text    string
	number  float64
	boolean bool
	raw     json.RawMessage
}

func TextValue(s string) ParamValue { return ParamValue{kind: ValueText, text: s} }

func NumberValue(n float64) ParamValue { return ParamValue{kind: ValueNumber, number: n} }

func BoolValue(b bool) ParamValue { return ParamValue{kind: ValueBool, boolean: b} }

func (v ParamValue) Kind() ValueKind { return v.kind }

func (v ParamValue) IsZero() bool { return v.kind == ValueNone }

func (v ParamValue) Text() string { return v.text }

func (v ParamValue) Number() float64 { return v.number }

func (v ParamValue) Bool() bool { return v.boolean }

// Raw returns the verbatim JSON of a ValueRaw value.
func (v ParamValue) Raw() json.RawMessage { return v.raw }

// RawValue wraps the JSON encoding of a value no parameter kind represents.
func RawValue(data json.RawMessage) ParamValue {
	return ParamValue{kind: ValueRaw, raw: append(json.RawMessage(nil), data...)}
}

// ValueOf wraps a decoded JSON/YAML value. Lists and objects become ValueRaw.
func ValueOf(raw any) (ParamValue, error) {
	switch v := raw.(type) {
	case nil:
		return ParamValue{}, nil
	case ParamValue:
		return v, nil
	case string:
		return TextValue(v), nil
	case bool:
		return BoolValue(v), nil
	case []any, map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return ParamValue{}, fmt.Errorf("%w: %v", ErrParameterKind, err)
		}

		return RawValue(data), nil
	default:
		n, ok := toFloat(raw)
		if !ok {
			return ParamValue{}, fmt.Errorf("%w: unsupported scalar %T", ErrParameterKind, raw)
		}

		return NumberValue(n), nil
	}
}

// Interface returns the value as a plain Go scalar (nil when empty).
func (v ParamValue) Interface() any {
	switch v.kind {
	case ValueText:
		return v.text
	case ValueNumber:
		return v.number
	case ValueBool:
		return v.boolean
	case ValueRaw:
		var out any
		if err := json.Unmarshal(v.raw, &out); err != nil {
			return nil
		}

		return out
	default:
		return nil
	}
}

func (v ParamValue) String() string {
	switch v.kind {
	case ValueText:
		return v.text
	case ValueNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.boolean)
	case ValueRaw:
		return string(v.raw)
	default:
		return ""
	}
}

func (v ParamValue) MarshalJSON() ([]byte, error) {
	if v.kind == ValueRaw {
		return v.raw, nil
	}

	return json.Marshal(v.Interface())
}

func (v *ParamValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.(type) {
	case []any, map[string]any:
		*v = RawValue(data)

		return nil
	}

	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}

	*v = parsed

	return nil
}

// ParamsToMap flattens typed parameters into plain values, e.g. for JSON Schema validation.
func ParamsToMap(params map[string]ParamValue) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v.Interface()
	}

	return out
}
