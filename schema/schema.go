// Package schema builds JSON Schemas for model outputs and tool parameters, and
// validates decoded data against them.
//
//	extraction := schema.Object(map[string]*schema.Property{
//	    "name":     schema.String("The chemical substance name"),
//	    "category": schema.String("Emission or resource category").Enum(labels...),
//	}, "name", "category")
//
//	s := schema.MustCompile(extraction)
//	args, err := s.Decode([]byte(toolCall.FunctionCall.Arguments))
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrNotObject is returned by Decode when the payload is valid JSON but not an object.
var ErrNotObject = errors.New("schema: payload is not a JSON object")

// Schema pairs the raw map representation (sent to models) with a compiled
// validator (run on their answers).
type Schema struct {
	raw      map[string]any
	compiled *jsonschema.Schema
}

// Raw returns the underlying map representation.
func (s *Schema) Raw() map[string]any {
	if s == nil {
		return nil
	}
	return s.raw
}

// Validate validates data against the schema. A nil Schema accepts everything.
func (s *Schema) Validate(data map[string]any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	// The compiled validator expects the generic JSON representation, so
	// round-trip typed values through encoding/json first.
	generic, err := toGeneric(data)
	if err != nil {
		return &ValidationError{Err: err}
	}
	if err := s.compiled.Validate(generic); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// Decode parses a JSON object and validates it. Numbers are decoded as float64,
// as encoding/json does.
func (s *Schema) Decode(payload []byte) (map[string]any, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	if err := s.Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func toGeneric(data map[string]any) (any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// ValidationError reports data that does not satisfy a schema.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "schema validation failed: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// resourceURL names the single resource each compiler holds.
const resourceURL = "flowmap://schema.json"

// Compile compiles raw into a validator. A nil map yields a nil Schema, which
// accepts everything.
func Compile(raw map[string]any) (*Schema, error) {
	if raw == nil {
		return nil, nil
	}
	doc, err := toGeneric(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: encode: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return &Schema{raw: raw, compiled: compiled}, nil
}

// MustCompile is Compile for package-level schemas; it panics on error.
func MustCompile(raw map[string]any) *Schema {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Object builds a closed object schema: properties not listed are rejected.
func Object(properties map[string]*Property, required ...string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, p := range properties {
		props[name] = p.Map()
	}
	out := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Property is a chainable builder for one property schema.
type Property struct {
	keywords map[string]any
}

func newProperty(typ, description string) *Property {
	p := &Property{keywords: map[string]any{"type": typ}}
	if description != "" {
		p.keywords["description"] = description
	}
	return p
}

func (p *Property) set(keyword string, v any) *Property {
	p.keywords[keyword] = v
	return p
}

// Map returns a copy of the property's keywords.
func (p *Property) Map() map[string]any {
	out := make(map[string]any, len(p.keywords))
	for k, v := range p.keywords {
		out[k] = v
	}
	return out
}

func String(description string) *Property  { return newProperty("string", description) }
func Integer(description string) *Property { return newProperty("integer", description) }

// Array builds an array property whose elements match items.
//
//	schema.Array("Synonyms", map[string]any{"type": "string"}).MaxItems(5)
func Array(description string, items map[string]any) *Property {
	return newProperty("array", description).set("items", items)
}

// Enum restricts the property to values. An empty list leaves it unrestricted.
func (p *Property) Enum(values ...any) *Property {
	if len(values) == 0 {
		return p
	}
	return p.set("enum", values)
}

func (p *Property) Min(v float64) *Property   { return p.set("minimum", v) }
func (p *Property) Max(v float64) *Property   { return p.set("maximum", v) }
func (p *Property) MinLength(n int) *Property { return p.set("minLength", n) }
func (p *Property) MinItems(n int) *Property  { return p.set("minItems", n) }
func (p *Property) MaxItems(n int) *Property  { return p.set("maxItems", n) }

// StringEnum converts values for Enum.
func StringEnum(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
