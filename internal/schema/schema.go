package schema

import (
	"encoding/json"
)

// Type is a JSON schema primitive type
type Type string

const (
	TypeObject  Type = "object"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
)

// Schema is a small typed JSON schema tree. Tools describe their
// parameters with it and the validator and provider adapters walk it.
type Schema struct {
	Type        Type
	Description string

	// Object
	Properties map[string]*Schema
	Order      []string
	Required   []string

	// Array
	Items *Schema

	// Scalars
	Enum    []string
	Minimum *float64
	Maximum *float64
	Default interface{}
	Format  string
}

// Object creates an empty object schema
func Object() *Schema {
	return &Schema{
		Type:       TypeObject,
		Properties: make(map[string]*Schema),
	}
}

// Property adds a property to an object schema, keeping declaration order
func (s *Schema) Property(name string, prop *Schema, required bool) *Schema {
	if s.Properties == nil {
		s.Properties = make(map[string]*Schema)
	}
	if _, exists := s.Properties[name]; !exists {
		s.Order = append(s.Order, name)
	}
	s.Properties[name] = prop
	if required && !s.IsRequired(name) {
		s.Required = append(s.Required, name)
	}
	return s
}

// IsRequired reports whether name is a required property
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// HasProperty reports whether the object declares the named property
func (s *Schema) HasProperty(name string) bool {
	if s == nil || s.Properties == nil {
		return false
	}
	_, ok := s.Properties[name]
	return ok
}

// Map renders the schema as a JSON-schema document
func (s *Schema) Map() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": string(TypeObject), "properties": map[string]interface{}{}}
	}

	out := map[string]interface{}{
		"type": string(s.Type),
	}
	if s.Description != "" {
		out["description"] = s.Description
	}

	switch s.Type {
	case TypeObject:
		props := make(map[string]interface{}, len(s.Properties))
		for _, name := range s.Order {
			props[name] = s.Properties[name].Map()
		}
		out["properties"] = props
		if len(s.Required) > 0 {
			required := make([]string, len(s.Required))
			copy(required, s.Required)
			out["required"] = required
		}
	case TypeArray:
		if s.Items != nil {
			out["items"] = s.Items.Map()
		}
	}

	if len(s.Enum) > 0 {
		enum := make([]string, len(s.Enum))
		copy(enum, s.Enum)
		out["enum"] = enum
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	if s.Default != nil {
		out["default"] = s.Default
	}
	if s.Format != "" {
		out["format"] = s.Format
	}

	return out
}

// MarshalJSON implements json.Marshaler
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}
