package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Generator converts Go parameter structs to schema trees.
//
// Fields are described with struct tags:
//
//	json:"name,omitempty"              property name; without omitempty the field is required
//	schema:"required,enum:a|b,min:1"   extra constraints
//	description:"..."                  human description
type Generator struct{}

// NewGenerator creates a new schema generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a schema tree from a Go struct (or pointer to struct)
func (g *Generator) Generate(v interface{}) (*Schema, error) {
	if v == nil {
		return Object(), nil
	}

	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct, got %s", t.Kind())
	}

	return g.generateObject(t), nil
}

// MustGenerate is Generate for parameter structs known at compile time
func (g *Generator) MustGenerate(v interface{}) *Schema {
	s, err := g.Generate(v)
	if err != nil {
		panic(err)
	}
	return s
}

func (g *Generator) generateObject(t reflect.Type) *Schema {
	obj := Object()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := getFieldName(field, jsonTag)
		if fieldName == "" {
			continue
		}

		schemaTag := field.Tag.Get("schema")
		required := strings.Contains(schemaTag, "required") || !strings.Contains(jsonTag, "omitempty")

		fieldSchema := g.generateFieldSchema(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			fieldSchema.Description = desc
		}
		g.parseSchemaTag(schemaTag, fieldSchema)

		obj.Property(fieldName, fieldSchema, required)
	}

	return obj
}

func (g *Generator) generateFieldSchema(t reflect.Type) *Schema {
	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: TypeString}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &Schema{Type: TypeInteger}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		zero := 0.0
		return &Schema{Type: TypeInteger, Minimum: &zero}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: TypeNumber}
	case reflect.Bool:
		return &Schema{Type: TypeBoolean}
	case reflect.Slice, reflect.Array:
		return &Schema{Type: TypeArray, Items: g.generateFieldSchema(t.Elem())}
	case reflect.Map:
		// Free-form objects; values are not constrained.
		return Object()
	case reflect.Struct:
		if t.String() == "time.Time" {
			return &Schema{Type: TypeString, Format: "date-time"}
		}
		return g.generateObject(t)
	case reflect.Ptr:
		return g.generateFieldSchema(t.Elem())
	default:
		return &Schema{Type: TypeString}
	}
}

func (g *Generator) parseSchemaTag(tag string, s *Schema) {
	if tag == "" {
		return
	}

	parts := strings.Split(tag, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)

		switch {
		case strings.HasPrefix(part, "enum:"):
			s.Enum = strings.Split(part[5:], "|")
		case strings.HasPrefix(part, "min:"):
			var min float64
			if err := json.Unmarshal([]byte(part[4:]), &min); err == nil {
				s.Minimum = &min
			}
		case strings.HasPrefix(part, "max:"):
			var max float64
			if err := json.Unmarshal([]byte(part[4:]), &max); err == nil {
				s.Maximum = &max
			}
		case strings.HasPrefix(part, "format:"):
			s.Format = part[7:]
		case strings.HasPrefix(part, "default:"):
			var def interface{}
			if err := json.Unmarshal([]byte(part[8:]), &def); err == nil {
				s.Default = def
			} else {
				s.Default = part[8:]
			}
		}
	}
}

func getFieldName(field reflect.StructField, jsonTag string) string {
	if jsonTag == "" {
		return field.Name
	}

	parts := strings.Split(jsonTag, ",")
	name := strings.TrimSpace(parts[0])

	if name == "" {
		return field.Name
	}

	return name
}
