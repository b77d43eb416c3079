package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/nachoal/mini-agent-go/internal/schema"
)

// FieldError describes the first constraint an argument map violates
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("field '%s' %s", e.Field, e.Message)
}

// Validator checks decoded tool arguments against a schema tree
type Validator struct {
	// AllowUnknown keeps keys that the schema does not declare
	AllowUnknown bool
}

// New creates a new validator
func New() *Validator {
	return &Validator{AllowUnknown: true}
}

// Validate checks args against s. Unknown keys are ignored unless
// AllowUnknown is false.
func (v *Validator) Validate(s *schema.Schema, args map[string]interface{}) error {
	if s == nil {
		return nil
	}
	if s.Type != schema.TypeObject {
		return &FieldError{Message: fmt.Sprintf("parameters schema must be an object, got %s", s.Type)}
	}
	return v.validateObject("", s, args)
}

func (v *Validator) validateObject(path string, s *schema.Schema, obj map[string]interface{}) error {
	for _, name := range s.Required {
		val, ok := obj[name]
		if !ok || val == nil {
			return &FieldError{Field: join(path, name), Message: "is required"}
		}
	}

	if !v.AllowUnknown {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !s.HasProperty(k) {
				return &FieldError{Field: join(path, k), Message: "is not a known parameter"}
			}
		}
	}

	for _, name := range s.Order {
		val, ok := obj[name]
		if !ok || val == nil {
			continue
		}
		if err := v.validateValue(join(path, name), s.Properties[name], val); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateValue(path string, s *schema.Schema, val interface{}) error {
	if s == nil {
		return nil
	}

	switch s.Type {
	case schema.TypeString:
		str, ok := val.(string)
		if !ok {
			return typeError(path, s.Type, val)
		}
		if len(s.Enum) > 0 && !contains(s.Enum, str) {
			return &FieldError{Field: path, Message: "must be one of: " + strings.Join(s.Enum, ", ")}
		}
		if s.Minimum != nil && float64(len(str)) < *s.Minimum {
			return &FieldError{Field: path, Message: fmt.Sprintf("must be at least %g characters", *s.Minimum)}
		}
		if s.Maximum != nil && float64(len(str)) > *s.Maximum {
			return &FieldError{Field: path, Message: fmt.Sprintf("must be at most %g characters", *s.Maximum)}
		}

	case schema.TypeInteger, schema.TypeNumber:
		n, ok := toFloat(val)
		if !ok {
			return typeError(path, s.Type, val)
		}
		if s.Type == schema.TypeInteger && n != math.Trunc(n) {
			return &FieldError{Field: path, Message: "must be an integer"}
		}
		if s.Minimum != nil && n < *s.Minimum {
			return &FieldError{Field: path, Message: fmt.Sprintf("must be at least %g", *s.Minimum)}
		}
		if s.Maximum != nil && n > *s.Maximum {
			return &FieldError{Field: path, Message: fmt.Sprintf("must be at most %g", *s.Maximum)}
		}

	case schema.TypeBoolean:
		if _, ok := val.(bool); !ok {
			return typeError(path, s.Type, val)
		}

	case schema.TypeArray:
		items, ok := val.([]interface{})
		if !ok {
			if strs, isStrs := val.([]string); isStrs {
				items = make([]interface{}, len(strs))
				for i, str := range strs {
					items[i] = str
				}
			} else {
				return typeError(path, s.Type, val)
			}
		}
		for i, item := range items {
			if err := v.validateValue(fmt.Sprintf("%s[%d]", path, i), s.Items, item); err != nil {
				return err
			}
		}

	case schema.TypeObject:
		obj, ok := val.(map[string]interface{})
		if !ok {
			if strs, isStrs := val.(map[string]string); isStrs {
				obj = make(map[string]interface{}, len(strs))
				for k, str := range strs {
					obj[k] = str
				}
			} else {
				return typeError(path, s.Type, val)
			}
		}
		return v.validateObject(path, s, obj)
	}

	return nil
}

func typeError(path string, want schema.Type, got interface{}) error {
	return &FieldError{Field: path, Message: fmt.Sprintf("must be of type %s, got %s", want, kindOf(got))}
}

func kindOf(val interface{}) string {
	switch val.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float32, float64, int, int32, int64, json.Number:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", val)
	}
}

func toFloat(val interface{}) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// DefaultValidator is the default validator instance
var DefaultValidator = New()

// Validate validates args using the default validator
func Validate(s *schema.Schema, args map[string]interface{}) error {
	return DefaultValidator.Validate(s, args)
}
