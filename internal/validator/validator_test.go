package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/mini-agent-go/internal/schema"
)

type writeParams struct {
	Path    string `json:"path" description:"file path"`
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty" schema:"enum:create|overwrite|append"`
	Limit   int    `json:"limit,omitempty" schema:"min:1,max:10"`
}

func writeSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewGenerator().Generate(writeParams{})
	require.NoError(t, err)
	return s
}

func TestValidateAcceptsValidArgs(t *testing.T) {
	s := writeSchema(t)
	err := Validate(s, map[string]interface{}{
		"path":    "a.txt",
		"content": "hi",
		"mode":    "append",
		"limit":   float64(3),
		"extra":   true,
	})
	assert.NoError(t, err)
}

func TestValidateRejects(t *testing.T) {
	s := writeSchema(t)

	cases := []struct {
		name  string
		args  map[string]interface{}
		field string
	}{
		{"missing required", map[string]interface{}{"content": "x"}, "path"},
		{"wrong type", map[string]interface{}{"path": 7.0, "content": "x"}, "path"},
		{"bad enum", map[string]interface{}{"path": "a", "content": "x", "mode": "delete"}, "mode"},
		{"not integer", map[string]interface{}{"path": "a", "content": "x", "limit": 1.5}, "limit"},
		{"above max", map[string]interface{}{"path": "a", "content": "x", "limit": 11.0}, "limit"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(s, tc.args)
			require.Error(t, err)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.field, fe.Field)
		})
	}
}

func TestValidateNested(t *testing.T) {
	s := schema.Object().
		Property("env", schema.Object().Property("HOME", &schema.Schema{Type: schema.TypeString}, false), false).
		Property("tags", &schema.Schema{Type: schema.TypeArray, Items: &schema.Schema{Type: schema.TypeString}}, false)

	assert.NoError(t, Validate(s, map[string]interface{}{
		"env":  map[string]interface{}{"HOME": "/tmp"},
		"tags": []interface{}{"a", "b"},
	}))

	err := Validate(s, map[string]interface{}{"tags": []interface{}{"a", 1.0}})
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "tags[1]", fe.Field)
}

func TestValidateStrictUnknown(t *testing.T) {
	v := &Validator{AllowUnknown: false}
	err := v.Validate(writeSchema(t), map[string]interface{}{"path": "a", "content": "b", "bogus": 1.0})
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "bogus", fe.Field)
}
