package records

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexabase-io/nexabase/internal/schema"
)

func ptrInt(v int) *int           { return &v }
func ptrFloat(v float64) *float64 { return &v }
func ptrStr(v string) *string     { return &v }

func articleSchema() *schema.Schema {
	return &schema.Schema{Fields: []schema.FieldDefinition{
		{Name: "title", FieldType: schema.FieldText, Required: true},
		{Name: "views", FieldType: schema.FieldNumber, Default: float64(0)},
		{Name: "published", FieldType: schema.FieldBoolean},
	}}
}

func TestValidatePayloadCreate(t *testing.T) {
	values, err := ValidatePayload(articleSchema(), map[string]interface{}{
		"title":     "Hello",
		"views":     3,
		"published": true,
		"junk":      "ignored",
	}, false)
	require.NoError(t, err)

	assert.Equal(t, "Hello", values["title"])
	assert.Equal(t, float64(3), values["views"])
	assert.Equal(t, true, values["published"])
	assert.NotContains(t, values, "junk")
}

func TestValidatePayloadDefaultsAndNulls(t *testing.T) {
	values, err := ValidatePayload(articleSchema(), map[string]interface{}{"title": "x"}, false)
	require.NoError(t, err)

	assert.Equal(t, float64(0), values["views"])
	// Optional field without a default becomes NULL.
	require.Contains(t, values, "published")
	assert.Nil(t, values["published"])
}

func TestValidatePayloadMissingRequired(t *testing.T) {
	_, err := ValidatePayload(articleSchema(), map[string]interface{}{}, false)

	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Messages, "title is required")
}

func TestValidatePayloadPartialSkipsMissing(t *testing.T) {
	values, err := ValidatePayload(articleSchema(), map[string]interface{}{"views": 7}, true)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"views": float64(7)}, values)
}

func TestValidatePayloadTypeChecks(t *testing.T) {
	tests := []struct {
		name  string
		field schema.FieldDefinition
		raw   interface{}
		bad   bool
	}{
		{"text ok", schema.FieldDefinition{Name: "f", FieldType: schema.FieldText}, "s", false},
		{"text not string", schema.FieldDefinition{Name: "f", FieldType: schema.FieldText}, 3, true},
		{"number not number", schema.FieldDefinition{Name: "f", FieldType: schema.FieldNumber}, "3", true},
		{"boolean not bool", schema.FieldDefinition{Name: "f", FieldType: schema.FieldBoolean}, "true", true},
		{"date ok", schema.FieldDefinition{Name: "f", FieldType: schema.FieldDate}, "2026-08-25", false},
		{"date bad format", schema.FieldDefinition{Name: "f", FieldType: schema.FieldDate}, "25/08/2026", true},
		{"email ok", schema.FieldDefinition{Name: "f", FieldType: schema.FieldEmail}, "a@example.com", false},
		{"email no at", schema.FieldDefinition{Name: "f", FieldType: schema.FieldEmail}, "example.com", true},
		{"url ok", schema.FieldDefinition{Name: "f", FieldType: schema.FieldURL}, "https://example.com", false},
		{"url no scheme", schema.FieldDefinition{Name: "f", FieldType: schema.FieldURL}, "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &schema.Schema{Fields: []schema.FieldDefinition{tt.field}}
			_, err := ValidatePayload(s, map[string]interface{}{"f": tt.raw}, true)
			if tt.bad {
				var verr *schema.ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePayloadJSONSerialized(t *testing.T) {
	s := &schema.Schema{Fields: []schema.FieldDefinition{
		{Name: "meta", FieldType: schema.FieldJSON},
	}}

	values, err := ValidatePayload(s, map[string]interface{}{
		"meta": map[string]interface{}{"a": float64(1)},
	}, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, values["meta"].(string))
}

func TestValidatePayloadRelationCoercion(t *testing.T) {
	s := &schema.Schema{Fields: []schema.FieldDefinition{
		{Name: "author", FieldType: schema.FieldRelation},
	}}

	values, err := ValidatePayload(s, map[string]interface{}{"author": float64(12)}, true)
	require.NoError(t, err)
	assert.Equal(t, "12", values["author"])

	_, err = ValidatePayload(s, map[string]interface{}{"author": true}, true)
	var verr *schema.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidatePayloadTextRules(t *testing.T) {
	s := &schema.Schema{Fields: []schema.FieldDefinition{
		{Name: "status", FieldType: schema.FieldText, Validation: &schema.ValidationRules{
			MinLength:  ptrInt(3),
			MaxLength:  ptrInt(10),
			EnumValues: []string{"draft", "published"},
		}},
	}}

	_, err := ValidatePayload(s, map[string]interface{}{"status": "draft"}, true)
	assert.NoError(t, err)

	_, err = ValidatePayload(s, map[string]interface{}{"status": "ok"}, true)
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	// Too short and not in the enum; both failures are reported.
	assert.Len(t, verr.Messages, 2)
}

// Length rules apply to url values the same way they do to text and email.
func TestValidatePayloadURLLengthRules(t *testing.T) {
	s := &schema.Schema{Fields: []schema.FieldDefinition{
		{Name: "homepage", FieldType: schema.FieldURL, Validation: &schema.ValidationRules{
			MaxLength: ptrInt(30),
		}},
	}}

	_, err := ValidatePayload(s, map[string]interface{}{"homepage": "https://example.com"}, true)
	assert.NoError(t, err)

	long := "https://example.com/" + strings.Repeat("a", 30)
	_, err = ValidatePayload(s, map[string]interface{}{"homepage": long}, true)
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Messages, "homepage must be at most 30 characters")
}

func TestValidatePayloadNumberRange(t *testing.T) {
	s := &schema.Schema{Fields: []schema.FieldDefinition{
		{Name: "score", FieldType: schema.FieldNumber, Validation: &schema.ValidationRules{
			MinValue: ptrFloat(0),
			MaxValue: ptrFloat(100),
		}},
	}}

	_, err := ValidatePayload(s, map[string]interface{}{"score": 50}, true)
	assert.NoError(t, err)

	_, err = ValidatePayload(s, map[string]interface{}{"score": 101}, true)
	var verr *schema.ValidationError
	assert.ErrorAs(t, err, &verr)
}

// A broken regexp in the schema is an operator problem, not a payload
// problem, and must not surface as a ValidationError.
func TestValidatePayloadBadPatternIsConfigError(t *testing.T) {
	s := &schema.Schema{Fields: []schema.FieldDefinition{
		{Name: "code", FieldType: schema.FieldText, Validation: &schema.ValidationRules{
			Pattern: ptrStr("[unclosed"),
		}},
	}}

	_, err := ValidatePayload(s, map[string]interface{}{"code": "abc"}, true)
	require.Error(t, err)
	var verr *schema.ValidationError
	assert.False(t, errors.As(err, &verr))
}
