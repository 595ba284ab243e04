package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("articles"))
	assert.NoError(t, ValidateName("My_Collection_2"))

	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("has-dash"))
	assert.Error(t, ValidateName("has space"))
	assert.Error(t, ValidateName(strings.Repeat("a", 51)))

	for _, reserved := range []string{"users", "auth", "admin", "api", "system"} {
		assert.Error(t, ValidateName(reserved), reserved)
	}
}

func TestSchemaValidate(t *testing.T) {
	ok := Schema{Fields: []FieldDefinition{
		{Name: "title", FieldType: FieldText},
		{Name: "views", FieldType: FieldNumber},
	}}
	assert.NoError(t, ok.Validate())

	tests := []struct {
		name   string
		schema Schema
		msg    string
	}{
		{
			"duplicate field",
			Schema{Fields: []FieldDefinition{
				{Name: "title", FieldType: FieldText},
				{Name: "title", FieldType: FieldText},
			}},
			"duplicate field",
		},
		{
			"system field collision",
			Schema{Fields: []FieldDefinition{{Name: "created_at", FieldType: FieldDate}}},
			"collides with a system field",
		},
		{
			"unknown type",
			Schema{Fields: []FieldDefinition{{Name: "f", FieldType: "uuid"}}},
			"unknown type",
		},
		{
			"bad field name",
			Schema{Fields: []FieldDefinition{{Name: "bad name", FieldType: FieldText}}},
			"must match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Error(), tt.msg)
		})
	}
}

func TestFieldLookups(t *testing.T) {
	s := Schema{Fields: []FieldDefinition{
		{Name: "title", FieldType: FieldText},
		{Name: "views", FieldType: FieldNumber},
	}}

	require.NotNil(t, s.Field("views"))
	assert.Equal(t, FieldNumber, s.Field("views").FieldType)
	assert.Nil(t, s.Field("missing"))
	assert.True(t, s.HasField("title"))
	assert.Equal(t, []string{"title", "views"}, s.FieldNames())
}

func TestColumnTypes(t *testing.T) {
	assert.Equal(t, "REAL", FieldNumber.ColumnType())
	assert.Equal(t, "BOOLEAN", FieldBoolean.ColumnType())
	assert.Equal(t, "TIMESTAMP", FieldDate.ColumnType())
	assert.Equal(t, "TEXT", FieldText.ColumnType())
	assert.Equal(t, "TEXT", FieldJSON.ColumnType())

	assert.True(t, FieldText.IsTextual())
	assert.True(t, FieldRelation.IsTextual())
	assert.False(t, FieldNumber.IsTextual())
	assert.False(t, FieldBoolean.IsTextual())
}
