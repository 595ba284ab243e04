package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// FieldType represents the declared type of a collection field
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldBoolean  FieldType = "boolean"
	FieldDate     FieldType = "date"
	FieldEmail    FieldType = "email"
	FieldURL      FieldType = "url"
	FieldJSON     FieldType = "json"
	FieldFile     FieldType = "file"
	FieldRelation FieldType = "relation"
)

// validFieldTypes is the closed set of declarable field types
var validFieldTypes = map[FieldType]bool{
	FieldText:     true,
	FieldNumber:   true,
	FieldBoolean:  true,
	FieldDate:     true,
	FieldEmail:    true,
	FieldURL:      true,
	FieldJSON:     true,
	FieldFile:     true,
	FieldRelation: true,
}

// ColumnType maps a field type to its physical SQLite column type
func (t FieldType) ColumnType() string {
	switch t {
	case FieldNumber:
		return "REAL"
	case FieldBoolean:
		return "BOOLEAN"
	case FieldDate:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// IsTextual reports whether values of this type are stored as strings
func (t FieldType) IsTextual() bool {
	switch t {
	case FieldText, FieldEmail, FieldURL, FieldJSON, FieldFile, FieldRelation, FieldDate:
		return true
	}
	return false
}

// ValidationRules holds the optional per-field validation constraints
type ValidationRules struct {
	MinLength  *int     `json:"min_length,omitempty"`
	MaxLength  *int     `json:"max_length,omitempty"`
	MinValue   *float64 `json:"min_value,omitempty"`
	MaxValue   *float64 `json:"max_value,omitempty"`
	Pattern    *string  `json:"pattern,omitempty"`
	EnumValues []string `json:"enum_values,omitempty"`
}

// FieldDefinition describes a single declared field of a collection
type FieldDefinition struct {
	Name       string           `json:"name"`
	FieldType  FieldType        `json:"field_type"`
	Required   bool             `json:"required"`
	Default    interface{}      `json:"default,omitempty"`
	Validation *ValidationRules `json:"validation,omitempty"`
}

// Schema is the ordered list of field definitions backing a collection
type Schema struct {
	Fields []FieldDefinition `json:"fields"`
}

// Field returns the definition for name, or nil when not declared
func (s *Schema) Field(name string) *FieldDefinition {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// FieldNames returns the declared field names in schema order
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// HasField reports whether name is a declared field
func (s *Schema) HasField(name string) bool {
	return s.Field(name) != nil
}

// Collection is the metadata row describing a user-defined record table
type Collection struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName *string   `json:"display_name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Schema      Schema    `json:"schema"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the physical backing table for the collection
func (c *Collection) TableName() string {
	return "records_" + c.Name
}

// SystemFields are always present on a backing table and always sortable
var SystemFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

var (
	nameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{1,50}$`)

	// reservedNames cannot be used as collection names
	reservedNames = map[string]bool{
		"users":  true,
		"auth":   true,
		"admin":  true,
		"api":    true,
		"system": true,
	}
)

// ValidationError accumulates schema validation failures
type ValidationError struct {
	Messages []string `json:"messages"`
}

func (e *ValidationError) Error() string {
	b, _ := json.Marshal(e.Messages)
	return "validation failed: " + string(b)
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Messages) == 0 {
		return nil
	}
	return e
}

// ValidateName checks a collection name against the naming rules
func ValidateName(name string) error {
	verr := &ValidationError{}
	if !nameRegex.MatchString(name) {
		verr.add("collection name %q must match [A-Za-z0-9_]{1,50}", name)
	}
	if reservedNames[name] {
		verr.add("collection name %q is reserved", name)
	}
	return verr.orNil()
}

// Validate checks the schema definition: field names, types, and uniqueness
func (s *Schema) Validate() error {
	verr := &ValidationError{}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if !nameRegex.MatchString(f.Name) {
			verr.add("field name %q must match [A-Za-z0-9_]{1,50}", f.Name)
			continue
		}
		if SystemFields[f.Name] {
			verr.add("field name %q collides with a system field", f.Name)
		}
		if seen[f.Name] {
			verr.add("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
		if !validFieldTypes[f.FieldType] {
			verr.add("field %q has unknown type %q", f.Name, f.FieldType)
		}
	}
	return verr.orNil()
}
