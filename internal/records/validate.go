package records

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nexabase-io/nexabase/internal/schema"
)

const (
	maxRelationLength = 50
	maxFileLength     = 500
)

// ValidatePayload checks a write payload against the collection schema and
// returns the normalized column values ready for binding. Unknown payload
// fields are ignored. When partial is false (create), missing optional fields
// fall back to the declared default or NULL and missing required fields fail.
// Validation failures accumulate; configuration problems (a malformed pattern
// in the schema) are returned as plain errors instead.
func ValidatePayload(s *schema.Schema, payload map[string]interface{}, partial bool) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(s.Fields))
	verr := &payloadError{}

	for _, f := range s.Fields {
		raw, present := payload[f.Name]
		if !present || raw == nil {
			if partial {
				continue
			}
			if f.Required && f.Default == nil {
				verr.add("%s is required", f.Name)
				continue
			}
			if f.Default != nil {
				normalized, err := normalizeField(&f, f.Default, verr)
				if err != nil {
					return nil, err
				}
				values[f.Name] = normalized
			} else {
				values[f.Name] = nil
			}
			continue
		}

		normalized, err := normalizeField(&f, raw, verr)
		if err != nil {
			return nil, err
		}
		if len(verr.Messages) == 0 {
			values[f.Name] = normalized
		}
	}

	if len(verr.Messages) > 0 {
		return nil, &schema.ValidationError{Messages: verr.Messages}
	}
	return values, nil
}

type payloadError struct {
	Messages []string
}

func (e *payloadError) add(format string, args ...interface{}) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

// normalizeField type-checks one value and returns the database
// representation. A non-nil error is a schema configuration problem, not a
// value problem.
func normalizeField(f *schema.FieldDefinition, raw interface{}, verr *payloadError) (interface{}, error) {
	switch f.FieldType {
	case schema.FieldText:
		str, ok := raw.(string)
		if !ok {
			verr.add("%s must be a string", f.Name)
			return nil, nil
		}
		if err := checkTextRules(f, str, verr); err != nil {
			return nil, err
		}
		return str, nil

	case schema.FieldNumber:
		n, ok := toFloat(raw)
		if !ok {
			verr.add("%s must be a number", f.Name)
			return nil, nil
		}
		if v := f.Validation; v != nil {
			if v.MinValue != nil && n < *v.MinValue {
				verr.add("%s must be >= %v", f.Name, *v.MinValue)
			}
			if v.MaxValue != nil && n > *v.MaxValue {
				verr.add("%s must be <= %v", f.Name, *v.MaxValue)
			}
		}
		return n, nil

	case schema.FieldBoolean:
		b, ok := raw.(bool)
		if !ok {
			verr.add("%s must be a boolean", f.Name)
			return nil, nil
		}
		return b, nil

	case schema.FieldDate:
		str, ok := raw.(string)
		if !ok {
			verr.add("%s must be a YYYY-MM-DD date string", f.Name)
			return nil, nil
		}
		if _, err := time.Parse("2006-01-02", str); err != nil {
			verr.add("%s must be a valid YYYY-MM-DD date", f.Name)
			return nil, nil
		}
		return str, nil

	case schema.FieldEmail:
		str, ok := raw.(string)
		if !ok || !strings.Contains(str, "@") || !strings.Contains(str, ".") {
			verr.add("%s must be a valid email address", f.Name)
			return nil, nil
		}
		if err := checkTextRules(f, str, verr); err != nil {
			return nil, err
		}
		return str, nil

	case schema.FieldURL:
		str, ok := raw.(string)
		if !ok || !strings.Contains(str, ".") ||
			(!strings.HasPrefix(str, "http://") && !strings.HasPrefix(str, "https://")) {
			verr.add("%s must be a valid http(s) URL", f.Name)
			return nil, nil
		}
		if err := checkTextRules(f, str, verr); err != nil {
			return nil, err
		}
		return str, nil

	case schema.FieldJSON:
		serialized, err := json.Marshal(raw)
		if err != nil {
			verr.add("%s must be a JSON value", f.Name)
			return nil, nil
		}
		return string(serialized), nil

	case schema.FieldFile:
		str, ok := raw.(string)
		if !ok {
			verr.add("%s must be a file path or identifier", f.Name)
			return nil, nil
		}
		if len(str) > maxFileLength {
			verr.add("%s exceeds the maximum length of %d", f.Name, maxFileLength)
			return nil, nil
		}
		return str, nil

	case schema.FieldRelation:
		switch v := raw.(type) {
		case string:
			if len(v) > maxRelationLength {
				verr.add("%s exceeds the maximum length of %d", f.Name, maxRelationLength)
				return nil, nil
			}
			return v, nil
		case float64:
			return fmt.Sprintf("%d", int64(v)), nil
		case int:
			return fmt.Sprintf("%d", v), nil
		case int64:
			return fmt.Sprintf("%d", v), nil
		default:
			verr.add("%s must be a string or integer ID", f.Name)
			return nil, nil
		}

	default:
		return nil, fmt.Errorf("field %q has unsupported type %q", f.Name, f.FieldType)
	}
}

// checkTextRules applies min/max length, pattern, and enum constraints.
// A malformed pattern is a configuration error surfaced to the operator.
func checkTextRules(f *schema.FieldDefinition, str string, verr *payloadError) error {
	v := f.Validation
	if v == nil {
		return nil
	}
	if v.MinLength != nil && len(str) < *v.MinLength {
		verr.add("%s must be at least %d characters", f.Name, *v.MinLength)
	}
	if v.MaxLength != nil && len(str) > *v.MaxLength {
		verr.add("%s must be at most %d characters", f.Name, *v.MaxLength)
	}
	if v.Pattern != nil {
		re, err := regexp.Compile(*v.Pattern)
		if err != nil {
			return fmt.Errorf("field %q has an invalid validation pattern: %w", f.Name, err)
		}
		if !re.MatchString(str) {
			verr.add("%s does not match the required pattern", f.Name)
		}
	}
	if len(v.EnumValues) > 0 {
		found := false
		for _, allowed := range v.EnumValues {
			if str == allowed {
				found = true
				break
			}
		}
		if !found {
			verr.add("%s must be one of: %s", f.Name, strings.Join(v.EnumValues, ", "))
		}
	}
	return nil
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
