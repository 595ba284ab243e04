package records

import (
	"math"
	"time"

	"github.com/nexabase-io/nexabase/internal/schema"
)

// projectValue converts a scanned database value into its JSON representation
// per the declared field type: numbers become integers when integral, BOOLEAN
// columns become bools, timestamps are RFC 3339 strings, everything textual
// passes through as a string.
func projectValue(f *schema.FieldDefinition, raw interface{}) interface{} {
	if raw == nil {
		return nil
	}

	switch f.FieldType {
	case schema.FieldNumber:
		if n, ok := asFloat(raw); ok {
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return int64(n)
			}
			return n
		}
		return raw

	case schema.FieldBoolean:
		switch v := raw.(type) {
		case bool:
			return v
		case int64:
			return v != 0
		}
		return raw

	default:
		switch v := raw.(type) {
		case []byte:
			return string(v)
		case time.Time:
			return v.Format("2006-01-02")
		}
		return raw
	}
}

// projectTimestamp renders a system timestamp column
func projectTimestamp(raw interface{}) interface{} {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case []byte:
		return string(v)
	}
	return raw
}

func asFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// project builds a Record from one scanned row. Column order is
// id, declared fields in schema order, created_at, updated_at.
func project(s *schema.Schema, scanned []interface{}) Record {
	rec := make(Record, len(s.Fields)+3)
	rec["id"] = scanned[0]
	for i := range s.Fields {
		f := &s.Fields[i]
		rec[f.Name] = projectValue(f, scanned[i+1])
	}
	rec["created_at"] = projectTimestamp(scanned[len(s.Fields)+1])
	rec["updated_at"] = projectTimestamp(scanned[len(s.Fields)+2])
	return rec
}
