// Package ownership decides which user a record belongs to. Ownership is a
// schema convention, not a table: a collection that declares an owner_id or
// author_id field (or an email/username field as a fallback) opts in.
package ownership

import (
	"errors"
	"strconv"
	"strings"

	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
)

var (
	// ErrNoOwnerField is returned when the collection declares no field the
	// ownership convention recognizes.
	ErrNoOwnerField = errors.New("collection has no ownership field")
	// ErrNotOwner is returned when the caller does not own the record
	ErrNotOwner = errors.New("caller does not own this record")
)

// idFields are checked first, in order; they hold the owning user's id.
var idFields = []string{"owner_id", "author_id"}

// fallbackFields map a declared field name to the identity attribute it is
// compared against when no id field is declared.
var fallbackFields = []string{"email", "username"}

// Identity is the caller attributes ownership predicates compare against
type Identity struct {
	UserID   int64
	Email    string
	Username string
	Role     string
}

// OwnerField returns the first declared field the convention recognizes,
// preferring id fields over the email/username fallback.
func OwnerField(s *schema.Schema) *schema.FieldDefinition {
	for _, name := range idFields {
		if f := s.Field(name); f != nil {
			return f
		}
	}
	for _, name := range fallbackFields {
		if f := s.Field(name); f != nil {
			return f
		}
	}
	return nil
}

// HasOwnerField reports whether the collection participates in ownership
func HasOwnerField(s *schema.Schema) bool {
	return OwnerField(s) != nil
}

// IsOwner reports whether the record belongs to the identity. Any declared id
// field that matches grants ownership; when id fields are declared but none
// match, the email/username fallback does not rescue. Id fields compare
// numerically with tolerance for decimal strings; email compares
// case-insensitively, username exactly.
func IsOwner(s *schema.Schema, rec records.Record, ident Identity) bool {
	idDeclared := false
	for _, name := range idFields {
		if s.Field(name) == nil {
			continue
		}
		idDeclared = true
		if matchesID(rec[name], ident.UserID) {
			return true
		}
	}
	if idDeclared {
		return false
	}
	for _, name := range fallbackFields {
		if s.Field(name) == nil {
			continue
		}
		raw, ok := rec[name].(string)
		if !ok {
			return false
		}
		if name == "email" {
			return strings.EqualFold(raw, ident.Email)
		}
		return raw == ident.Username
	}
	return false
}

// matchesID compares a stored owner value against a user id. Stored values
// arrive as int64, float64, or string depending on the field type.
func matchesID(value interface{}, userID int64) bool {
	switch v := value.(type) {
	case int64:
		return v == userID
	case float64:
		return v == float64(userID)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return false
		}
		return n == float64(userID)
	}
	return false
}

// ownerValue renders a user id in the representation the owner field stores
func ownerValue(f *schema.FieldDefinition, userID int64) interface{} {
	if f.FieldType == schema.FieldNumber {
		return float64(userID)
	}
	return strconv.FormatInt(userID, 10)
}
