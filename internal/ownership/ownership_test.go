package ownership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
)

func schemaWith(names ...string) *schema.Schema {
	s := &schema.Schema{}
	for _, name := range names {
		ft := schema.FieldText
		if name == "owner_id" || name == "author_id" {
			ft = schema.FieldNumber
		}
		s.Fields = append(s.Fields, schema.FieldDefinition{Name: name, FieldType: ft})
	}
	return s
}

func TestOwnerFieldPrecedence(t *testing.T) {
	s := schemaWith("email", "owner_id", "author_id")
	f := OwnerField(s)
	require.NotNil(t, f)
	assert.Equal(t, "owner_id", f.Name)

	s = schemaWith("username", "email")
	f = OwnerField(s)
	require.NotNil(t, f)
	assert.Equal(t, "email", f.Name)

	assert.Nil(t, OwnerField(schemaWith("title", "body")))
	assert.False(t, HasOwnerField(schemaWith("title")))
}

func TestIsOwnerByID(t *testing.T) {
	s := schemaWith("owner_id", "title")
	ident := Identity{UserID: 7}

	assert.True(t, IsOwner(s, records.Record{"owner_id": int64(7)}, ident))
	assert.True(t, IsOwner(s, records.Record{"owner_id": float64(7)}, ident))
	assert.True(t, IsOwner(s, records.Record{"owner_id": "7"}, ident))
	assert.True(t, IsOwner(s, records.Record{"owner_id": "7.0"}, ident))
	assert.False(t, IsOwner(s, records.Record{"owner_id": int64(8)}, ident))
	assert.False(t, IsOwner(s, records.Record{"owner_id": nil}, ident))
	assert.False(t, IsOwner(s, records.Record{}, ident))
}

// A matching fallback field does not rescue a mismatched id field.
func TestIsOwnerIDFieldDecides(t *testing.T) {
	s := schemaWith("owner_id", "email")
	ident := Identity{UserID: 7, Email: "a@example.com"}

	rec := records.Record{"owner_id": int64(9), "email": "a@example.com"}
	assert.False(t, IsOwner(s, rec, ident))
}

// Ownership holds when any declared id field matches; a mismatched owner_id
// does not shadow a matching author_id.
func TestIsOwnerAnyIDFieldMatches(t *testing.T) {
	s := schemaWith("owner_id", "author_id")
	ident := Identity{UserID: 7}

	assert.True(t, IsOwner(s, records.Record{"owner_id": int64(9), "author_id": int64(7)}, ident))
	assert.True(t, IsOwner(s, records.Record{"owner_id": nil, "author_id": int64(7)}, ident))
	assert.False(t, IsOwner(s, records.Record{"owner_id": int64(9), "author_id": int64(8)}, ident))
}

func TestIsOwnerByEmailFold(t *testing.T) {
	s := schemaWith("email")
	ident := Identity{UserID: 7, Email: "A@Example.com"}

	assert.True(t, IsOwner(s, records.Record{"email": "a@example.COM"}, ident))
	assert.False(t, IsOwner(s, records.Record{"email": "b@example.com"}, ident))
	assert.False(t, IsOwner(s, records.Record{"email": 42}, ident))
}

func TestIsOwnerByUsernameExact(t *testing.T) {
	s := schemaWith("username")
	ident := Identity{UserID: 7, Username: "Alice"}

	assert.True(t, IsOwner(s, records.Record{"username": "Alice"}, ident))
	assert.False(t, IsOwner(s, records.Record{"username": "alice"}, ident))
}

func TestOwnerValueRepresentation(t *testing.T) {
	num := &schema.FieldDefinition{Name: "owner_id", FieldType: schema.FieldNumber}
	assert.Equal(t, float64(7), ownerValue(num, 7))

	text := &schema.FieldDefinition{Name: "owner_id", FieldType: schema.FieldText}
	assert.Equal(t, "7", ownerValue(text, 7))
}

func TestOwnerFilterTerm(t *testing.T) {
	term, err := ownerFilterTerm(schemaWith("owner_id"), Identity{UserID: 7})
	require.NoError(t, err)
	assert.Equal(t, "owner_id:eq:7", term)

	term, err = ownerFilterTerm(schemaWith("email"), Identity{Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "email:eq:a@example.com", term)

	_, err = ownerFilterTerm(schemaWith("title"), Identity{UserID: 7})
	assert.ErrorIs(t, err, ErrNoOwnerField)
}
