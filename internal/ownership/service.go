package ownership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/query"
	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
)

// ErrUserNotFound is returned when a transfer names an unknown user
var ErrUserNotFound = errors.New("user not found")

// Service answers ownership questions and performs transfers
type Service struct {
	db       *database.Connection
	registry *schema.Registry
	engine   *records.Engine
}

// NewService creates an ownership service
func NewService(db *database.Connection, registry *schema.Registry, engine *records.Engine) *Service {
	return &Service{db: db, registry: registry, engine: engine}
}

// Check reads the record and reports whether the identity owns it
func (s *Service) Check(ctx context.Context, col *schema.Collection, recordID int64, ident Identity) (bool, error) {
	if !HasOwnerField(&col.Schema) {
		return false, ErrNoOwnerField
	}
	rec, err := s.engine.Get(ctx, col, recordID)
	if err != nil {
		return false, err
	}
	return IsOwner(&col.Schema, rec, ident), nil
}

// Transfer reassigns a record to another user. Only the current owner or an
// admin may transfer, and the collection must declare an id ownership field.
func (s *Service) Transfer(ctx context.Context, col *schema.Collection, recordID, newOwnerID int64, caller Identity) (records.Record, error) {
	var field *schema.FieldDefinition
	for _, name := range idFields {
		if f := col.Schema.Field(name); f != nil {
			field = f
			break
		}
	}
	if field == nil {
		return nil, ErrNoOwnerField
	}

	rec, err := s.engine.Get(ctx, col, recordID)
	if err != nil {
		return nil, err
	}
	if caller.Role != "admin" && !IsOwner(&col.Schema, rec, caller) {
		return nil, ErrNotOwner
	}

	var exists int
	err = s.db.DB().QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, newOwnerID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	updated, err := s.engine.Update(ctx, col, recordID,
		map[string]interface{}{field.Name: ownerValue(field, newOwnerID)}, &caller.UserID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("collection", col.Name).
		Int64("record_id", recordID).
		Int64("new_owner_id", newOwnerID).
		Int64("by_user_id", caller.UserID).
		Msg("Record ownership transferred")
	return updated, nil
}

// ListMine lists the records in a collection the identity owns, honoring the
// caller's extra sort/filter/search parameters.
func (s *Service) ListMine(ctx context.Context, col *schema.Collection, ident Identity, p query.Params) ([]records.Record, int64, error) {
	term, err := ownerFilterTerm(&col.Schema, ident)
	if err != nil {
		return nil, 0, err
	}
	if p.Filter == "" {
		p.Filter = term
	} else {
		p.Filter = p.Filter + "," + term
	}
	return s.engine.List(ctx, col, p)
}

// ListForUser lists the records owned by an arbitrary user, resolving the
// user's email and username for fallback collections.
func (s *Service) ListForUser(ctx context.Context, col *schema.Collection, userID int64, p query.Params) ([]records.Record, int64, error) {
	ident, err := s.identityFor(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return s.ListMine(ctx, col, ident, p)
}

// CollectionOwnedCount is the per-collection slice of ownership stats
type CollectionOwnedCount struct {
	Collection string `json:"collection"`
	Owned      int64  `json:"owned"`
}

// Stats counts the records a user owns in every collection that participates
// in ownership.
func (s *Service) Stats(ctx context.Context, userID int64) ([]CollectionOwnedCount, error) {
	ident, err := s.identityFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	cols, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := make([]CollectionOwnedCount, 0)
	for _, col := range cols {
		field := OwnerField(&col.Schema)
		if field == nil {
			continue
		}
		stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?",
			query.QuoteIdentifier(col.TableName()),
			query.QuoteIdentifier(field.Name))
		var count int64
		if err := s.db.DB().QueryRowContext(ctx, stmt, ownerMatchValue(field, ident)).Scan(&count); err != nil {
			return nil, err
		}
		stats = append(stats, CollectionOwnedCount{Collection: col.Name, Owned: count})
	}
	return stats, nil
}

// Identity resolves the full comparison identity for a user id
func (s *Service) Identity(ctx context.Context, userID int64) (Identity, error) {
	return s.identityFor(ctx, userID)
}

func (s *Service) identityFor(ctx context.Context, userID int64) (Identity, error) {
	var ident Identity
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT id, email, username, role FROM users WHERE id = ?`, userID).
		Scan(&ident.UserID, &ident.Email, &ident.Username, &ident.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, err
	}
	return ident, nil
}

// ownerFilterTerm renders the filter grammar term that selects the
// identity's records in this collection.
func ownerFilterTerm(s *schema.Schema, ident Identity) (string, error) {
	field := OwnerField(s)
	if field == nil {
		return "", ErrNoOwnerField
	}
	return fmt.Sprintf("%s:eq:%v", field.Name, ownerMatchValue(field, ident)), nil
}

// ownerMatchValue is the stored representation the owner field is compared to
func ownerMatchValue(f *schema.FieldDefinition, ident Identity) interface{} {
	switch f.Name {
	case "email":
		return ident.Email
	case "username":
		return ident.Username
	}
	if f.FieldType == schema.FieldNumber {
		return ident.UserID
	}
	return fmt.Sprintf("%d", ident.UserID)
}
