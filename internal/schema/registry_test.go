package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexabase-io/nexabase/internal/database"
)

func newTestRegistry(t *testing.T) (*Registry, *database.Connection) {
	t.Helper()
	db, err := database.NewMemoryConnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewRegistry(db), db
}

func articlesRequest() CreateRequest {
	return CreateRequest{
		Name: "articles",
		Schema: Schema{Fields: []FieldDefinition{
			{Name: "title", FieldType: FieldText, Required: true},
			{Name: "views", FieldType: FieldNumber},
		}},
	}
}

func TestRegistryCreate(t *testing.T) {
	r, db := newTestRegistry(t)
	ctx := context.Background()

	col, err := r.Create(ctx, articlesRequest())
	require.NoError(t, err)
	assert.Equal(t, "articles", col.Name)
	assert.False(t, col.IsSystem)
	require.Len(t, col.Schema.Fields, 2)

	// The backing table exists and accepts inserts.
	_, err = db.DB().Exec(`INSERT INTO "records_articles" (title, views) VALUES ('x', 1)`)
	require.NoError(t, err)

	got, err := r.Get(ctx, "articles")
	require.NoError(t, err)
	assert.Equal(t, col.ID, got.ID)
}

func TestRegistryCreateDuplicate(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, articlesRequest())
	require.NoError(t, err)

	_, err = r.Create(ctx, articlesRequest())
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRegistryCreateRejectsBadNames(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	req := articlesRequest()
	req.Name = "users"
	_, err := r.Create(ctx, req)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	req.Name = "bad-name"
	_, err = r.Create(ctx, req)
	assert.ErrorAs(t, err, &verr)
}

func TestRegistryGetNotFound(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryList(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, articlesRequest())
	require.NoError(t, err)
	req := articlesRequest()
	req.Name = "comments"
	_, err = r.Create(ctx, req)
	require.NoError(t, err)

	cols, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	// Ordered by name.
	assert.Equal(t, "articles", cols[0].Name)
	assert.Equal(t, "comments", cols[1].Name)
}

func TestRegistryUpdateAddsColumn(t *testing.T) {
	r, db := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, articlesRequest())
	require.NoError(t, err)

	next := articlesRequest().Schema
	next.Fields = append(next.Fields, FieldDefinition{Name: "summary", FieldType: FieldText})

	col, err := r.Update(ctx, "articles", UpdateRequest{Schema: &next})
	require.NoError(t, err)
	require.Len(t, col.Schema.Fields, 3)

	_, err = db.DB().Exec(`INSERT INTO "records_articles" (title, summary) VALUES ('x', 'y')`)
	require.NoError(t, err)
}

func TestRegistryUpdateAdditiveOnly(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, articlesRequest())
	require.NoError(t, err)

	var verr *ValidationError

	// Dropping a field.
	dropped := Schema{Fields: []FieldDefinition{{Name: "title", FieldType: FieldText}}}
	_, err = r.Update(ctx, "articles", UpdateRequest{Schema: &dropped})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "additive-only")

	// Retyping a field.
	retyped := articlesRequest().Schema
	retyped.Fields[1].FieldType = FieldText
	_, err = r.Update(ctx, "articles", UpdateRequest{Schema: &retyped})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "cannot change type")

	// New required field without a default.
	grown := articlesRequest().Schema
	grown.Fields = append(grown.Fields, FieldDefinition{Name: "slug", FieldType: FieldText, Required: true})
	_, err = r.Update(ctx, "articles", UpdateRequest{Schema: &grown})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "required without a default")
}

func TestRegistryUpdateMetadataOnly(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, articlesRequest())
	require.NoError(t, err)

	display := "Articles"
	col, err := r.Update(ctx, "articles", UpdateRequest{DisplayName: &display})
	require.NoError(t, err)
	require.NotNil(t, col.DisplayName)
	assert.Equal(t, "Articles", *col.DisplayName)
	// Schema untouched.
	assert.Len(t, col.Schema.Fields, 2)
}

func TestRegistryDelete(t *testing.T) {
	r, db := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, articlesRequest())
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "articles"))

	_, err = r.Get(ctx, "articles")
	assert.ErrorIs(t, err, ErrNotFound)

	// Backing table is gone.
	_, err = db.DB().Exec(`INSERT INTO "records_articles" (title) VALUES ('x')`)
	assert.Error(t, err)

	// No tombstone left behind after a clean drop.
	var count int64
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM collection_tombstones`).Scan(&count))
	assert.Zero(t, count)

	assert.ErrorIs(t, r.Delete(ctx, "articles"), ErrNotFound)
}

// A tombstone without backing objects simulates a crash after the tombstone
// write; the sweep finishes the drop.
func TestRegistrySweepTombstones(t *testing.T) {
	r, db := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, articlesRequest())
	require.NoError(t, err)
	_, err = db.DB().Exec(`INSERT INTO collection_tombstones (collection_name) VALUES ('articles')`)
	require.NoError(t, err)

	require.NoError(t, r.SweepTombstones(ctx))

	_, err = r.Get(ctx, "articles")
	assert.ErrorIs(t, err, ErrNotFound)
	var count int64
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM collection_tombstones`).Scan(&count))
	assert.Zero(t, count)

	// Sweeping with nothing pending is a no-op.
	require.NoError(t, r.SweepTombstones(ctx))
}
