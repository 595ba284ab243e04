package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexabase-io/nexabase/internal/database"
)

func newTestRepo(t *testing.T) (*Repository, *database.Connection) {
	t.Helper()
	db, err := database.NewMemoryConnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewRepository(db), db
}

func seedCollection(t *testing.T, db *database.Connection, name string) int64 {
	t.Helper()
	res, err := db.DB().Exec(
		`INSERT INTO collections (name, schema_json) VALUES (?, '{"fields":[]}')`, name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func seedUser(t *testing.T, db *database.Connection, email string) int64 {
	t.Helper()
	res, err := db.DB().Exec(
		`INSERT INTO users (email, username, password_hash) VALUES (?, ?, 'x')`,
		email, email)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestResolveCollectionAdminBypass(t *testing.T) {
	repo, _ := newTestRepo(t)
	resolver := NewResolver(repo)

	set, err := resolver.ResolveCollection(context.Background(), 1, AdminRole, 999)
	require.NoError(t, err)
	assert.Equal(t, All(), set)
}

func TestResolveCollectionDefaultDeny(t *testing.T) {
	repo, db := newTestRepo(t)
	resolver := NewResolver(repo)
	colID := seedCollection(t, db, "articles")
	userID := seedUser(t, db, "a@example.com")

	set, err := resolver.ResolveCollection(context.Background(), userID, "user", colID)
	require.NoError(t, err)
	assert.Equal(t, None(), set)
}

func TestResolveCollectionRoleDefault(t *testing.T) {
	repo, db := newTestRepo(t)
	resolver := NewResolver(repo)
	ctx := context.Background()
	colID := seedCollection(t, db, "articles")
	userID := seedUser(t, db, "a@example.com")

	role, err := repo.GetRole(ctx, "user")
	require.NoError(t, err)
	require.NoError(t, repo.SetCollectionPermission(ctx, colID, role.ID,
		PermissionSet{Read: true, List: true}))

	set, err := resolver.ResolveCollection(ctx, userID, "user", colID)
	require.NoError(t, err)
	assert.True(t, set.Read)
	assert.True(t, set.List)
	assert.False(t, set.Create)
}

func TestResolveCollectionUserOverride(t *testing.T) {
	repo, db := newTestRepo(t)
	resolver := NewResolver(repo)
	ctx := context.Background()
	colID := seedCollection(t, db, "articles")
	userID := seedUser(t, db, "a@example.com")

	role, err := repo.GetRole(ctx, "user")
	require.NoError(t, err)
	require.NoError(t, repo.SetCollectionPermission(ctx, colID, role.ID,
		PermissionSet{Read: true, List: true}))
	// Revoke read, grant create; list falls through to the role default.
	require.NoError(t, repo.SetUserOverride(ctx, userID, colID,
		OverrideSet{Read: TriFalse, Create: TriTrue}))

	set, err := resolver.ResolveCollection(ctx, userID, "user", colID)
	require.NoError(t, err)
	assert.False(t, set.Read)
	assert.True(t, set.Create)
	assert.True(t, set.List)
}

func TestResolveCollectionUnknownRole(t *testing.T) {
	repo, db := newTestRepo(t)
	resolver := NewResolver(repo)
	colID := seedCollection(t, db, "articles")
	userID := seedUser(t, db, "a@example.com")

	set, err := resolver.ResolveCollection(context.Background(), userID, "ghost", colID)
	require.NoError(t, err)
	assert.Equal(t, None(), set)
}

func TestResolveRecordFlagWins(t *testing.T) {
	repo, db := newTestRepo(t)
	resolver := NewResolver(repo)
	ctx := context.Background()
	colID := seedCollection(t, db, "articles")
	userID := seedUser(t, db, "a@example.com")

	role, err := repo.GetRole(ctx, "user")
	require.NoError(t, err)
	require.NoError(t, repo.SetCollectionPermission(ctx, colID, role.ID,
		PermissionSet{Read: true, Update: true}))
	// Record-level: deny update, leave read unset.
	require.NoError(t, repo.SetRecordPermission(ctx, colID, 7, userID,
		TriUnset, TriFalse, TriUnset))

	allowed, err := resolver.ResolveRecord(ctx, userID, "user", colID, 7, ActionUpdate)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Unset falls through to the collection-scope answer.
	allowed, err = resolver.ResolveRecord(ctx, userID, "user", colID, 7, ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestResolveRecordNoOverrideRow(t *testing.T) {
	repo, db := newTestRepo(t)
	resolver := NewResolver(repo)
	ctx := context.Background()
	colID := seedCollection(t, db, "articles")
	userID := seedUser(t, db, "a@example.com")

	allowed, err := resolver.ResolveRecord(ctx, userID, "user", colID, 1, ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestResolveRecordGrantWithoutCollectionAccess(t *testing.T) {
	repo, db := newTestRepo(t)
	resolver := NewResolver(repo)
	ctx := context.Background()
	colID := seedCollection(t, db, "articles")
	userID := seedUser(t, db, "a@example.com")

	require.NoError(t, repo.SetRecordPermission(ctx, colID, 3, userID,
		TriTrue, TriUnset, TriUnset))

	allowed, err := resolver.ResolveRecord(ctx, userID, "user", colID, 3, ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAccessibleCollections(t *testing.T) {
	repo, db := newTestRepo(t)
	resolver := NewResolver(repo)
	ctx := context.Background()

	colA := seedCollection(t, db, "articles")
	colB := seedCollection(t, db, "drafts")
	seedCollection(t, db, "hidden")
	userID := seedUser(t, db, "a@example.com")

	role, err := repo.GetRole(ctx, "user")
	require.NoError(t, err)
	require.NoError(t, repo.SetCollectionPermission(ctx, colA, role.ID, PermissionSet{List: true}))
	require.NoError(t, repo.SetUserOverride(ctx, userID, colB, OverrideSet{Read: TriTrue}))

	ids, all, err := resolver.AccessibleCollections(ctx, userID, "user")
	require.NoError(t, err)
	assert.False(t, all)
	assert.ElementsMatch(t, []int64{colA, colB}, ids)

	ids, all, err = resolver.AccessibleCollections(ctx, 1, AdminRole)
	require.NoError(t, err)
	assert.True(t, all)
	assert.Nil(t, ids)
}

func TestRoleCRUD(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	desc := "content editors"
	role, err := repo.CreateRole(ctx, "editor", 50, &desc)
	require.NoError(t, err)
	assert.Equal(t, "editor", role.Name)
	assert.Equal(t, 50, role.Priority)

	_, err = repo.CreateRole(ctx, "editor", 50, nil)
	assert.ErrorIs(t, err, ErrRoleExists)

	updated, err := repo.UpdateRole(ctx, "editor", 60, nil)
	require.NoError(t, err)
	assert.Equal(t, 60, updated.Priority)

	assert.ErrorIs(t, repo.DeleteRole(ctx, "admin"), ErrBuiltinRole)
	assert.ErrorIs(t, repo.DeleteRole(ctx, "user"), ErrBuiltinRole)
	require.NoError(t, repo.DeleteRole(ctx, "editor"))
	assert.ErrorIs(t, repo.DeleteRole(ctx, "editor"), ErrRoleNotFound)
}
