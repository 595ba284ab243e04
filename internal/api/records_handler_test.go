package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/ownership"
	"github.com/nexabase-io/nexabase/internal/permissions"
	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
)

type recordsFixture struct {
	handler *RecordsHandler
	col     *schema.Collection
	rec     records.Record
	ownerID int64
	otherID int64
}

func newRecordsFixture(t *testing.T) *recordsFixture {
	t.Helper()
	db, err := database.NewMemoryConnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	ctx := context.Background()

	registry := schema.NewRegistry(db)
	col, err := registry.Create(ctx, schema.CreateRequest{
		Name: "notes",
		Schema: schema.Schema{Fields: []schema.FieldDefinition{
			{Name: "owner_id", FieldType: schema.FieldNumber},
			{Name: "body", FieldType: schema.FieldText},
		}},
	})
	require.NoError(t, err)

	seedUser := func(email, username string) int64 {
		res, err := db.DB().Exec(
			`INSERT INTO users (email, username, password_hash) VALUES (?, ?, 'x')`,
			email, username)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return id
	}
	ownerID := seedUser("owner@example.com", "owner")
	otherID := seedUser("other@example.com", "other")

	engine := records.NewEngine(db, nil)
	rec, err := engine.Create(ctx, col, map[string]interface{}{"body": "mine"}, &ownerID)
	require.NoError(t, err)

	resolver := permissions.NewResolver(permissions.NewRepository(db))
	handler := NewRecordsHandler(registry, engine, resolver, ownership.NewService(db, registry, engine))

	return &recordsFixture{handler: handler, col: col, rec: rec, ownerID: ownerID, otherID: otherID}
}

// authorizeAs runs the record authorization path inside a request context
// with the given caller attached.
func (f *recordsFixture) authorizeAs(t *testing.T, caller *middleware.Caller) (bool, error) {
	t.Helper()
	var (
		allowed bool
		authErr error
	)
	app := fiber.New()
	app.Get("/t", func(c *fiber.Ctx) error {
		if caller != nil {
			c.Locals("caller", caller)
		}
		allowed, authErr = f.handler.authorizeRecord(c, f.col, f.rec, permissions.ActionRead)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/t", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	return allowed, authErr
}

// With no permission rows at all, ownership alone grants the owner read
// access and leaves everyone else denied.
func TestAuthorizeRecordOwnershipOverlay(t *testing.T) {
	f := newRecordsFixture(t)

	allowed, err := f.authorizeAs(t, &middleware.Caller{UserID: f.ownerID, Role: "user"})
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = f.authorizeAs(t, &middleware.Caller{UserID: f.otherID, Role: "user"})
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = f.authorizeAs(t, nil)
	require.NoError(t, err)
	assert.False(t, allowed)
}

// A failure while loading the caller's identity is surfaced, not silently
// converted into a denial.
func TestAuthorizeRecordSurfacesIdentityError(t *testing.T) {
	f := newRecordsFixture(t)

	allowed, err := f.authorizeAs(t, &middleware.Caller{UserID: 9999, Role: "user"})
	assert.False(t, allowed)
	assert.ErrorIs(t, err, ownership.ErrUserNotFound)
}
