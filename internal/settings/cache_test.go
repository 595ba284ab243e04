package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexabase-io/nexabase/internal/database"
)

func newTestCache(t *testing.T) (*Cache, *database.Connection) {
	t.Helper()
	db, err := database.NewMemoryConnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	cache := NewCache(NewRepository(db))
	require.NoError(t, cache.Load(context.Background()))
	return cache, db
}

func TestLoadSeededSettings(t *testing.T) {
	cache, _ := newTestCache(t)

	s, ok := cache.Get("auth", "max_login_attempts")
	require.True(t, ok)
	assert.Equal(t, TypeInteger, s.DataType)

	assert.NotEmpty(t, cache.List("auth"))
	assert.Empty(t, cache.List("no_such_category"))
}

func TestTypedAccessors(t *testing.T) {
	cache, _ := newTestCache(t)

	assert.Equal(t, 5, cache.Int("auth", "max_login_attempts", 99))
	assert.Equal(t, 0.25, cache.Float("auth", "jwt_lifetime_hours", 1))
	assert.Equal(t, false, cache.Bool("database", "backup_enabled", true))
	assert.Equal(t, "0 3 * * *", cache.String("database", "backup_schedule", "x"))

	var origins []string
	require.True(t, cache.JSON("api", "cors_allowed_origins", &origins))
	assert.Equal(t, []string{"*"}, origins)

	// Unknown keys fall back.
	assert.Equal(t, 42, cache.Int("auth", "missing", 42))
	assert.Equal(t, "fb", cache.String("nope", "missing", "fb"))
}

func TestSetWritesThrough(t *testing.T) {
	cache, db := newTestCache(t)
	ctx := context.Background()

	v := "9"
	s, err := cache.Set(ctx, "auth", "max_login_attempts", &v)
	require.NoError(t, err)
	require.NotNil(t, s.Value)
	assert.Equal(t, "9", *s.Value)

	// Cache and database both observe the new value.
	assert.Equal(t, 9, cache.Int("auth", "max_login_attempts", 0))
	var stored string
	require.NoError(t, db.DB().QueryRow(
		`SELECT value FROM system_settings WHERE category = 'auth' AND key = 'max_login_attempts'`).
		Scan(&stored))
	assert.Equal(t, "9", stored)
}

func TestSetRejectsWrongType(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	bad := "not-a-number"
	_, err := cache.Set(ctx, "auth", "max_login_attempts", &bad)
	assert.ErrorIs(t, err, ErrBadType)

	badJSON := "{broken"
	_, err = cache.Set(ctx, "api", "cors_allowed_origins", &badJSON)
	assert.ErrorIs(t, err, ErrBadType)

	// Value untouched after rejected writes.
	assert.Equal(t, 5, cache.Int("auth", "max_login_attempts", 0))
}

func TestSetUnknownSetting(t *testing.T) {
	cache, _ := newTestCache(t)

	v := "1"
	_, err := cache.Set(context.Background(), "ghost", "key", &v)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetNullClearsToDefault(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	v := "9"
	_, err := cache.Set(ctx, "auth", "max_login_attempts", &v)
	require.NoError(t, err)

	s, err := cache.Set(ctx, "auth", "max_login_attempts", nil)
	require.NoError(t, err)
	assert.Nil(t, s.Value)

	// Effective value falls back to the default.
	assert.Equal(t, 5, cache.Int("auth", "max_login_attempts", 0))
}
