package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexabase-io/nexabase/internal/config"
	"github.com/nexabase-io/nexabase/internal/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.NewMemoryConnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return NewService(db, config.AuthConfig{
		JWTSecret:        testSecret,
		PasswordPepper:   "test-pepper",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  time.Hour,
		MaxLoginAttempts: 3,
		LockoutDuration:  time.Hour,
		PasswordMinLen:   8,
	}, nil)
}

func registerVerified(t *testing.T, svc *Service, email, username, password string) *User {
	t.Helper()
	user, err := svc.Register(context.Background(), email, username, password)
	require.NoError(t, err)
	require.NoError(t, svc.Users().SetVerified(context.Background(), user.ID))
	return user
}

func TestLoginSuccess(t *testing.T) {
	svc := newTestService(t)
	registerVerified(t, svc, "a@example.com", "alice", "hunter2hunter2")

	start := time.Now()
	user, pair, err := svc.Login(context.Background(), "a@example.com", "hunter2hunter2")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.GreaterOrEqual(t, elapsed, loginFloor)
}

// Unknown accounts and wrong passwords both resolve through the same floor
// and the same error, so neither timing nor wording reveals which check
// failed.
func TestLoginTimingFloor(t *testing.T) {
	svc := newTestService(t)
	registerVerified(t, svc, "a@example.com", "alice", "hunter2hunter2")

	start := time.Now()
	_, _, err := svc.Login(context.Background(), "ghost@example.com", "whatever-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.GreaterOrEqual(t, time.Since(start), loginFloor)

	start = time.Now()
	_, _, err = svc.Login(context.Background(), "a@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.GreaterOrEqual(t, time.Since(start), loginFloor)
}

func TestLoginUnverified(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register(context.Background(), "a@example.com", "alice", "hunter2hunter2")
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "a@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestLoginDisabled(t *testing.T) {
	svc := newTestService(t)
	user := registerVerified(t, svc, "a@example.com", "alice", "hunter2hunter2")
	require.NoError(t, svc.Users().SetActive(context.Background(), user.ID, false))

	_, _, err := svc.Login(context.Background(), "a@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestLoginLockoutAfterMaxAttempts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerVerified(t, svc, "a@example.com", "alice", "hunter2hunter2")

	for i := 0; i < 3; i++ {
		_, _, err := svc.Login(ctx, "a@example.com", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}

	// The correct password no longer helps while the lockout window holds.
	_, _, err := svc.Login(ctx, "a@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrAccountLocked)

	locked, err := svc.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, locked.Locked(time.Now()))
	assert.Equal(t, 3, locked.FailedLoginAttempts)
}

func TestLoginSuccessClearsFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerVerified(t, svc, "a@example.com", "alice", "hunter2hunter2")

	_, _, err := svc.Login(ctx, "a@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "a@example.com", "hunter2hunter2")
	require.NoError(t, err)

	fresh, err := svc.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, fresh.FailedLoginAttempts)
	assert.Nil(t, fresh.LockedUntil)
	assert.NotNil(t, fresh.LastLoginAt)
}

// Each refresh token works exactly once: the presented jti is blacklisted
// before the replacement pair is issued.
func TestRefreshRotation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerVerified(t, svc, "a@example.com", "alice", "hunter2hunter2")

	_, pair, err := svc.Login(ctx, "a@example.com", "hunter2hunter2")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenBlacklisted)

	// The rotated replacement still works.
	_, err = svc.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestLogoutBlacklistsTokens(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerVerified(t, svc, "a@example.com", "alice", "hunter2hunter2")

	_, pair, err := svc.Login(ctx, "a@example.com", "hunter2hunter2")
	require.NoError(t, err)

	claims, err := svc.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, claims, pair.RefreshToken))

	_, err = svc.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenBlacklisted)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenBlacklisted)
}

func TestVerifyEmailTokenSingleUse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@example.com", "alice", "hunter2hunter2")
	require.NoError(t, err)

	token, _, err := svc.JWT().GenerateVerificationToken(user.ID, user.Email)
	require.NoError(t, err)

	require.NoError(t, svc.VerifyEmail(ctx, token))
	fresh, err := svc.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, fresh.IsVerified)

	assert.ErrorIs(t, svc.VerifyEmail(ctx, token), ErrTokenBlacklisted)
}
