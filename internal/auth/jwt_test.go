package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testManager() *JWTManager {
	return NewJWTManager(testSecret, 15*time.Minute, 7*24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := testManager()

	token, claims, err := m.GenerateAccessToken(42, "a@example.com", "user")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	parsed, err := m.Validate(token, TokenTypeAccess)
	require.NoError(t, err)

	userID, err := parsed.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, "a@example.com", parsed.Email)
	assert.Equal(t, "user", parsed.Role)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestValidateWrongType(t *testing.T) {
	m := testManager()

	refresh, _, err := m.GenerateRefreshToken(42, "a@example.com")
	require.NoError(t, err)

	_, err = m.Validate(refresh, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = m.Validate(refresh, TokenTypeRefresh)
	assert.NoError(t, err)
}

func TestValidateExpired(t *testing.T) {
	m := NewJWTManager(testSecret, -time.Minute, -time.Minute)

	token, _, err := m.GenerateAccessToken(1, "a@example.com", "user")
	require.NoError(t, err)

	_, err = m.Validate(token, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateWrongSecret(t *testing.T) {
	token, _, err := testManager().GenerateAccessToken(1, "a@example.com", "user")
	require.NoError(t, err)

	other := NewJWTManager("another-secret-another-secret-ab", time.Minute, time.Minute)
	_, err = other.Validate(token, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := testManager().Validate("not.a.jwt", TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFreshJTIPerToken(t *testing.T) {
	m := testManager()

	_, a, err := m.GenerateAccessToken(1, "a@example.com", "user")
	require.NoError(t, err)
	_, b, err := m.GenerateAccessToken(1, "a@example.com", "user")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}
