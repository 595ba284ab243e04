package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	h := NewPasswordHasher("pepper", 8)

	encoded, err := h.Hash("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=4,p=2$"))

	match, err := h.Verify("correct horse battery", encoded)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = h.Verify("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestVerifyPepperMismatch(t *testing.T) {
	h1 := NewPasswordHasher("pepper-one", 8)
	h2 := NewPasswordHasher("pepper-two", 8)

	encoded, err := h1.Hash("shared password")
	require.NoError(t, err)

	match, err := h2.Verify("shared password", encoded)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestHashUniqueSalts(t *testing.T) {
	h := NewPasswordHasher("pepper", 8)

	a, err := h.Hash("same password")
	require.NoError(t, err)
	b, err := h.Hash("same password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	h := NewPasswordHasher("pepper", 8)

	for _, encoded := range []string{
		"",
		"plaintext",
		"$bcrypt$whatever",
		"$argon2id$v=19$m=65536,t=4,p=2$not-base64!$also-not!",
	} {
		_, err := h.Verify("password", encoded)
		assert.ErrorIs(t, err, ErrInvalidHash, encoded)
	}
}

func TestValidatePolicy(t *testing.T) {
	h := NewPasswordHasher("pepper", 10)

	assert.ErrorIs(t, h.ValidatePolicy("short"), ErrWeakPassword)
	assert.NoError(t, h.ValidatePolicy("long enough password"))
	assert.ErrorIs(t, h.ValidatePolicy(strings.Repeat("x", MaxPasswordLength+1)), ErrPasswordTooLong)
}

func TestHashRejectsOversizedInput(t *testing.T) {
	h := NewPasswordHasher("pepper", 8)
	_, err := h.Hash(strings.Repeat("x", MaxPasswordLength+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
