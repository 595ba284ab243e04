package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrWeakPassword is returned when a password doesn't meet minimum requirements
	ErrWeakPassword = errors.New("password does not meet minimum requirements")
	// ErrPasswordTooLong is returned when password exceeds maximum length
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrInvalidHash is returned when a stored hash cannot be parsed
	ErrInvalidHash = errors.New("invalid password hash format")
)

const (
	// MaxPasswordLength bounds hashing work on attacker-supplied input
	MaxPasswordLength = 256

	argonMemory  = 64 * 1024
	argonTime    = 4
	argonThreads = 2
	argonKeyLen  = 32
	argonSaltLen = 16
)

// PasswordHasher hashes and verifies passwords with argon2id. The pepper is
// a server-side secret concatenated to the password before hashing, so a
// leaked database alone is not enough to run an offline attack.
type PasswordHasher struct {
	pepper    string
	minLength int
}

// NewPasswordHasher creates a password hasher
func NewPasswordHasher(pepper string, minLength int) *PasswordHasher {
	if minLength <= 0 {
		minLength = 8
	}
	return &PasswordHasher{pepper: pepper, minLength: minLength}
}

// ValidatePolicy checks the password against the configured policy
func (h *PasswordHasher) ValidatePolicy(password string) error {
	if len(password) < h.minLength {
		return fmt.Errorf("%w: minimum length is %d", ErrWeakPassword, h.minLength)
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// Hash derives an argon2id hash and encodes it in PHC string format
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password+h.pepper), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify re-derives the key with the parameters stored in the hash and
// compares in constant time.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrInvalidHash
	}

	var memory uint32
	var time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(password+h.pepper), salt, time, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}
