package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed or fails validation
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrWrongTokenType is returned when an access token is presented where a
	// refresh token is required or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)

const (
	// TokenTypeAccess marks short-lived API tokens
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks long-lived rotation tokens
	TokenTypeRefresh = "refresh"
	// TokenTypeVerify marks single-purpose email verification tokens
	TokenTypeVerify = "verify"
)

// TokenClaims are the JWT claims carried by both token types
type TokenClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into the user id
func (c *TokenClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// JWTManager issues and validates HS256 token pairs
type JWTManager struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
}

// NewJWTManager creates a JWT manager
func NewJWTManager(secretKey string, accessTTL, refreshTTL time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:  []byte(secretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "nexabase",
	}
}

// AccessTTL returns the configured access token lifetime
func (m *JWTManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh token lifetime
func (m *JWTManager) RefreshTTL() time.Duration { return m.refreshTTL }

// GenerateAccessToken issues a short-lived access token with a fresh jti
func (m *JWTManager) GenerateAccessToken(userID int64, email, role string) (string, *TokenClaims, error) {
	return m.generate(userID, email, role, TokenTypeAccess, m.accessTTL)
}

// GenerateRefreshToken issues a long-lived refresh token with a fresh jti
func (m *JWTManager) GenerateRefreshToken(userID int64, email string) (string, *TokenClaims, error) {
	return m.generate(userID, email, "", TokenTypeRefresh, m.refreshTTL)
}

// GenerateVerificationToken issues the token mailed for email verification
func (m *JWTManager) GenerateVerificationToken(userID int64, email string) (string, *TokenClaims, error) {
	return m.generate(userID, email, "", TokenTypeVerify, 24*time.Hour)
}

func (m *JWTManager) generate(userID int64, email, role, tokenType string, ttl time.Duration) (string, *TokenClaims, error) {
	now := time.Now()
	claims := &TokenClaims{
		Email:     email,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Validate parses and verifies a token of the expected type
func (m *JWTManager) Validate(tokenString, expectedType string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != expectedType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
