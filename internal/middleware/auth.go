// Package middleware holds the fiber middleware shared by all routes:
// identity resolution, admin gating, and structured request logging.
package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nexabase-io/nexabase/internal/auth"
)

const callerKey = "caller"

// Caller is the resolved request identity, passed explicitly to handlers
// instead of hiding in request-scoped globals.
type Caller struct {
	UserID   int64
	Email    string
	Role     string
	TokenJTI string
	Claims   *auth.TokenClaims
}

// IsAdmin reports whether the caller holds the admin role
func (c *Caller) IsAdmin() bool {
	return c.Role == "admin"
}

// Authenticator resolves the caller for each request
type Authenticator struct {
	svc *auth.Service
}

// NewAuthenticator creates the auth middleware factory
func NewAuthenticator(svc *auth.Service) *Authenticator {
	return &Authenticator{svc: svc}
}

// resolve extracts and validates the token, returning nil when none present
func (a *Authenticator) resolve(c *fiber.Ctx) (*Caller, error) {
	token := auth.ExtractToken(c.Cookies(auth.AccessCookieName), c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return nil, nil
	}

	claims, err := a.svc.ValidateAccess(c.UserContext(), token)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	return &Caller{
		UserID:   userID,
		Email:    claims.Email,
		Role:     claims.Role,
		TokenJTI: claims.ID,
		Claims:   claims,
	}, nil
}

// Optional attaches the caller when a valid token is present and lets
// anonymous requests through.
func (a *Authenticator) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := a.resolve(c)
		if err == nil && caller != nil {
			c.Locals(callerKey, caller)
		}
		return c.Next()
	}
}

// RequireAuth rejects requests without a valid access token
func (a *Authenticator) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := a.resolve(c)
		if err != nil {
			return unauthorizedError(err)
		}
		if caller == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		c.Locals(callerKey, caller)
		return c.Next()
	}
}

// RequireAdmin rejects requests whose caller is not an admin
func (a *Authenticator) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := a.resolve(c)
		if err != nil {
			return unauthorizedError(err)
		}
		if caller == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		if !caller.IsAdmin() {
			return fiber.NewError(fiber.StatusForbidden, "admin access required")
		}
		c.Locals(callerKey, caller)
		return c.Next()
	}
}

func unauthorizedError(err error) error {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return fiber.NewError(fiber.StatusUnauthorized, "token has expired")
	case errors.Is(err, auth.ErrTokenBlacklisted):
		return fiber.NewError(fiber.StatusUnauthorized, "token has been revoked")
	default:
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
}

// CallerFrom returns the caller attached by the auth middleware, if any
func CallerFrom(c *fiber.Ctx) *Caller {
	caller, _ := c.Locals(callerKey).(*Caller)
	return caller
}
