package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nexabase-io/nexabase/internal/auth"
	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/observability"
)

// AuthHandler serves registration, login, token lifecycle, and OAuth entry
// points.
type AuthHandler struct {
	svc           *auth.Service
	oauth         *auth.OAuthRegistry
	throttle      *auth.LoginThrottle
	metrics       *observability.Metrics
	secureCookies bool
}

// NewAuthHandler creates the auth handler
func NewAuthHandler(svc *auth.Service, oauth *auth.OAuthRegistry, loginPerMinute int, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		svc:           svc,
		oauth:         oauth,
		throttle:      auth.NewLoginThrottle(loginPerMinute),
		secureCookies: secureCookies,
	}
}

// SetMetrics attaches the metrics registry
func (h *AuthHandler) SetMetrics(m *observability.Metrics) {
	h.metrics = m
}

// Register mounts the auth routes
func (h *AuthHandler) Register(router fiber.Router, authn *middleware.Authenticator) {
	grp := router.Group("/auth")
	grp.Post("/register", h.register)
	grp.Post("/login", h.login)
	grp.Post("/refresh", h.refresh)
	grp.Post("/logout", authn.RequireAuth(), h.logout)
	grp.Get("/me", authn.RequireAuth(), h.me)
	grp.Post("/verify-email", h.verifyEmail)
	grp.Get("/oauth/:provider", h.oauthRedirect)
	grp.Get("/oauth/:provider/callback", h.oauthCallback)
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "malformed request body", nil)
	}

	user, err := h.svc.Register(c.UserContext(), req.Email, req.Username, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return created(c, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User   *auth.User      `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	if !h.throttle.Allow(c.IP()) {
		return fail(c, fiber.StatusTooManyRequests, "rate_limited", "too many login attempts", nil)
	}

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "malformed request body", nil)
	}

	user, pair, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.AuthAttempt("failure")
		}
		return respondError(c, err)
	}
	if h.metrics != nil {
		h.metrics.AuthAttempt("success")
	}

	h.setTokenCookies(c, pair)
	return ok(c, loginResponse{User: user, Tokens: pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) refresh(c *fiber.Ctx) error {
	// Cookie wins over the body, mirroring access token extraction.
	token := c.Cookies(auth.RefreshCookieName)
	if token == "" {
		var req refreshRequest
		if err := c.BodyParser(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "refresh token is required", nil)
	}

	pair, err := h.svc.Refresh(c.UserContext(), token)
	if err != nil {
		return respondError(c, err)
	}

	h.setTokenCookies(c, pair)
	return ok(c, pair)
}

func (h *AuthHandler) logout(c *fiber.Ctx) error {
	caller := middleware.CallerFrom(c)

	refresh := c.Cookies(auth.RefreshCookieName)
	if refresh == "" {
		var req refreshRequest
		if err := c.BodyParser(&req); err == nil {
			refresh = req.RefreshToken
		}
	}

	if err := h.svc.Logout(c.UserContext(), caller.Claims, refresh); err != nil {
		return respondError(c, err)
	}

	h.clearTokenCookies(c)
	return okMessage(c, "logged out")
}

func (h *AuthHandler) me(c *fiber.Ctx) error {
	caller := middleware.CallerFrom(c)
	user, err := h.svc.Me(c.UserContext(), caller.Claims)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, user)
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) verifyEmail(c *fiber.Ctx) error {
	var req verifyEmailRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "token is required", nil)
	}
	if err := h.svc.VerifyEmail(c.UserContext(), req.Token); err != nil {
		return respondError(c, err)
	}
	return okMessage(c, "email verified")
}

func (h *AuthHandler) oauthRedirect(c *fiber.Ctx) error {
	provider, err := h.oauth.Get(c.Params("provider"))
	if err != nil {
		return fail(c, fiber.StatusNotFound, "not_found", "oauth provider not configured", nil)
	}
	state := c.Query("state")
	return c.Redirect(provider.AuthorizeURL(state), fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) oauthCallback(c *fiber.Ctx) error {
	provider, err := h.oauth.Get(c.Params("provider"))
	if err != nil {
		return fail(c, fiber.StatusNotFound, "not_found", "oauth provider not configured", nil)
	}
	code := c.Query("code")
	if code == "" {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "missing authorization code", nil)
	}
	identity, err := provider.Exchange(c.UserContext(), code)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, identity)
}

func (h *AuthHandler) setTokenCookies(c *fiber.Ctx, pair *auth.TokenPair) {
	c.Cookie(&fiber.Cookie{
		Name:     auth.AccessCookieName,
		Value:    pair.AccessToken,
		HTTPOnly: true,
		Secure:   h.secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(h.svc.JWT().AccessTTL().Seconds()),
	})
	c.Cookie(&fiber.Cookie{
		Name:     auth.RefreshCookieName,
		Value:    pair.RefreshToken,
		HTTPOnly: true,
		Secure:   h.secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/api/auth",
		MaxAge:   int(h.svc.JWT().RefreshTTL().Seconds()),
	})
}

func (h *AuthHandler) clearTokenCookies(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{Name: auth.AccessCookieName, Value: "", Path: "/", MaxAge: -1, HTTPOnly: true})
	c.Cookie(&fiber.Cookie{Name: auth.RefreshCookieName, Value: "", Path: "/api/auth", MaxAge: -1, HTTPOnly: true})
}
