package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/settings"
)

// SettingsHandler serves runtime settings management. Admin-only; sensitive
// values are masked on the way out.
type SettingsHandler struct {
	cache *settings.Cache
}

// NewSettingsHandler creates the settings handler
func NewSettingsHandler(cache *settings.Cache) *SettingsHandler {
	return &SettingsHandler{cache: cache}
}

// Register mounts the settings routes
func (h *SettingsHandler) Register(router fiber.Router, authn *middleware.Authenticator) {
	grp := router.Group("/settings", authn.RequireAdmin())
	grp.Get("/", h.list)
	grp.Get("/:category/:key", h.get)
	grp.Put("/:category/:key", h.set)
}

const maskedValue = "********"

// masked copies the setting with sensitive values hidden
func masked(s settings.Setting) settings.Setting {
	if s.Sensitive && s.Value != nil {
		v := maskedValue
		s.Value = &v
	}
	return s
}

func (h *SettingsHandler) list(c *fiber.Ctx) error {
	items := h.cache.List(c.Query("category"))
	out := make([]settings.Setting, 0, len(items))
	for _, s := range items {
		out = append(out, masked(s))
	}
	return ok(c, out)
}

func (h *SettingsHandler) get(c *fiber.Ctx) error {
	s, found := h.cache.Get(c.Params("category"), c.Params("key"))
	if !found {
		return respondError(c, settings.ErrNotFound)
	}
	out := masked(s)
	return ok(c, out)
}

type setSettingRequest struct {
	Value *string `json:"value"`
}

func (h *SettingsHandler) set(c *fiber.Ctx) error {
	var req setSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "malformed request body", nil)
	}

	s, err := h.cache.Set(c.UserContext(), c.Params("category"), c.Params("key"), req.Value)
	if err != nil {
		return respondError(c, err)
	}

	caller := middleware.CallerFrom(c)
	log.Info().
		Str("category", s.Category).
		Str("key", s.Key).
		Int64("by_user_id", caller.UserID).
		Bool("requires_restart", s.RequiresRestart).
		Msg("Setting updated")

	out := masked(*s)
	return ok(c, out)
}
