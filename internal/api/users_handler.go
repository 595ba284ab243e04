package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nexabase-io/nexabase/internal/auth"
	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/permissions"
)

// UsersHandler serves admin user management: listing, role assignment, and
// account activation toggles.
type UsersHandler struct {
	svc  *auth.Service
	repo *permissions.Repository
}

// NewUsersHandler creates the users handler
func NewUsersHandler(svc *auth.Service, repo *permissions.Repository) *UsersHandler {
	return &UsersHandler{svc: svc, repo: repo}
}

// Register mounts the user management routes
func (h *UsersHandler) Register(router fiber.Router, authn *middleware.Authenticator) {
	grp := router.Group("/users", authn.RequireAdmin())
	grp.Get("/", h.list)
	grp.Get("/:user_id", h.get)
	grp.Put("/:user_id/role", h.setRole)
	grp.Put("/:user_id/active", h.setActive)
	grp.Put("/:user_id/verify", h.verify)
}

func (h *UsersHandler) list(c *fiber.Ctx) error {
	users, err := h.svc.Users().List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if users == nil {
		users = []auth.User{}
	}
	return ok(c, users)
}

func (h *UsersHandler) get(c *fiber.Ctx) error {
	userID, okID := paramInt64(c, "user_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid user id", nil)
	}
	user, err := h.svc.Users().GetByID(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, user)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// setRole assigns a role by name. The role must exist so typos do not
// silently strip a user's access.
func (h *UsersHandler) setRole(c *fiber.Ctx) error {
	userID, okID := paramInt64(c, "user_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid user id", nil)
	}

	var req setRoleRequest
	if err := c.BodyParser(&req); err != nil || req.Role == "" {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "role is required", nil)
	}

	if _, err := h.repo.GetRole(c.UserContext(), req.Role); err != nil {
		return respondError(c, err)
	}
	if err := h.svc.Users().SetRole(c.UserContext(), userID, req.Role); err != nil {
		return respondError(c, err)
	}

	user, err := h.svc.Users().GetByID(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, user)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (h *UsersHandler) setActive(c *fiber.Ctx) error {
	userID, okID := paramInt64(c, "user_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid user id", nil)
	}

	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil || req.Active == nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "active is required", nil)
	}

	caller := middleware.CallerFrom(c)
	if caller.UserID == userID && !*req.Active {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "cannot deactivate your own account", nil)
	}

	if err := h.svc.Users().SetActive(c.UserContext(), userID, *req.Active); err != nil {
		return respondError(c, err)
	}

	user, err := h.svc.Users().GetByID(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, user)
}

func (h *UsersHandler) verify(c *fiber.Ctx) error {
	userID, okID := paramInt64(c, "user_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid user id", nil)
	}

	if err := h.svc.Users().SetVerified(c.UserContext(), userID); err != nil {
		return respondError(c, err)
	}

	user, err := h.svc.Users().GetByID(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, user)
}
