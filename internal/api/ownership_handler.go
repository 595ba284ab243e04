package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/ownership"
	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
)

// OwnershipHandler serves ownership checks, transfers, and owned-record
// listings. All routes require authentication; cross-user listings are
// admin-only.
type OwnershipHandler struct {
	registry *schema.Registry
	svc      *ownership.Service
}

// NewOwnershipHandler creates the ownership handler
func NewOwnershipHandler(registry *schema.Registry, svc *ownership.Service) *OwnershipHandler {
	return &OwnershipHandler{registry: registry, svc: svc}
}

// Register mounts the ownership routes
func (h *OwnershipHandler) Register(router fiber.Router, authn *middleware.Authenticator) {
	grp := router.Group("/ownership", authn.RequireAuth())
	grp.Get("/stats", h.stats)
	grp.Get("/collections/:name/records", h.listMine)
	grp.Get("/collections/:name/records/:id/check", h.check)
	grp.Post("/collections/:name/records/:id/transfer", h.transfer)
	grp.Get("/users/:user_id/collections/:name/records", authn.RequireAdmin(), h.listForUser)
	grp.Get("/users/:user_id/stats", authn.RequireAdmin(), h.statsForUser)
}

func (h *OwnershipHandler) collection(c *fiber.Ctx) (*schema.Collection, error) {
	return h.registry.Get(c.UserContext(), c.Params("name"))
}

func (h *OwnershipHandler) identity(c *fiber.Ctx) (ownership.Identity, error) {
	caller := middleware.CallerFrom(c)
	return h.svc.Identity(c.UserContext(), caller.UserID)
}

func (h *OwnershipHandler) check(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if err != nil {
		return respondError(c, err)
	}
	id, idErr := recordID(c)
	if idErr != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid record id", nil)
	}

	ident, err := h.identity(c)
	if err != nil {
		return respondError(c, err)
	}
	owner, err := h.svc.Check(c.UserContext(), col, id, ident)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, fiber.Map{
		"collection": col.Name,
		"record_id":  id,
		"is_owner":   owner,
	})
}

type transferRequest struct {
	NewOwnerID int64 `json:"new_owner_id"`
}

func (h *OwnershipHandler) transfer(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if err != nil {
		return respondError(c, err)
	}
	id, idErr := recordID(c)
	if idErr != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid record id", nil)
	}

	var req transferRequest
	if err := c.BodyParser(&req); err != nil || req.NewOwnerID < 1 {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "new_owner_id is required", nil)
	}

	ident, err := h.identity(c)
	if err != nil {
		return respondError(c, err)
	}
	rec, err := h.svc.Transfer(c.UserContext(), col, id, req.NewOwnerID, ident)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, rec)
}

func (h *OwnershipHandler) listMine(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if err != nil {
		return respondError(c, err)
	}

	ident, err := h.identity(c)
	if err != nil {
		return respondError(c, err)
	}

	params, page, pageSize := parseQueryParams(c)
	rows, total, err := h.svc.ListMine(c.UserContext(), col, ident, params)
	if err != nil {
		return respondError(c, err)
	}
	if rows == nil {
		rows = []records.Record{}
	}
	return ok(c, fiber.Map{
		"records":    rows,
		"pagination": NewPagination(page, pageSize, total),
	})
}

func (h *OwnershipHandler) listForUser(c *fiber.Ctx) error {
	userID, okID := paramInt64(c, "user_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid user id", nil)
	}
	col, err := h.collection(c)
	if err != nil {
		return respondError(c, err)
	}

	params, page, pageSize := parseQueryParams(c)
	rows, total, err := h.svc.ListForUser(c.UserContext(), col, userID, params)
	if err != nil {
		return respondError(c, err)
	}
	if rows == nil {
		rows = []records.Record{}
	}
	return ok(c, fiber.Map{
		"records":    rows,
		"pagination": NewPagination(page, pageSize, total),
	})
}

func (h *OwnershipHandler) stats(c *fiber.Ctx) error {
	caller := middleware.CallerFrom(c)
	stats, err := h.svc.Stats(c.UserContext(), caller.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, stats)
}

func (h *OwnershipHandler) statsForUser(c *fiber.Ctx) error {
	userID, okID := paramInt64(c, "user_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid user id", nil)
	}
	stats, err := h.svc.Stats(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, stats)
}
