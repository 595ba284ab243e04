package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/schema"
)

// CollectionsHandler serves collection metadata CRUD. Reads are public;
// mutations are admin-only.
type CollectionsHandler struct {
	registry *schema.Registry
}

// NewCollectionsHandler creates the collections handler
func NewCollectionsHandler(registry *schema.Registry) *CollectionsHandler {
	return &CollectionsHandler{registry: registry}
}

// Register mounts the collection routes. /stats is declared before /:name so
// the router does not treat "stats" as a collection name.
func (h *CollectionsHandler) Register(router fiber.Router, authn *middleware.Authenticator) {
	grp := router.Group("/collections")
	grp.Get("/", h.list)
	grp.Post("/", authn.RequireAdmin(), h.create)
	grp.Get("/stats", authn.RequireAdmin(), h.stats)
	grp.Get("/:name", h.get)
	grp.Put("/:name", authn.RequireAdmin(), h.update)
	grp.Delete("/:name", authn.RequireAdmin(), h.remove)
	grp.Get("/:name/schema", h.getSchema)
}

func (h *CollectionsHandler) list(c *fiber.Ctx) error {
	cols, err := h.registry.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, cols)
}

func (h *CollectionsHandler) create(c *fiber.Ctx) error {
	var req schema.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "malformed request body", nil)
	}
	col, err := h.registry.Create(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return created(c, col)
}

func (h *CollectionsHandler) get(c *fiber.Ctx) error {
	col, err := h.registry.Get(c.UserContext(), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, col)
}

func (h *CollectionsHandler) getSchema(c *fiber.Ctx) error {
	col, err := h.registry.Get(c.UserContext(), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, col.Schema)
}

func (h *CollectionsHandler) update(c *fiber.Ctx) error {
	var req schema.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "malformed request body", nil)
	}
	col, err := h.registry.Update(c.UserContext(), c.Params("name"), req)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, col)
}

func (h *CollectionsHandler) remove(c *fiber.Ctx) error {
	if err := h.registry.Delete(c.UserContext(), c.Params("name")); err != nil {
		return respondError(c, err)
	}
	return noContent(c)
}

func (h *CollectionsHandler) stats(c *fiber.Ctx) error {
	stats, err := h.registry.Stats(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, stats)
}
