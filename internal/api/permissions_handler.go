package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/permissions"
	"github.com/nexabase-io/nexabase/internal/schema"
)

// PermissionsHandler serves role CRUD and the three permission scopes.
// Management endpoints are admin-only; /users/me/collections is the one
// self-service route.
type PermissionsHandler struct {
	registry *schema.Registry
	resolver *permissions.Resolver
}

// NewPermissionsHandler creates the permissions handler
func NewPermissionsHandler(registry *schema.Registry, resolver *permissions.Resolver) *PermissionsHandler {
	return &PermissionsHandler{registry: registry, resolver: resolver}
}

// Register mounts the permission routes
func (h *PermissionsHandler) Register(router fiber.Router, authn *middleware.Authenticator) {
	grp := router.Group("/permissions")

	roles := grp.Group("/roles", authn.RequireAdmin())
	roles.Get("/", h.listRoles)
	roles.Post("/", h.createRole)
	roles.Get("/:name", h.getRole)
	roles.Put("/:name", h.updateRole)
	roles.Delete("/:name", h.deleteRole)

	grp.Get("/users/me/collections", authn.RequireAuth(), h.myCollections)

	grp.Get("/collections/:name", authn.RequireAdmin(), h.listCollectionPermissions)
	grp.Post("/collections/:name", authn.RequireAdmin(), h.setCollectionPermission)

	grp.Get("/users/:user_id/collections/:name", authn.RequireAdmin(), h.getUserOverride)
	grp.Post("/users/:user_id/collections/:name", authn.RequireAdmin(), h.setUserOverride)

	grp.Get("/collections/:name/records/:record_id", authn.RequireAdmin(), h.listRecordPermissions)
	grp.Post("/collections/:name/records/:record_id", authn.RequireAdmin(), h.setRecordPermission)
	grp.Delete("/collections/:name/records/:record_id/users/:user_id", authn.RequireAdmin(), h.deleteRecordPermission)
}

func (h *PermissionsHandler) repo() *permissions.Repository {
	return h.resolver.Repo()
}

func (h *PermissionsHandler) collectionID(c *fiber.Ctx) (int64, error) {
	col, err := h.registry.Get(c.UserContext(), c.Params("name"))
	if err != nil {
		return 0, err
	}
	return col.ID, nil
}

func paramInt64(c *fiber.Ctx, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

type roleRequest struct {
	Name        string  `json:"name"`
	Priority    int     `json:"priority"`
	Description *string `json:"description"`
}

func (h *PermissionsHandler) listRoles(c *fiber.Ctx) error {
	roles, err := h.repo().ListRoles(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if roles == nil {
		roles = []permissions.Role{}
	}
	return ok(c, roles)
}

func (h *PermissionsHandler) createRole(c *fiber.Ctx) error {
	var req roleRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "role name is required", nil)
	}
	role, err := h.repo().CreateRole(c.UserContext(), req.Name, req.Priority, req.Description)
	if err != nil {
		return respondError(c, err)
	}
	return created(c, role)
}

func (h *PermissionsHandler) getRole(c *fiber.Ctx) error {
	role, err := h.repo().GetRole(c.UserContext(), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, role)
}

func (h *PermissionsHandler) updateRole(c *fiber.Ctx) error {
	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "malformed request body", nil)
	}
	role, err := h.repo().UpdateRole(c.UserContext(), c.Params("name"), req.Priority, req.Description)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, role)
}

func (h *PermissionsHandler) deleteRole(c *fiber.Ctx) error {
	if err := h.repo().DeleteRole(c.UserContext(), c.Params("name")); err != nil {
		return respondError(c, err)
	}
	return noContent(c)
}

func (h *PermissionsHandler) listCollectionPermissions(c *fiber.Ctx) error {
	colID, err := h.collectionID(c)
	if err != nil {
		return respondError(c, err)
	}
	perms, err := h.repo().ListCollectionPermissions(c.UserContext(), colID)
	if err != nil {
		return respondError(c, err)
	}
	if perms == nil {
		perms = []permissions.CollectionPermission{}
	}
	return ok(c, perms)
}

type collectionPermissionRequest struct {
	Role string `json:"role"`
	permissions.PermissionSet
}

func (h *PermissionsHandler) setCollectionPermission(c *fiber.Ctx) error {
	colID, err := h.collectionID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req collectionPermissionRequest
	if err := c.BodyParser(&req); err != nil || req.Role == "" {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "role is required", nil)
	}

	role, err := h.repo().GetRole(c.UserContext(), req.Role)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.repo().SetCollectionPermission(c.UserContext(), colID, role.ID, req.PermissionSet); err != nil {
		return respondError(c, err)
	}

	perm, err := h.repo().GetCollectionPermission(c.UserContext(), colID, role.ID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, perm)
}

func (h *PermissionsHandler) getUserOverride(c *fiber.Ctx) error {
	userID, okID := paramInt64(c, "user_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid user id", nil)
	}
	colID, err := h.collectionID(c)
	if err != nil {
		return respondError(c, err)
	}

	override, err := h.repo().GetUserOverride(c.UserContext(), userID, colID)
	if err != nil {
		return respondError(c, err)
	}
	if override == nil {
		return fail(c, fiber.StatusNotFound, "not_found", "no override for this user and collection", nil)
	}
	return ok(c, override)
}

func (h *PermissionsHandler) setUserOverride(c *fiber.Ctx) error {
	userID, okID := paramInt64(c, "user_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid user id", nil)
	}
	colID, err := h.collectionID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req permissions.OverrideSet
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "malformed request body", nil)
	}
	if err := h.repo().SetUserOverride(c.UserContext(), userID, colID, req); err != nil {
		return respondError(c, err)
	}

	override, err := h.repo().GetUserOverride(c.UserContext(), userID, colID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, override)
}

func (h *PermissionsHandler) listRecordPermissions(c *fiber.Ctx) error {
	recordID, okID := paramInt64(c, "record_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid record id", nil)
	}
	colID, err := h.collectionID(c)
	if err != nil {
		return respondError(c, err)
	}

	perms, err := h.repo().ListRecordPermissions(c.UserContext(), colID, recordID)
	if err != nil {
		return respondError(c, err)
	}
	if perms == nil {
		perms = []permissions.RecordPermission{}
	}
	return ok(c, perms)
}

type recordPermissionRequest struct {
	UserID int64           `json:"user_id"`
	Read   permissions.Tri `json:"read"`
	Update permissions.Tri `json:"update"`
	Delete permissions.Tri `json:"delete"`
}

func (h *PermissionsHandler) setRecordPermission(c *fiber.Ctx) error {
	recordID, okID := paramInt64(c, "record_id")
	if !okID {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid record id", nil)
	}
	colID, err := h.collectionID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req recordPermissionRequest
	if err := c.BodyParser(&req); err != nil || req.UserID < 1 {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "user_id is required", nil)
	}
	if err := h.repo().SetRecordPermission(c.UserContext(), colID, recordID, req.UserID, req.Read, req.Update, req.Delete); err != nil {
		return respondError(c, err)
	}

	perm, err := h.repo().GetRecordPermission(c.UserContext(), colID, recordID, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, perm)
}

func (h *PermissionsHandler) deleteRecordPermission(c *fiber.Ctx) error {
	recordID, okRec := paramInt64(c, "record_id")
	userID, okUser := paramInt64(c, "user_id")
	if !okRec || !okUser {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid record or user id", nil)
	}
	colID, err := h.collectionID(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.repo().DeleteRecordPermission(c.UserContext(), colID, recordID, userID); err != nil {
		return respondError(c, err)
	}
	return noContent(c)
}

// myCollections lists the collections the caller can access, with the
// effective permission set for each.
func (h *PermissionsHandler) myCollections(c *fiber.Ctx) error {
	caller := middleware.CallerFrom(c)

	ids, all, err := h.resolver.AccessibleCollections(c.UserContext(), caller.UserID, caller.Role)
	if err != nil {
		return respondError(c, err)
	}

	cols, err := h.registry.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}

	accessible := make(map[int64]bool, len(ids))
	for _, id := range ids {
		accessible[id] = true
	}

	type accessibleCollection struct {
		Collection  string                    `json:"collection"`
		Permissions permissions.PermissionSet `json:"permissions"`
	}
	out := make([]accessibleCollection, 0)
	for _, col := range cols {
		if !all && !accessible[col.ID] {
			continue
		}
		set, err := h.resolver.ResolveCollection(c.UserContext(), caller.UserID, caller.Role, col.ID)
		if err != nil {
			return respondError(c, err)
		}
		if !set.Any() {
			continue
		}
		out = append(out, accessibleCollection{Collection: col.Name, Permissions: set})
	}
	return ok(c, out)
}
