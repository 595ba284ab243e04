package api

import (
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/ownership"
	"github.com/nexabase-io/nexabase/internal/permissions"
	"github.com/nexabase-io/nexabase/internal/query"
	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
)

const (
	defaultPageSize = 30
	maxPageSize     = 100
)

// RecordsHandler serves record CRUD under each collection plus the global
// cross-collection listing. Every operation goes through the permission
// resolver; read/update/delete additionally honor ownership.
type RecordsHandler struct {
	registry  *schema.Registry
	engine    *records.Engine
	resolver  *permissions.Resolver
	ownership *ownership.Service
}

// NewRecordsHandler creates the records handler
func NewRecordsHandler(registry *schema.Registry, engine *records.Engine, resolver *permissions.Resolver, owns *ownership.Service) *RecordsHandler {
	return &RecordsHandler{registry: registry, engine: engine, resolver: resolver, ownership: owns}
}

// Register mounts the record routes
func (h *RecordsHandler) Register(router fiber.Router, authn *middleware.Authenticator) {
	grp := router.Group("/collections/:name/records", authn.Optional())
	grp.Get("/", h.list)
	grp.Post("/", h.create)
	grp.Get("/:id", h.get)
	grp.Put("/:id", h.update)
	grp.Delete("/:id", h.remove)

	router.Get("/records", authn.RequireAuth(), h.globalList)
}

// callerScope is the identity the resolver works from; anonymous callers
// resolve with a zero user id and empty role, which denies everything.
func callerScope(c *fiber.Ctx) (int64, string, *middleware.Caller) {
	caller := middleware.CallerFrom(c)
	if caller == nil {
		return 0, "", nil
	}
	return caller.UserID, caller.Role, caller
}

func (h *RecordsHandler) collection(c *fiber.Ctx) (*schema.Collection, error) {
	return h.registry.Get(c.UserContext(), c.Params("name"))
}

func recordID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

func parseQueryParams(c *fiber.Ctx) (query.Params, int, int) {
	p := query.Params{
		Sort:   c.Query("sort"),
		Filter: c.Query("filter"),
		Search: c.Query("search"),
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := c.QueryInt("page_size", c.QueryInt("limit", defaultPageSize))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	limit := pageSize
	offset := (page - 1) * pageSize
	if v := c.QueryInt("offset", -1); v >= 0 {
		offset = v
		page = offset/pageSize + 1
	}
	p.Limit = &limit
	p.Offset = &offset
	return p, page, pageSize
}

func (h *RecordsHandler) list(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if err != nil {
		return respondError(c, err)
	}

	userID, role, _ := callerScope(c)
	set, err := h.resolver.ResolveCollection(c.UserContext(), userID, role, col.ID)
	if err != nil {
		return respondError(c, err)
	}
	if !set.List {
		return forbidden(c)
	}

	params, page, pageSize := parseQueryParams(c)
	rows, total, err := h.engine.List(c.UserContext(), col, params)
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

type recordRequest struct {
	Data map[string]interface{} `json:"data"`
}

func (h *RecordsHandler) create(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if err != nil {
		return respondError(c, err)
	}

	userID, role, caller := callerScope(c)
	set, err := h.resolver.ResolveCollection(c.UserContext(), userID, role, col.ID)
	if err != nil {
		return respondError(c, err)
	}
	if !set.Create {
		return forbidden(c)
	}

	var req recordRequest
	if err := c.BodyParser(&req); err != nil || req.Data == nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "request body must contain a data object", nil)
	}

	var callerID *int64
	if caller != nil {
		callerID = &caller.UserID
	}
	rec, err := h.engine.Create(c.UserContext(), col, req.Data, callerID)
	if err != nil {
		return respondError(c, err)
	}
	return created(c, rec)
}

// authorizeRecord applies the record-scope algorithm and the ownership
// overlay: ownership grants read/update/delete regardless of the resolver.
func (h *RecordsHandler) authorizeRecord(c *fiber.Ctx, col *schema.Collection, rec records.Record, action permissions.Action) (bool, error) {
	userID, role, caller := callerScope(c)

	id, ok := rec["id"].(int64)
	if !ok {
		return false, nil
	}
	allowed, err := h.resolver.ResolveRecord(c.UserContext(), userID, role, col.ID, id, action)
	if err != nil {
		return false, err
	}
	if allowed {
		return true, nil
	}

	if caller != nil && ownership.HasOwnerField(&col.Schema) {
		ident, err := h.ownership.Identity(c.UserContext(), caller.UserID)
		if err != nil {
			return false, err
		}
		return ownership.IsOwner(&col.Schema, rec, ident), nil
	}
	return false, nil
}

func (h *RecordsHandler) get(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := recordID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid record id", nil)
	}

	rec, err := h.engine.Get(c.UserContext(), col, id)
	if err != nil {
		return respondError(c, err)
	}

	allowed, err := h.authorizeRecord(c, col, rec, permissions.ActionRead)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return forbidden(c)
	}
	return ok(c, rec)
}

func (h *RecordsHandler) update(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := recordID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid record id", nil)
	}

	rec, err := h.engine.Get(c.UserContext(), col, id)
	if err != nil {
		return respondError(c, err)
	}
	allowed, err := h.authorizeRecord(c, col, rec, permissions.ActionUpdate)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return forbidden(c)
	}

	var req recordRequest
	if err := c.BodyParser(&req); err != nil || req.Data == nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "request body must contain a data object", nil)
	}

	_, _, caller := callerScope(c)
	var callerID *int64
	if caller != nil {
		callerID = &caller.UserID
	}
	updated, err := h.engine.Update(c.UserContext(), col, id, req.Data, callerID)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, updated)
}

func (h *RecordsHandler) remove(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := recordID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "invalid record id", nil)
	}

	rec, err := h.engine.Get(c.UserContext(), col, id)
	if err != nil {
		return respondError(c, err)
	}
	allowed, err := h.authorizeRecord(c, col, rec, permissions.ActionDelete)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return forbidden(c)
	}

	_, _, caller := callerScope(c)
	var callerID *int64
	if caller != nil {
		callerID = &caller.UserID
	}
	if err := h.engine.Delete(c.UserContext(), col, id, callerID); err != nil {
		return respondError(c, err)
	}
	return noContent(c)
}

type globalRecord struct {
	Collection string         `json:"collection"`
	Record     records.Record `json:"record"`
}

// globalList pages across every collection the caller can list. It loads the
// accessible collections' records into memory before paginating, which is
// linear in total rows; the page size cap keeps responses bounded.
func (h *RecordsHandler) globalList(c *fiber.Ctx) error {
	userID, role, _ := callerScope(c)

	ids, all, err := h.resolver.AccessibleCollections(c.UserContext(), userID, role)
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

	var merged []globalRecord
	for _, col := range cols {
		if !all {
			if !accessible[col.ID] {
				continue
			}
			set, err := h.resolver.ResolveCollection(c.UserContext(), userID, role, col.ID)
			if err != nil {
				return respondError(c, err)
			}
			if !set.List {
				continue
			}
		}

		rows, _, err := h.engine.List(c.UserContext(), col, query.Params{})
		if err != nil {
			log.Error().Err(err).Str("collection", col.Name).Msg("Global listing skipped collection")
			continue
		}
		for _, rec := range rows {
			merged = append(merged, globalRecord{Collection: col.Name, Record: rec})
		}
	}

	// Stable order: collection name, then record id.
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Collection != merged[j].Collection {
			return merged[i].Collection < merged[j].Collection
		}
		a, _ := merged[i].Record["id"].(int64)
		b, _ := merged[j].Record["id"].(int64)
		return a < b
	})

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := c.QueryInt("page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := int64(len(merged))
	start := (page - 1) * pageSize
	if start > len(merged) {
		start = len(merged)
	}
	end := start + pageSize
	if end > len(merged) {
		end = len(merged)
	}
	pageRows := merged[start:end]
	if pageRows == nil {
		pageRows = []globalRecord{}
	}

	return ok(c, fiber.Map{
		"records":    pageRows,
		"pagination": NewPagination(page, pageSize, total),
	})
}
