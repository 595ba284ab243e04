package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/realtime"
)

// RealtimeHandler serves the WebSocket upgrade plus the bus introspection and
// admin control routes.
type RealtimeHandler struct {
	bus     *realtime.Bus
	upgrade *realtime.Handler
}

// NewRealtimeHandler creates the realtime handler
func NewRealtimeHandler(bus *realtime.Bus, upgrade *realtime.Handler) *RealtimeHandler {
	return &RealtimeHandler{bus: bus, upgrade: upgrade}
}

// Register mounts the realtime routes. The upgrade and status endpoints are
// public; everything else is admin-only.
func (h *RealtimeHandler) Register(router fiber.Router, authn *middleware.Authenticator) {
	grp := router.Group("/ws")
	grp.Get("/status", h.status)
	grp.Get("/stats", authn.RequireAdmin(), h.stats)
	grp.Get("/connections", authn.RequireAdmin(), h.connections)
	grp.Delete("/connections/:id", authn.RequireAdmin(), h.disconnect)
	grp.Post("/broadcast", authn.RequireAdmin(), h.broadcast)
	grp.Get("/activity", authn.RequireAdmin(), h.activity)
	grp.Get("/", h.upgrade.Upgrade)
}

func (h *RealtimeHandler) status(c *fiber.Ctx) error {
	return ok(c, h.bus.Status())
}

func (h *RealtimeHandler) stats(c *fiber.Ctx) error {
	return ok(c, h.bus.Stats())
}

func (h *RealtimeHandler) connections(c *fiber.Ctx) error {
	conns := h.bus.ListConnections()
	if conns == nil {
		conns = []realtime.ConnectionInfo{}
	}
	return ok(c, conns)
}

func (h *RealtimeHandler) disconnect(c *fiber.Ctx) error {
	if !h.bus.Disconnect(c.Params("id")) {
		return fail(c, fiber.StatusNotFound, "not_found", "connection not found", nil)
	}
	return okMessage(c, "connection closed")
}

type broadcastRequest struct {
	Message     interface{} `json:"message"`
	UserIDs     []int64     `json:"user_ids"`
	Collections []string    `json:"collections"`
}

func (h *RealtimeHandler) broadcast(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil || req.Message == nil {
		return fail(c, fiber.StatusBadRequest, "validation_failed", "message is required", nil)
	}
	sent := h.bus.Broadcast(req.Message, req.UserIDs, req.Collections)
	return ok(c, fiber.Map{"recipients": sent})
}

func (h *RealtimeHandler) activity(c *fiber.Ctx) error {
	entries := h.bus.Activity()
	if entries == nil {
		entries = []realtime.ActivityEntry{}
	}
	return ok(c, entries)
}
