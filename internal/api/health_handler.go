package api

import (
	goruntime "runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nexabase-io/nexabase/internal/backup"
	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/observability"
)

// HealthHandler serves liveness, detailed system health, and the backup
// status and trigger routes.
type HealthHandler struct {
	db      *database.Connection
	backup  *backup.Scheduler
	metrics *observability.Metrics
	started time.Time
	version string
}

// NewHealthHandler creates the health handler
func NewHealthHandler(db *database.Connection, backupSched *backup.Scheduler, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		backup:  backupSched,
		started: time.Now().UTC(),
		version: version,
	}
}

// SetMetrics attaches the metrics registry for pool gauge updates
func (h *HealthHandler) SetMetrics(m *observability.Metrics) {
	h.metrics = m
}

// Register mounts the health and backup routes. The basic liveness probe is
// public; the detailed view and backup control are admin-only.
func (h *HealthHandler) Register(router fiber.Router, authn *middleware.Authenticator) {
	router.Get("/health", h.health)
	router.Get("/health/detailed", authn.RequireAdmin(), h.detailed)

	grp := router.Group("/backup", authn.RequireAdmin())
	grp.Get("/status", h.backupStatus)
	grp.Post("/run", h.runBackup)
}

func (h *HealthHandler) health(c *fiber.Ctx) error {
	status := "ok"
	if err := h.db.Ping(c.UserContext()); err != nil {
		status = "degraded"
	}
	return ok(c, fiber.Map{
		"status":  status,
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *HealthHandler) detailed(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := h.db.Ping(c.UserContext()); err != nil {
		dbStatus = err.Error()
	}

	pool := h.db.Stats()
	if h.metrics != nil {
		h.metrics.UpdatePoolStats(pool.InUse, pool.Idle, pool.Max)
	}

	system := fiber.Map{
		"goroutines": goruntime.NumGoroutine(),
		"num_cpu":    goruntime.NumCPU(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		system["memory_total_mb"] = vm.Total / 1024 / 1024
		system["memory_used_mb"] = vm.Used / 1024 / 1024
		system["memory_used_percent"] = vm.UsedPercent
	}

	out := fiber.Map{
		"status":   dbStatus,
		"version":  h.version,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"database": fiber.Map{"status": dbStatus, "pool": pool},
		"system":   system,
	}
	if h.backup != nil {
		out["backup"] = h.backup.Status()
	}
	return ok(c, out)
}

func (h *HealthHandler) backupStatus(c *fiber.Ctx) error {
	if h.backup == nil {
		return fail(c, fiber.StatusNotFound, "not_found", "backups are not configured", nil)
	}
	return ok(c, h.backup.Status())
}

func (h *HealthHandler) runBackup(c *fiber.Ctx) error {
	if h.backup == nil {
		return fail(c, fiber.StatusNotFound, "not_found", "backups are not configured", nil)
	}
	if err := h.backup.RunOnce(c.UserContext()); err != nil {
		return respondError(c, err)
	}
	return ok(c, h.backup.Status())
}
