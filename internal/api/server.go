// Package api assembles the HTTP surface: fiber app, middleware chain, and
// every route group under /api.
package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/auth"
	"github.com/nexabase-io/nexabase/internal/backup"
	"github.com/nexabase-io/nexabase/internal/config"
	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/middleware"
	"github.com/nexabase-io/nexabase/internal/observability"
	"github.com/nexabase-io/nexabase/internal/ownership"
	"github.com/nexabase-io/nexabase/internal/permissions"
	"github.com/nexabase-io/nexabase/internal/ratelimit"
	"github.com/nexabase-io/nexabase/internal/realtime"
	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
	"github.com/nexabase-io/nexabase/internal/settings"
)

// Dependencies carries everything the server wires into routes
type Dependencies struct {
	Config    *config.Config
	DB        *database.Connection
	Registry  *schema.Registry
	Engine    *records.Engine
	Resolver  *permissions.Resolver
	Ownership *ownership.Service
	Auth      *auth.Service
	OAuth     *auth.OAuthRegistry
	Settings  *settings.Cache
	Bus       *realtime.Bus
	Realtime  *realtime.Handler
	Backup    *backup.Scheduler
	RateStore ratelimit.Store
	Metrics   *observability.Metrics
	Version   string
}

// Server is the assembled HTTP server
type Server struct {
	app *fiber.App
	cfg *config.Config
}

// NewServer builds the fiber app, installs the middleware chain, and mounts
// all route groups.
func NewServer(deps Dependencies) *Server {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		AppName:               "nexabase",
		ErrorHandler:          errorHandler,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: cfg.Server.CORSOrigins != "*",
	}))
	app.Use(compress.New())
	if deps.Metrics != nil {
		app.Use(deps.Metrics.FiberMiddleware())
	}
	app.Use(middleware.RequestLogger(middleware.LoggerConfig{
		SkipPaths:            []string{"/api/health", "/metrics", "/api/ws/status"},
		SlowRequestThreshold: time.Second,
	}))

	app.Get("/metrics", observability.PrometheusHandler())

	authn := middleware.NewAuthenticator(deps.Auth)

	api := app.Group("/api")
	if deps.RateStore != nil {
		api.Use(ratelimit.Middleware(deps.RateStore, rateLimitKey, func() int {
			return deps.Settings.Int("api", "rate_limit_requests_per_minute", cfg.RateLimit.RequestsPerMinute)
		}))
	}

	secureCookies := cfg.Server.TLSCertFile != ""

	NewAuthHandler(deps.Auth, deps.OAuth, cfg.Auth.LoginRatePerMin, secureCookies).Register(api, authn)
	NewCollectionsHandler(deps.Registry).Register(api, authn)
	NewRecordsHandler(deps.Registry, deps.Engine, deps.Resolver, deps.Ownership).Register(api, authn)
	NewPermissionsHandler(deps.Registry, deps.Resolver).Register(api, authn)
	NewOwnershipHandler(deps.Registry, deps.Ownership).Register(api, authn)
	NewUsersHandler(deps.Auth, deps.Resolver.Repo()).Register(api, authn)
	NewSettingsHandler(deps.Settings).Register(api, authn)

	health := NewHealthHandler(deps.DB, deps.Backup, deps.Version)
	health.SetMetrics(deps.Metrics)
	health.Register(api, authn)

	if cfg.Realtime.Enabled && deps.Realtime != nil {
		NewRealtimeHandler(deps.Bus, deps.Realtime).Register(api, authn)
	}

	return &Server{app: app, cfg: cfg}
}

// rateLimitKey keys by authenticated user when the caller is already
// resolved, otherwise by client IP.
func rateLimitKey(c *fiber.Ctx) string {
	if caller := middleware.CallerFrom(c); caller != nil {
		return "user:" + strconv.FormatInt(caller.UserID, 10)
	}
	return ratelimit.IPKey(c)
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown is called
func (s *Server) Listen() error {
	addr := s.cfg.Server.Address()
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		log.Info().Str("addr", addr).Msg("HTTPS server listening")
		return s.app.ListenTLS(addr, s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	}
	log.Info().Str("addr", addr).Msg("HTTP server listening")
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests before closing listeners
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}
