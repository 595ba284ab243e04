package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nexabase-io/nexabase/internal/api"
	"github.com/nexabase-io/nexabase/internal/auth"
	"github.com/nexabase-io/nexabase/internal/backup"
	"github.com/nexabase-io/nexabase/internal/config"
	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/email"
	"github.com/nexabase-io/nexabase/internal/observability"
	"github.com/nexabase-io/nexabase/internal/ownership"
	"github.com/nexabase-io/nexabase/internal/permissions"
	"github.com/nexabase-io/nexabase/internal/ratelimit"
	"github.com/nexabase-io/nexabase/internal/realtime"
	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
	"github.com/nexabase-io/nexabase/internal/settings"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Nexabase server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Msg("Starting Nexabase")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	registry := schema.NewRegistry(db)
	if err := registry.SweepTombstones(ctx); err != nil {
		log.Warn().Err(err).Msg("Tombstone sweep failed")
	}

	settingsCache := settings.NewCache(settings.NewRepository(db))
	if err := settingsCache.Load(ctx); err != nil {
		return err
	}

	var mailer auth.Mailer = auth.LogMailer{}
	if cfg.SMTP.Enabled {
		mailer = email.NewSMTPMailer(cfg.SMTP)
	}

	authSvc := auth.NewService(db, cfg.Auth, mailer)
	authSvc.SetSettings(settingsCache)
	if err := authSvc.EnsureAdmin(ctx, cfg.Admin); err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	permRepo := permissions.NewRepository(db)
	resolver := permissions.NewResolver(permRepo)

	bus := realtime.NewBus(cfg.Realtime, realtime.NewResolverChecker(registry, resolver))
	bus.SetMetrics(metrics)

	engine := records.NewEngine(db, bus)
	ownSvc := ownership.NewService(db, registry, engine)
	rtHandler := realtime.NewHandler(bus, authSvc, cfg.Realtime)

	rateStore, err := ratelimit.NewStore(cfg.RateLimit)
	if err != nil {
		return err
	}
	defer rateStore.Close()

	var backupSched *backup.Scheduler
	if cfg.Backup.Enabled {
		store, err := backup.NewS3Store(cfg.Backup)
		if err != nil {
			return err
		}
		backupSched = backup.NewScheduler(cfg.Backup, db, store)
		backupSched.SetMetrics(metrics)
		if err := backupSched.Start(ctx); err != nil {
			return err
		}
		defer backupSched.Stop()
	}

	server := api.NewServer(api.Dependencies{
		Config:    cfg,
		DB:        db,
		Registry:  registry,
		Engine:    engine,
		Resolver:  resolver,
		Ownership: ownSvc,
		Auth:      authSvc,
		OAuth:     auth.NewOAuthRegistry(),
		Settings:  settingsCache,
		Bus:       bus,
		Realtime:  rtHandler,
		Backup:    backupSched,
		RateStore: rateStore,
		Metrics:   metrics,
		Version:   Version,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Listen()
	})

	if cfg.Realtime.Enabled {
		g.Go(func() error {
			bus.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		authSvc.Blacklist().RunSweeper(gctx, time.Hour)
		return nil
	})

	// Drain order on shutdown: stop accepting requests first, then the
	// dispatcher and background loops exit via context.
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		return server.Shutdown(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}
