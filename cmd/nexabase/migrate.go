package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nexabase-io/nexabase/internal/config"
	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/schema"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			return err
		}

		registry := schema.NewRegistry(db)
		if err := registry.SweepTombstones(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Tombstone sweep failed")
		}

		log.Info().Msg("Migrations applied")
		return nil
	},
}
