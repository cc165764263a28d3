package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"taskkash/internal/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool.Pool); err != nil {
			return err
		}
		v, err := db.MigrationVersion(ctx, pool.Pool)
		if err != nil {
			return err
		}
		log.Info().Int64("version", v).Msg("Database schema is up to date")
		return nil
	},
}
