package main

import (
	"github.com/spf13/cobra"

	"github.com/recruitflow/backend/internal/config"
	"github.com/recruitflow/backend/internal/infrastructure/database"
	"github.com/recruitflow/backend/internal/infrastructure/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the MySQL schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.Storage.Driver != config.DriverMySQL {
			logger.Info("nothing to migrate", "driver", cfg.Storage.Driver)
			return nil
		}
		conn, err := database.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := persistence.Migrate(cmd.Context(), conn.DB()); err != nil {
			return err
		}
		logger.Info("schema up to date", "tables", len(persistence.SchemaStatements))
		return nil
	},
}
