package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/recruitflow/backend/internal/config"
	"github.com/recruitflow/backend/internal/domain/ports"
	"github.com/recruitflow/backend/internal/infrastructure/database"
	"github.com/recruitflow/backend/internal/infrastructure/memory"
	"github.com/recruitflow/backend/internal/infrastructure/persistence"
	"github.com/recruitflow/backend/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Recruitment workflow orchestration service",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: ./config.yaml or ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.Version = version
}

// setup loads config and installs the default logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.Init(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openStore returns the configured store and a closer for it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.Store, func(), error) {
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage; data is lost on exit")
		return memory.NewStore().Ports(), func() {}, nil
	}

	conn, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return ports.Store{}, nil, err
	}
	logger.Info("database connection established", "host", cfg.Database.Host, "database", cfg.Database.Name)
	if err := persistence.Migrate(ctx, conn.DB()); err != nil {
		_ = conn.Close()
		return ports.Store{}, nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	closer := func() {
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}
	return persistence.NewStore(conn.DB(), logging.Component(logger, "persistence")), closer, nil
}
