package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/recruitflow/backend/internal/application/services"
	"github.com/recruitflow/backend/internal/domain/ports"
	"github.com/recruitflow/backend/internal/infrastructure/dispatch"
	"github.com/recruitflow/backend/internal/interfaces/rest"
	"github.com/recruitflow/backend/internal/logging"
	"github.com/recruitflow/backend/pkg/auth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the overdue sweeper",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var dispatcher ports.TaskDispatcher
	if cfg.Dispatch.WebhookURL != "" {
		dispatcher = dispatch.NewWebhookDispatcher(cfg.Dispatch.WebhookURL, cfg.Dispatch.Timeout, logging.Component(logger, "dispatch"))
	} else {
		dispatcher = dispatch.NewLogDispatcher(logging.Component(logger, "dispatch"))
	}

	sm, err := services.NewServiceManager(store, services.Options{
		Logger:          logger,
		Dispatcher:      dispatcher,
		OverdueSchedule: cfg.Scheduler.OverdueCron,
	})
	if err != nil {
		return err
	}
	sm.EventBus.SubscribeAll(services.AuditLogger(logging.Component(logger, "events")))

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: rest.NewRouter(sm, issuer, logging.Component(logger, "http")),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sm.Sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
