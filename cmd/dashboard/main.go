package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/water-compliance-api/internal/adapter/backend"
	httpadapter "github.com/couchcryptid/water-compliance-api/internal/adapter/http"
	"github.com/couchcryptid/water-compliance-api/internal/config"
	"github.com/couchcryptid/water-compliance-api/internal/dashboard"
	"github.com/couchcryptid/water-compliance-api/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open backend", "driver", cfg.BackendDriver, "error", err)
		os.Exit(1)
	}

	svc := dashboard.NewService(b, backend.Options(cfg), logger, metrics)
	srv := httpadapter.NewDashboardServer(cfg.HTTPAddr, svc, logger, metrics)

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := b.Close(); err != nil {
		logger.Error("backend close error", "error", err)
	}

	logger.Info("shutdown complete")
}
