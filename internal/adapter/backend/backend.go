// Package backend selects the dashboard data source from configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/water-compliance-api/internal/adapter/postgres"
	"github.com/couchcryptid/water-compliance-api/internal/adapter/postgrest"
	"github.com/couchcryptid/water-compliance-api/internal/config"
	"github.com/couchcryptid/water-compliance-api/internal/dashboard"
)

// Backend is a dashboard.Backend that owns a connection.
type Backend interface {
	dashboard.Backend
	Close() error
}

var (
	_ Backend = (*postgrest.Client)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Open connects to the backend named by cfg.BackendDriver.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.BackendDriver {
	case config.DriverPostgREST:
		logger.Info("using postgrest backend", "url", cfg.PostgRESTURL)
		return postgrest.NewClient(cfg.PostgRESTURL, cfg.PostgRESTAPIKey, cfg.BackendTimeout, logger), nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.BackendTimeout, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres backend")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend driver %q", cfg.BackendDriver)
	}
}

// Options returns the dashboard listing sizes from cfg.
func Options(cfg *config.Config) dashboard.Options {
	return dashboard.Options{
		PageSize:        cfg.PageSize,
		CountyLimit:     cfg.CountyLimit,
		PopulationLimit: cfg.PopulationLimit,
	}
}
