package backend

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/water-compliance-api/internal/adapter/postgrest"
	"github.com/couchcryptid/water-compliance-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_PostgREST(t *testing.T) {
	cfg := &config.Config{
		BackendDriver:  config.DriverPostgREST,
		PostgRESTURL:   "http://localhost:54321/rest/v1",
		BackendTimeout: time.Second,
	}

	b, err := Open(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &postgrest.Client{}, b)
	assert.NoError(t, b.Close())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{BackendDriver: "mysql"}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestOptions(t *testing.T) {
	opts := Options(&config.Config{PageSize: 20, CountyLimit: 50, PopulationLimit: 3000})
	assert.Equal(t, 20, opts.PageSize)
	assert.Equal(t, 50, opts.CountyLimit)
	assert.Equal(t, 3000, opts.PopulationLimit)
}
