package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/config"
	"github.com/loschorros/backend/internal/repository/memory"
	"github.com/loschorros/backend/internal/repository/sqlite"
	"github.com/loschorros/backend/pkg/logx"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	log := logx.Discard()

	repo, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverMemory}, log, Options{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Repository{}, repo)

	repo, err = Open(ctx, config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "chorros.db"),
	}, log, Options{})
	require.NoError(t, err)
	defer repo.Close()
	assert.IsType(t, &sqlite.Repository{}, repo)

	_, err = Open(ctx, config.DatabaseConfig{Driver: "oracle"}, log, Options{})
	assert.Error(t, err)
}

func TestOpenPostgresFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := config.DatabaseConfig{Driver: config.DriverPostgres, URL: "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"}

	repo, err := Open(ctx, cfg, logx.Discard(), Options{FallbackToMemory: true})
	require.NoError(t, err)
	assert.IsType(t, &memory.Repository{}, repo)

	_, err = Open(ctx, cfg, logx.Discard(), Options{})
	assert.Error(t, err)
}
