package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/repository/storetest"
	"github.com/loschorros/backend/pkg/logx"
)

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.DataRepository {
		repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "chorros.db"), logx.Discard())
		require.NoError(t, err)
		t.Cleanup(repo.Close)
		return repo
	})
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chorros.db")

	repo, err := Open(ctx, path, logx.Discard())
	require.NoError(t, err)
	require.NoError(t, repo.SeedRegistry(ctx, registry.SeedSegments(), registry.SeedRoutes()))
	_, err = repo.ReplaceDay(ctx, 2, "2024-03-11", storetest.Day(2, "2024-03-11", 3))
	require.NoError(t, err)
	repo.Close()

	reopened, err := Open(ctx, path, logx.Discard())
	require.NoError(t, err)
	defer reopened.Close()
	marker, err := reopened.ForecastDay(ctx, 2, "2024-03-11")
	require.NoError(t, err)
	require.NotNil(t, marker)
	require.Equal(t, 24, marker.Rows)
}
