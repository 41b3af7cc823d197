//go:build integration

package storage_test

import (
	"context"
	"testing"

	"github.com/dfmap/dfmap/internal/config"
	"github.com/dfmap/dfmap/internal/database"
	"github.com/dfmap/dfmap/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) config.DBConfig {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dfmap"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return config.DBConfig{
		Host:     host,
		Port:     port.Port(),
		Username: "postgres",
		Password: "postgres",
		Database: "dfmap",
	}
}

func TestPostgresBackend(t *testing.T) {
	dbCfg := startPostgres(t)

	admin := database.NewManager(dbCfg, "", zerolog.Nop())
	require.NoError(t, admin.Connect())
	require.False(t, admin.ShouldSaveLocal)
	require.NoError(t, admin.Setup())
	t.Cleanup(func() { _ = admin.Close() })

	fresh := func(t *testing.T) storage.Backend {
		require.NoError(t, admin.DB.Exec("TRUNCATE callers, rffs").Error)
		b, err := storage.NewBackend(config.StorageConfig{Type: "postgres"}, dbCfg, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, b.Init())
		t.Cleanup(func() { _ = b.Close() })
		return b
	}

	t.Run("create and list", func(t *testing.T) { testCreateList(t, fresh(t)) })
	t.Run("since", func(t *testing.T) { testSince(t, fresh(t)) })
	t.Run("update", func(t *testing.T) { testUpdate(t, fresh(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, fresh(t)) })
	t.Run("rffs", func(t *testing.T) { testRFFs(t, fresh(t)) })
}
