package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst/qserv-sub016/internal/registry"
)

func TestStorePersistsWorkersAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.PutWorker(ctx, registry.WorkerConfig{Name: "worker01", SvcHost: "h", SvcPort: 5012, Status: registry.ENABLED}))
	require.NoError(t, s.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	workers, err := reopened.LoadWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	require.Equal(t, "worker01", workers[0].Name)
	require.Equal(t, registry.ENABLED, workers[0].Status)
}

func TestStoreDeleteWorker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()
	s, err := NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutWorker(ctx, registry.WorkerConfig{Name: "w", SvcHost: "h", SvcPort: 1, Status: registry.ENABLED}))
	require.NoError(t, s.DeleteWorker(ctx, "w"))
	workers, err := s.LoadWorkers(ctx)
	require.NoError(t, err)
	require.Empty(t, workers)
}

func TestStoreSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()
	s, err := NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, registry.DefaultSettings(), loaded)

	want := registry.Settings{HeartbeatIvalSec: 5, RequestExpirationIvalSec: 60, AutoRegisterWorkers: true, AutoRegisterCzars: false}
	require.NoError(t, s.SaveSettings(ctx, want))

	got, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
