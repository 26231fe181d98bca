package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst/qserv-sub016/internal/registry"
	"github.com/lsst/qserv-sub016/internal/registry/memory"
)

func TestLoadStartsEmptyWithDefaultSettings(t *testing.T) {
	cfg, err := registry.Load(context.Background(), memory.NewStore())
	require.NoError(t, err)
	require.Empty(t, cfg.Workers())
	require.Equal(t, 1, cfg.Settings().HeartbeatIvalSec)
}

func TestPutWorkerIsVisibleAndEligible(t *testing.T) {
	cfg, err := registry.Load(context.Background(), memory.NewStore())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cfg.PutWorker(ctx, registry.WorkerConfig{Name: "worker01", SvcHost: "10.0.0.1", SvcPort: 5012, Status: registry.ENABLED}))
	require.NoError(t, cfg.PutWorker(ctx, registry.WorkerConfig{Name: "worker02", SvcHost: "10.0.0.2", SvcPort: 5012, Status: registry.READ_ONLY}))

	w, err := cfg.Worker("worker01")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", w.SvcHost)

	eligible := cfg.EligibleWorkers()
	require.Len(t, eligible, 1)
	require.Equal(t, "worker01", eligible[0].Name)
}

func TestWorkerLookupMissReturnsErrNotFound(t *testing.T) {
	cfg, err := registry.Load(context.Background(), memory.NewStore())
	require.NoError(t, err)

	_, err = cfg.Worker("nope")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestApplyWorkerHeartbeatUpdatesExistingAndSkipsUnregisteredWhenAutoRegisterOff(t *testing.T) {
	cfg, err := registry.Load(context.Background(), memory.NewStore())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, cfg.PutWorker(ctx, registry.WorkerConfig{Name: "worker01", SvcHost: "old-host", SvcPort: 1, Status: registry.DISABLED}))

	entries := []registry.HeartbeatEntry{
		{Name: "worker01", SvcHost: "new-host", SvcPort: 5012},
		{Name: "worker02", SvcHost: "fresh-host", SvcPort: 5012},
	}
	require.NoError(t, cfg.ApplyWorkerHeartbeat(ctx, entries, false))

	w, err := cfg.Worker("worker01")
	require.NoError(t, err)
	require.Equal(t, "new-host", w.SvcHost)
	require.Equal(t, registry.ENABLED, w.Status)

	_, err = cfg.Worker("worker02")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestApplyWorkerHeartbeatAutoRegistersWhenEnabled(t *testing.T) {
	cfg, err := registry.Load(context.Background(), memory.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	entries := []registry.HeartbeatEntry{{Name: "worker03", SvcHost: "h", SvcPort: 1}}
	require.NoError(t, cfg.ApplyWorkerHeartbeat(ctx, entries, true))

	w, err := cfg.Worker("worker03")
	require.NoError(t, err)
	require.Equal(t, registry.ENABLED, w.Status)
}

func TestSettingsValidateRejectsBelowFloor(t *testing.T) {
	require.Error(t, registry.Settings{HeartbeatIvalSec: 0}.Validate())
	require.NoError(t, registry.Settings{HeartbeatIvalSec: 1}.Validate())
}

func TestStatusParseRoundTrip(t *testing.T) {
	for _, s := range []registry.Status{registry.ENABLED, registry.DISABLED, registry.READ_ONLY} {
		parsed, err := registry.ParseStatus(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
	_, err := registry.ParseStatus("bogus")
	require.Error(t, err)
}
