package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// inMemoryStore is a minimal Store used only by this file's tests, kept
// local (instead of importing internal/registry/memory) to avoid an
// import cycle: this file is part of package registry but needs access
// to the unexported workerDirectoryFile type and w.reload.
type inMemoryStore struct {
	mu       sync.RWMutex
	workers  map[string]WorkerConfig
	czars    map[string]CzarConfig
	settings Settings
}

var _ Store = (*inMemoryStore)(nil)

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		workers:  make(map[string]WorkerConfig),
		czars:    make(map[string]CzarConfig),
		settings: DefaultSettings(),
	}
}

func (s *inMemoryStore) LoadWorkers(ctx context.Context) ([]WorkerConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WorkerConfig, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out, nil
}

func (s *inMemoryStore) PutWorker(ctx context.Context, w WorkerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.Name] = w
	return nil
}

func (s *inMemoryStore) DeleteWorker(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, name)
	return nil
}

func (s *inMemoryStore) LoadCzars(ctx context.Context) ([]CzarConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CzarConfig, 0, len(s.czars))
	for _, z := range s.czars {
		out = append(out, z)
	}
	return out, nil
}

func (s *inMemoryStore) PutCzar(ctx context.Context, z CzarConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.czars[z.Name] = z
	return nil
}

func (s *inMemoryStore) DeleteCzar(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.czars, name)
	return nil
}

func (s *inMemoryStore) LoadSettings(ctx context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *inMemoryStore) SaveSettings(ctx context.Context, cfg Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = cfg
	return nil
}

func writeDirectoryFile(t *testing.T, path string, entries []workerDirectoryFile) {
	t.Helper()
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFileWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workers.json")
	writeDirectoryFile(t, path, []workerDirectoryFile{
		{Name: "worker01", SvcHost: "h1", SvcPort: 5012, Status: "ENABLED"},
	})

	cfg, err := Load(context.Background(), newInMemoryStore())
	require.NoError(t, err)

	w, err := NewFileWatcher(path, cfg, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, w.reload(ctx))
	workers := cfg.Workers()
	require.Len(t, workers, 1)
	require.Equal(t, "worker01", workers[0].Name)

	writeDirectoryFile(t, path, []workerDirectoryFile{
		{Name: "worker02", SvcHost: "h2", SvcPort: 5012, Status: "READ_ONLY"},
	})

	require.Eventually(t, func() bool {
		workers := cfg.Workers()
		return len(workers) == 1 && workers[0].Name == "worker02"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestLoadWorkerDirectoryFileRejectsBadStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.json")
	writeDirectoryFile(t, path, []workerDirectoryFile{{Name: "w", Status: "NOT_A_STATUS"}})

	_, err := LoadWorkerDirectoryFile(path)
	require.Error(t, err)
}
