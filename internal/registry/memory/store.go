// Package memory provides an in-memory registry.Store implementation,
// for tests and for single-node operation without a configuration
// database.
package memory

import (
	"context"
	"sync"

	"github.com/lsst/qserv-sub016/internal/registry"
)

// Store is an in-memory registry.Store. Configuration is not persisted
// across restarts.
type Store struct {
	mu       sync.RWMutex
	workers  map[string]registry.WorkerConfig
	czars    map[string]registry.CzarConfig
	settings registry.Settings
}

var _ registry.Store = (*Store)(nil)

// NewStore returns an empty in-memory Store with default Settings.
func NewStore() *Store {
	return &Store{
		workers:  make(map[string]registry.WorkerConfig),
		czars:    make(map[string]registry.CzarConfig),
		settings: registry.DefaultSettings(),
	}
}

func (s *Store) LoadWorkers(ctx context.Context) ([]registry.WorkerConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]registry.WorkerConfig, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out, nil
}

func (s *Store) PutWorker(ctx context.Context, w registry.WorkerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.Name] = w
	return nil
}

func (s *Store) DeleteWorker(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, name)
	return nil
}

func (s *Store) LoadCzars(ctx context.Context) ([]registry.CzarConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]registry.CzarConfig, 0, len(s.czars))
	for _, z := range s.czars {
		out = append(out, z)
	}
	return out, nil
}

func (s *Store) PutCzar(ctx context.Context, z registry.CzarConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.czars[z.Name] = z
	return nil
}

func (s *Store) DeleteCzar(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.czars, name)
	return nil
}

func (s *Store) LoadSettings(ctx context.Context) (registry.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, cfg registry.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = cfg
	return nil
}
