// Package registry holds the worker/czar directory and the small set of
// persisted settings the Controller consults at startup and on every
// heartbeat sweep: who is a fleet member, whether they are eligible for
// job fan-out, and the timer periods that govern heartbeats and request
// expiration.
//
// Registry is not on the ingest or query hot path. It is read once per
// heartbeat interval and written rarely (worker add/remove, operator
// edits). Persistence must not block Job dispatch.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// Status is a worker or czar's eligibility for job fan-out.
type Status int

const (
	ENABLED Status = iota
	DISABLED
	READ_ONLY
)

func (s Status) String() string {
	switch s {
	case ENABLED:
		return "ENABLED"
	case DISABLED:
		return "DISABLED"
	case READ_ONLY:
		return "READ_ONLY"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus parses the String() form back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "ENABLED":
		return ENABLED, nil
	case "DISABLED":
		return DISABLED, nil
	case "READ_ONLY":
		return READ_ONLY, nil
	default:
		return 0, fmt.Errorf("registry: unknown status %q: %w", s, qerr.ErrInvalidArg)
	}
}

// Eligible reports whether a worker in this status may receive
// fanned-out job requests: ENABLED and not READ_ONLY.
func (s Status) Eligible() bool { return s == ENABLED }

// WorkerConfig is one worker node's directory entry.
type WorkerConfig struct {
	Name    string
	SvcHost string
	SvcPort int
	Status  Status
}

// CzarConfig is one czar (query-frontend) node's directory entry.
// Czars are tracked the same way as workers but never receive SQL/Replica
// job requests.
type CzarConfig struct {
	Name    string
	SvcHost string
	SvcPort int
	Status  Status
}

// Settings holds the small set of timer periods and auto-registration
// flags the Controller reads at startup.
type Settings struct {
	HeartbeatIvalSec       int
	RequestExpirationIvalSec int
	AutoRegisterWorkers    bool
	AutoRegisterCzars      bool
}

// DefaultSettings returns the floor values named in the spec:
// registry.heartbeat-ival-sec has a minimum of 1s.
func DefaultSettings() Settings {
	return Settings{HeartbeatIvalSec: 1, RequestExpirationIvalSec: 0}
}

// Validate enforces the heartbeat-interval floor.
func (s Settings) Validate() error {
	if s.HeartbeatIvalSec < 1 {
		return fmt.Errorf("registry: heartbeat-ival-sec %d below minimum 1: %w", s.HeartbeatIvalSec, qerr.ErrConfig)
	}
	return nil
}

// Store persists the worker/czar directory and Settings. Implementations
// live in registry/memory (tests) and registry/sqlite (production).
type Store interface {
	LoadWorkers(ctx context.Context) ([]WorkerConfig, error)
	PutWorker(ctx context.Context, w WorkerConfig) error
	DeleteWorker(ctx context.Context, name string) error

	LoadCzars(ctx context.Context) ([]CzarConfig, error)
	PutCzar(ctx context.Context, c CzarConfig) error
	DeleteCzar(ctx context.Context, name string) error

	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// ErrNotFound is returned by Registry lookups that miss.
var ErrNotFound = fmt.Errorf("registry: not found: %w", qerr.ErrNotFound)

// HeartbeatEntry is one live-worker or live-czar observation reported by
// the service registry's heartbeat sweep.
type HeartbeatEntry struct {
	Name    string
	SvcHost string
	SvcPort int
}

// Configuration is the in-memory directory Controller consults; it
// caches Store's contents and serializes concurrent reads/writes with a
// mutex, matching the teacher's in-memory Store pattern in
// internal/config/memory (cache-plus-backing-store, not a bare interface
// wrapper).
type Configuration struct {
	store Store

	mu      sync.Mutex
	workers map[string]WorkerConfig
	czars   map[string]CzarConfig
	cfg     Settings
}

// Load constructs a Configuration backed by store, reading its current
// contents into memory.
func Load(ctx context.Context, store Store) (*Configuration, error) {
	workers, err := store.LoadWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: load workers: %w", err)
	}
	czars, err := store.LoadCzars(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: load czars: %w", err)
	}
	settings, err := store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: load settings: %w", err)
	}
	if settings.HeartbeatIvalSec == 0 {
		settings = DefaultSettings()
	}

	c := &Configuration{
		store:   store,
		workers: make(map[string]WorkerConfig, len(workers)),
		czars:   make(map[string]CzarConfig, len(czars)),
		cfg:     settings,
	}
	for _, w := range workers {
		c.workers[w.Name] = w
	}
	for _, z := range czars {
		c.czars[z.Name] = z
	}
	return c, nil
}

// Settings returns the currently loaded timer/auto-registration
// settings.
func (c *Configuration) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetSettings persists and applies new settings.
func (c *Configuration) SetSettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := c.store.SaveSettings(ctx, s); err != nil {
		return fmt.Errorf("registry: save settings: %w", err)
	}
	c.mu.Lock()
	c.cfg = s
	c.mu.Unlock()
	return nil
}

// Worker returns a copy of the named worker's entry.
func (c *Configuration) Worker(name string) (WorkerConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workers[name]
	if !ok {
		return WorkerConfig{}, fmt.Errorf("registry: worker %q: %w", name, ErrNotFound)
	}
	return w, nil
}

// Workers returns every worker entry, in no particular order.
func (c *Configuration) Workers() []WorkerConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WorkerConfig, 0, len(c.workers))
	for _, w := range c.workers {
		out = append(out, w)
	}
	return out
}

// EligibleWorkers returns every ENABLED worker, matching the fan-out
// eligibility rule of "all or only ENABLED && !READ-ONLY".
func (c *Configuration) EligibleWorkers() []WorkerConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WorkerConfig, 0, len(c.workers))
	for _, w := range c.workers {
		if w.Status.Eligible() {
			out = append(out, w)
		}
	}
	return out
}

// PutWorker persists and caches w.
func (c *Configuration) PutWorker(ctx context.Context, w WorkerConfig) error {
	if w.Name == "" {
		return fmt.Errorf("registry: worker name is required: %w", qerr.ErrInvalidArg)
	}
	if err := c.store.PutWorker(ctx, w); err != nil {
		return fmt.Errorf("registry: put worker %q: %w", w.Name, err)
	}
	c.mu.Lock()
	c.workers[w.Name] = w
	c.mu.Unlock()
	return nil
}

// DeleteWorker removes the named worker.
func (c *Configuration) DeleteWorker(ctx context.Context, name string) error {
	if err := c.store.DeleteWorker(ctx, name); err != nil {
		return fmt.Errorf("registry: delete worker %q: %w", name, err)
	}
	c.mu.Lock()
	delete(c.workers, name)
	c.mu.Unlock()
	return nil
}

// Czars returns every czar entry.
func (c *Configuration) Czars() []CzarConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CzarConfig, 0, len(c.czars))
	for _, z := range c.czars {
		out = append(out, z)
	}
	return out
}

// PutCzar persists and caches z.
func (c *Configuration) PutCzar(ctx context.Context, z CzarConfig) error {
	if z.Name == "" {
		return fmt.Errorf("registry: czar name is required: %w", qerr.ErrInvalidArg)
	}
	if err := c.store.PutCzar(ctx, z); err != nil {
		return fmt.Errorf("registry: put czar %q: %w", z.Name, err)
	}
	c.mu.Lock()
	c.czars[z.Name] = z
	c.mu.Unlock()
	return nil
}

// ApplyWorkerHeartbeat folds one heartbeat sweep's worker observations
// into the directory: an entry matching an existing worker by name
// updates its host/port and marks it ENABLED; an unmatched entry is
// appended only when autoRegister is set, per the spec's
// controller.auto-register-workers flag.
func (c *Configuration) ApplyWorkerHeartbeat(ctx context.Context, entries []HeartbeatEntry, autoRegister bool) error {
	for _, e := range entries {
		w, err := c.Worker(e.Name)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if !autoRegister {
				continue
			}
			w = WorkerConfig{Name: e.Name}
		}
		w.SvcHost, w.SvcPort, w.Status = e.SvcHost, e.SvcPort, ENABLED
		if err := c.PutWorker(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// ApplyCzarHeartbeat is ApplyWorkerHeartbeat's czar counterpart, gated by
// controller.auto-register-czars.
func (c *Configuration) ApplyCzarHeartbeat(ctx context.Context, entries []HeartbeatEntry, autoRegister bool) error {
	for _, e := range entries {
		var z CzarConfig
		found := false
		for _, existing := range c.Czars() {
			if existing.Name == e.Name {
				z, found = existing, true
				break
			}
		}
		if !found {
			if !autoRegister {
				continue
			}
			z = CzarConfig{Name: e.Name}
		}
		z.SvcHost, z.SvcPort, z.Status = e.SvcHost, e.SvcPort, ENABLED
		if err := c.PutCzar(ctx, z); err != nil {
			return err
		}
	}
	return nil
}
