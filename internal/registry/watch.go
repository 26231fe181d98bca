package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/lsst/qserv-sub016/internal/logging"
)

// workerDirectoryFile is the on-disk shape of the hot-reloadable worker
// directory: a flat JSON array, one entry per worker. Operators managing
// the fleet by file (rather than through PutWorker calls against a
// sqlite-backed Store) edit this file directly; FileWatcher picks up the
// change without a restart.
type workerDirectoryFile struct {
	Name    string `json:"name"`
	SvcHost string `json:"svcHost"`
	SvcPort int    `json:"svcPort"`
	Status  string `json:"status"`
}

// LoadWorkerDirectoryFile parses path's worker directory file into
// WorkerConfig entries.
func LoadWorkerDirectoryFile(path string) ([]WorkerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read worker directory %q: %w", path, err)
	}
	var entries []workerDirectoryFile
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("registry: parse worker directory %q: %w", path, err)
	}
	out := make([]WorkerConfig, 0, len(entries))
	for _, e := range entries {
		status, err := ParseStatus(e.Status)
		if err != nil {
			return nil, fmt.Errorf("registry: worker %q: %w", e.Name, err)
		}
		out = append(out, WorkerConfig{Name: e.Name, SvcHost: e.SvcHost, SvcPort: e.SvcPort, Status: status})
	}
	return out, nil
}

// FileWatcher watches a worker directory file for changes and replaces
// Configuration's worker set with the file's contents on every write,
// per §2.1's fsnotify-based hot-reload requirement. Unlike
// ApplyWorkerHeartbeat, a file reload is a full replace: a worker
// missing from the file is removed, matching file-based fleet
// management semantics (the file is the sole source of truth).
type FileWatcher struct {
	path   string
	cfg    *Configuration
	logger *slog.Logger
	watch  *fsnotify.Watcher
}

// NewFileWatcher starts watching path for changes. The caller must call
// Close when done.
func NewFileWatcher(path string, cfg *Configuration, logger *slog.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("registry: create watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("registry: watch %q: %w", path, err)
	}
	return &FileWatcher{path: path, cfg: cfg, logger: logging.Default(logger).With("component", "registry.filewatcher"), watch: w}, nil
}

// Run blocks, reloading on every write/create event until ctx is
// cancelled or the underlying watcher errors fatally.
func (w *FileWatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watch.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(ctx); err != nil {
				w.logger.Error("worker directory reload failed", "path", w.path, "error", err)
			}
		case err, ok := <-w.watch.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("worker directory watch error", "path", w.path, "error", err)
		}
	}
}

func (w *FileWatcher) reload(ctx context.Context) error {
	entries, err := LoadWorkerDirectoryFile(w.path)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[e.Name] = true
		if err := w.cfg.PutWorker(ctx, e); err != nil {
			return err
		}
	}
	for _, existing := range w.cfg.Workers() {
		if !seen[existing.Name] {
			if err := w.cfg.DeleteWorker(ctx, existing.Name); err != nil {
				return err
			}
		}
	}
	w.logger.Info("worker directory reloaded", "path", w.path, "workers", len(entries))
	return nil
}

// Close stops the watcher.
func (w *FileWatcher) Close() error { return w.watch.Close() }
