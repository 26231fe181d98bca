// Package sqlite provides a SQLite-based registry.Store implementation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/lsst/qserv-sub016/internal/registry"
)

// Store is a SQLite-based registry.Store implementation.
type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

// NewStore opens a SQLite database at path and runs migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) LoadWorkers(ctx context.Context) ([]registry.WorkerConfig, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, svc_host, svc_port, status FROM workers")
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var result []registry.WorkerConfig
	for rows.Next() {
		var w registry.WorkerConfig
		var statusStr string
		if err := rows.Scan(&w.Name, &w.SvcHost, &w.SvcPort, &statusStr); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		status, err := registry.ParseStatus(statusStr)
		if err != nil {
			return nil, err
		}
		w.Status = status
		result = append(result, w)
	}
	return result, rows.Err()
}

func (s *Store) PutWorker(ctx context.Context, w registry.WorkerConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (name, svc_host, svc_port, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			svc_host = excluded.svc_host,
			svc_port = excluded.svc_port,
			status = excluded.status
	`, w.Name, w.SvcHost, w.SvcPort, w.Status.String())
	if err != nil {
		return fmt.Errorf("put worker %q: %w", w.Name, err)
	}
	return nil
}

func (s *Store) DeleteWorker(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM workers WHERE name = ?", name); err != nil {
		return fmt.Errorf("delete worker %q: %w", name, err)
	}
	return nil
}

func (s *Store) LoadCzars(ctx context.Context) ([]registry.CzarConfig, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, svc_host, svc_port, status FROM czars")
	if err != nil {
		return nil, fmt.Errorf("list czars: %w", err)
	}
	defer rows.Close()

	var result []registry.CzarConfig
	for rows.Next() {
		var z registry.CzarConfig
		var statusStr string
		if err := rows.Scan(&z.Name, &z.SvcHost, &z.SvcPort, &statusStr); err != nil {
			return nil, fmt.Errorf("scan czar: %w", err)
		}
		status, err := registry.ParseStatus(statusStr)
		if err != nil {
			return nil, err
		}
		z.Status = status
		result = append(result, z)
	}
	return result, rows.Err()
}

func (s *Store) PutCzar(ctx context.Context, z registry.CzarConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO czars (name, svc_host, svc_port, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			svc_host = excluded.svc_host,
			svc_port = excluded.svc_port,
			status = excluded.status
	`, z.Name, z.SvcHost, z.SvcPort, z.Status.String())
	if err != nil {
		return fmt.Errorf("put czar %q: %w", z.Name, err)
	}
	return nil
}

func (s *Store) DeleteCzar(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM czars WHERE name = ?", name); err != nil {
		return fmt.Errorf("delete czar %q: %w", name, err)
	}
	return nil
}

const (
	keyHeartbeatIvalSec         = "heartbeat_ival_sec"
	keyRequestExpirationIvalSec = "request_expiration_ival_sec"
	keyAutoRegisterWorkers      = "auto_register_workers"
	keyAutoRegisterCzars        = "auto_register_czars"
)

func (s *Store) LoadSettings(ctx context.Context) (registry.Settings, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return registry.Settings{}, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	raw := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return registry.Settings{}, fmt.Errorf("scan setting: %w", err)
		}
		raw[k] = v
	}
	if err := rows.Err(); err != nil {
		return registry.Settings{}, err
	}
	if len(raw) == 0 {
		return registry.DefaultSettings(), nil
	}

	cfg := registry.DefaultSettings()
	if v, ok := raw[keyHeartbeatIvalSec]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return registry.Settings{}, fmt.Errorf("parse %s: %w", keyHeartbeatIvalSec, err)
		}
		cfg.HeartbeatIvalSec = n
	}
	if v, ok := raw[keyRequestExpirationIvalSec]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return registry.Settings{}, fmt.Errorf("parse %s: %w", keyRequestExpirationIvalSec, err)
		}
		cfg.RequestExpirationIvalSec = n
	}
	cfg.AutoRegisterWorkers = raw[keyAutoRegisterWorkers] == "true"
	cfg.AutoRegisterCzars = raw[keyAutoRegisterCzars] == "true"
	return cfg, nil
}

func (s *Store) SaveSettings(ctx context.Context, cfg registry.Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	defer tx.Rollback()

	put := func(key, value string) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		return err
	}
	if err := put(keyHeartbeatIvalSec, strconv.Itoa(cfg.HeartbeatIvalSec)); err != nil {
		return fmt.Errorf("put %s: %w", keyHeartbeatIvalSec, err)
	}
	if err := put(keyRequestExpirationIvalSec, strconv.Itoa(cfg.RequestExpirationIvalSec)); err != nil {
		return fmt.Errorf("put %s: %w", keyRequestExpirationIvalSec, err)
	}
	if err := put(keyAutoRegisterWorkers, strconv.FormatBool(cfg.AutoRegisterWorkers)); err != nil {
		return fmt.Errorf("put %s: %w", keyAutoRegisterWorkers, err)
	}
	if err := put(keyAutoRegisterCzars, strconv.FormatBool(cfg.AutoRegisterCzars)); err != nil {
		return fmt.Errorf("put %s: %w", keyAutoRegisterCzars, err)
	}
	return tx.Commit()
}
