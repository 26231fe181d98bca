// Package qmeta implements the user-table ingest registry: a sqlite-backed
// CRUD surface over UserTableIngestRequest, representative of how the
// control plane persists ingest bookkeeping distinct from the catalog
// data itself.
//
// Every write method opens a single transaction so that a request's
// initial row and its child parameter rows become visible to readers
// atomically; each QMeta's mutex (mu) additionally serialises the
// write/update sequence end to end, matching the "no reader sees the id
// before the transaction commits" requirement this registry is meant to
// demonstrate.
package qmeta

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// Status is a UserTableIngestRequest's lifecycle state. Transitions are
// strictly IN_PROGRESS -> {COMPLETED|FAILED|FAILED_LR} -> deleted.
type Status int

const (
	IN_PROGRESS Status = iota
	COMPLETED
	FAILED
	FAILED_LR
)

func (s Status) String() string {
	switch s {
	case IN_PROGRESS:
		return "IN_PROGRESS"
	case COMPLETED:
		return "COMPLETED"
	case FAILED:
		return "FAILED"
	case FAILED_LR:
		return "FAILED_LR"
	default:
		return "UNKNOWN"
	}
}

func parseStatus(s string) (Status, error) {
	switch s {
	case "IN_PROGRESS":
		return IN_PROGRESS, nil
	case "COMPLETED":
		return COMPLETED, nil
	case "FAILED":
		return FAILED, nil
	case "FAILED_LR":
		return FAILED_LR, nil
	default:
		return 0, fmt.Errorf("qmeta: unknown status %q: %w", s, qerr.ErrInvalidArg)
	}
}

// UserTableIngestRequest is the persistent record describing one
// user-table load through the control plane.
type UserTableIngestRequest struct {
	ID            int64
	Status        Status
	BeginTimeMs   int64
	EndTimeMs     int64 // 0 until the request finishes
	DeleteTimeMs  int64 // 0 unless tombstoned
	Error         string
	Database      string
	Table         string
	TableType     string
	IsTemporary   bool
	DataFormat    string
	NumChunks     int64
	NumRows       int64
	NumBytes      int64
	TransactionID string

	// Extended payloads, only populated when a caller asks for them.
	Schema   string
	Indexes  string
	Extended string
}

// ErrIngestRequestNotFound is returned when a request id has no matching
// row.
var ErrIngestRequestNotFound = fmt.Errorf("qmeta: ingest request not found: %w", qerr.ErrNotFound)

// QMeta is a sqlite-backed UserTableIngestRequest registry.
type QMeta struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the sqlite database at path and ensures its
// schema is current.
func Open(path string) (*QMeta, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("qmeta: create dir %q: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("qmeta: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("qmeta: set journal mode: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("qmeta: migrate: %w", err)
	}
	return &QMeta{db: db}, nil
}

// Close releases the underlying database handle.
func (q *QMeta) Close() error { return q.db.Close() }

// RegisterParams carries the fields registerRequest needs beyond the
// identifying database/table pair.
type RegisterParams struct {
	Database    string
	Table       string
	TableType   string
	IsTemporary bool
	DataFormat  string
	Schema      string
	Indexes     string
	Extended    string
}

// RegisterRequest inserts a new IN_PROGRESS row plus its {schema,
// indexes, extended} parameter rows in one transaction, then reads the
// row back so the returned value matches exactly what a subsequent
// reader would see.
func (q *QMeta) RegisterRequest(ctx context.Context, p RegisterParams) (*UserTableIngestRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("qmeta: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO requests (status, begin_time_ms, database_name, table_name, table_type, is_temporary, data_format)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		IN_PROGRESS.String(), now, p.Database, p.Table, p.TableType, boolToInt(p.IsTemporary), p.DataFormat)
	if err != nil {
		return nil, fmt.Errorf("qmeta: insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("qmeta: read inserted id: %w", err)
	}

	for _, param := range []struct{ kind, payload string }{
		{"schema", p.Schema},
		{"indexes", p.Indexes},
		{"extended", p.Extended},
	} {
		if param.payload == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO request_params (request_id, kind, payload) VALUES (?, ?, ?)`,
			id, param.kind, param.payload); err != nil {
			return nil, fmt.Errorf("qmeta: insert %s param: %w", param.kind, err)
		}
	}

	req, err := q.readLocked(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("qmeta: commit: %w", err)
	}
	return req, nil
}

// IngestFinished transitions id from IN_PROGRESS to a terminal status,
// recording endTime, error, and the final counters. Fails if the
// request is not currently IN_PROGRESS.
func (q *QMeta) IngestFinished(ctx context.Context, id int64, status Status, ingestErr string, txID string, numChunks, numRows, numBytes int64) (*UserTableIngestRequest, error) {
	if status == IN_PROGRESS {
		return nil, fmt.Errorf("qmeta: ingestFinished requires a terminal status: %w", qerr.ErrInvalidArg)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("qmeta: begin: %w", err)
	}
	defer tx.Rollback()

	current, err := q.readLocked(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if current.Status != IN_PROGRESS {
		return nil, fmt.Errorf("qmeta: request %d is %s, not IN_PROGRESS: %w", id, current.Status, qerr.ErrInvalidArg)
	}

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		UPDATE requests SET status = ?, end_time_ms = ?, error = ?, transaction_id = ?,
			num_chunks = ?, num_rows = ?, num_bytes = ?
		WHERE id = ?`,
		status.String(), now, ingestErr, txID, numChunks, numRows, numBytes, id); err != nil {
		return nil, fmt.Errorf("qmeta: update request: %w", err)
	}

	req, err := q.readLocked(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("qmeta: commit: %w", err)
	}
	return req, nil
}

// DatabaseDeleted tombstones every non-deleted row for db.
func (q *QMeta) DatabaseDeleted(ctx context.Context, database string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`UPDATE requests SET delete_time_ms = ? WHERE database_name = ? AND delete_time_ms IS NULL`,
		now, database)
	if err != nil {
		return fmt.Errorf("qmeta: databaseDeleted: %w", err)
	}
	return nil
}

// TableDeleted tombstones request id. Refused while the request is
// still IN_PROGRESS.
func (q *QMeta) TableDeleted(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("qmeta: begin: %w", err)
	}
	defer tx.Rollback()

	current, err := q.readLocked(ctx, tx, id, false)
	if err != nil {
		return err
	}
	if current.Status == IN_PROGRESS {
		return fmt.Errorf("qmeta: request %d still IN_PROGRESS: %w", id, qerr.ErrInvalidArg)
	}

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `UPDATE requests SET delete_time_ms = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("qmeta: tableDeleted: %w", err)
	}
	return tx.Commit()
}

// FindFilter narrows FindRequests. Database must be set if Table is.
type FindFilter struct {
	Database       string
	Table          string
	FilterByStatus bool
	Status         Status
	BeginTimeMs    int64
	EndTimeMs      int64
	Limit          int
	Extended       bool
}

// FindRequests returns at most Limit matching requests, newest first.
func (q *QMeta) FindRequests(ctx context.Context, f FindFilter) ([]*UserTableIngestRequest, error) {
	if f.Table != "" && f.Database == "" {
		return nil, fmt.Errorf("qmeta: table filter requires a database: %w", qerr.ErrInvalidArg)
	}

	query := `SELECT id, status, begin_time_ms, end_time_ms, delete_time_ms, error,
		database_name, table_name, table_type, is_temporary, data_format,
		num_chunks, num_rows, num_bytes, transaction_id
		FROM requests WHERE 1=1`
	var args []any
	if f.Database != "" {
		query += " AND database_name = ?"
		args = append(args, f.Database)
	}
	if f.Table != "" {
		query += " AND table_name = ?"
		args = append(args, f.Table)
	}
	if f.FilterByStatus {
		query += " AND status = ?"
		args = append(args, f.Status.String())
	}
	if f.BeginTimeMs > 0 {
		query += " AND begin_time_ms >= ?"
		args = append(args, f.BeginTimeMs)
	}
	if f.EndTimeMs > 0 {
		query += " AND (end_time_ms <= ? OR end_time_ms IS NULL)"
		args = append(args, f.EndTimeMs)
	}
	query += " ORDER BY begin_time_ms DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("qmeta: findRequests: %w", err)
	}
	defer rows.Close()

	var out []*UserTableIngestRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("qmeta: iterate requests: %w", err)
	}

	if f.Extended {
		for _, req := range out {
			if err := q.loadParams(ctx, q.db, req); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*UserTableIngestRequest, error) {
	req := &UserTableIngestRequest{}
	var status string
	var endTime, deleteTime sql.NullInt64
	var errMsg, tableType, dataFormat, txID sql.NullString
	var isTemp int
	if err := s.Scan(&req.ID, &status, &req.BeginTimeMs, &endTime, &deleteTime, &errMsg,
		&req.Database, &req.Table, &tableType, &isTemp, &dataFormat,
		&req.NumChunks, &req.NumRows, &req.NumBytes, &txID); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("qmeta: scan request: %w", err)
	}
	parsed, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	req.Status = parsed
	req.EndTimeMs = endTime.Int64
	req.DeleteTimeMs = deleteTime.Int64
	req.Error = errMsg.String
	req.TableType = tableType.String
	req.IsTemporary = isTemp != 0
	req.DataFormat = dataFormat.String
	req.TransactionID = txID.String
	return req, nil
}

func (q *QMeta) readLocked(ctx context.Context, tx *sql.Tx, id int64, extended bool) (*UserTableIngestRequest, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, status, begin_time_ms, end_time_ms, delete_time_ms, error,
		database_name, table_name, table_type, is_temporary, data_format,
		num_chunks, num_rows, num_bytes, transaction_id
		FROM requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrIngestRequestNotFound
		}
		return nil, err
	}
	if extended {
		if err := q.loadParams(ctx, tx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (q *QMeta) loadParams(ctx context.Context, db queryer, req *UserTableIngestRequest) error {
	rows, err := db.QueryContext(ctx, `SELECT kind, payload FROM request_params WHERE request_id = ?`, req.ID)
	if err != nil {
		return fmt.Errorf("qmeta: load params: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return fmt.Errorf("qmeta: scan param: %w", err)
		}
		switch kind {
		case "schema":
			req.Schema = payload
		case "indexes":
			req.Indexes = payload
		case "extended":
			req.Extended = payload
		}
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MarshalJSONPayload is a convenience for callers building the
// {schema, indexes, extended} blobs RegisterParams expects.
func MarshalJSONPayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("qmeta: marshal payload: %w", err)
	}
	return string(b), nil
}
