package sqljob

import (
	"context"

	"github.com/lsst/qserv-sub016/internal/control"
	"github.com/lsst/qserv-sub016/internal/job"
	"github.com/lsst/qserv-sub016/internal/registry"
)

type dbRequest struct {
	Database string
}

type enableRequest struct {
	Database string
	Enabled  bool
}

type tableRequest struct {
	Database string
	Table    string
	Schema   string // DDL fragment; empty for delete
}

// partitionRequest targets either the whole set of a table's partitions
// (Chunk < 0) or a single chunk/sub-chunk pair.
type partitionRequest struct {
	Database string
	Table    string
	Chunk    int32
	SubChunk int32
}

func fleetItems(cfg *registry.Configuration, opcode string, body []byte) []job.WorkItem {
	workers := cfg.EligibleWorkers()
	items := make([]job.WorkItem, len(workers))
	for i, w := range workers {
		items[i] = job.WorkItem{Worker: w.Name, Opcode: opcode, Body: body}
	}
	return items
}

func run(ctx context.Context, ctrl *control.Controller, jobType, opcode string, cfg *registry.Configuration, body []byte, priority job.Priority) (*job.Job, error) {
	j := job.New(jobType, priority, 0)
	items := fleetItems(cfg, opcode, body)
	if err := j.Start(ctx, ctrl, items, 0, nil); err != nil {
		return nil, err
	}
	return j, nil
}

// NewSqlCreateDbJob issues SQL_CREATE_DB to every eligible worker.
func NewSqlCreateDbJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database string, priority job.Priority) (*job.Job, error) {
	return run(ctx, ctrl, "SqlCreateDbJob", OpSqlCreateDb, cfg, encode(dbRequest{Database: database}), priority)
}

// NewSqlDeleteDbJob issues SQL_DELETE_DB to every eligible worker.
func NewSqlDeleteDbJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database string, priority job.Priority) (*job.Job, error) {
	return run(ctx, ctrl, "SqlDeleteDbJob", OpSqlDeleteDb, cfg, encode(dbRequest{Database: database}), priority)
}

// NewSqlEnableDbJob marks database queryable on every eligible worker.
func NewSqlEnableDbJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database string, priority job.Priority) (*job.Job, error) {
	return run(ctx, ctrl, "SqlEnableDbJob", OpSqlEnableDb, cfg, encode(enableRequest{Database: database, Enabled: true}), priority)
}

// NewSqlDisableDbJob marks database non-queryable on every eligible worker.
func NewSqlDisableDbJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database string, priority job.Priority) (*job.Job, error) {
	return run(ctx, ctrl, "SqlDisableDbJob", OpSqlDisableDb, cfg, encode(enableRequest{Database: database, Enabled: false}), priority)
}

// NewSqlCreateTableJob issues SQL_CREATE_TABLE to every eligible worker.
// schema is the worker-side DDL fragment (column list, engine options);
// its syntax is a worker-side concern.
func NewSqlCreateTableJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database, table, schema string, priority job.Priority) (*job.Job, error) {
	return run(ctx, ctrl, "SqlCreateTableJob", OpSqlCreateTable, cfg, encode(tableRequest{Database: database, Table: table, Schema: schema}), priority)
}

// NewSqlDeleteTableJob issues SQL_DELETE_TABLE to every eligible worker.
func NewSqlDeleteTableJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database, table string, priority job.Priority) (*job.Job, error) {
	return run(ctx, ctrl, "SqlDeleteTableJob", OpSqlDeleteTable, cfg, encode(tableRequest{Database: database, Table: table}), priority)
}

// NewSqlRemoveTablePartitionsJob drops every chunk partition of table on
// every eligible worker, leaving the table itself and its schema intact.
func NewSqlRemoveTablePartitionsJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database, table string, priority job.Priority) (*job.Job, error) {
	req := partitionRequest{Database: database, Table: table, Chunk: -1, SubChunk: -1}
	return run(ctx, ctrl, "SqlRemoveTablePartitionsJob", OpSqlRemoveTablePartitions, cfg, encode(req), priority)
}

// NewSqlDeleteTablePartitionJob drops a single chunk's partition of
// table, on every eligible worker that happens to hold chunk (a worker
// without that chunk's partition treats the request as a no-op success).
func NewSqlDeleteTablePartitionJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database, table string, chunk int32, priority job.Priority) (*job.Job, error) {
	req := partitionRequest{Database: database, Table: table, Chunk: chunk, SubChunk: -1}
	return run(ctx, ctrl, "SqlDeleteTablePartitionJob", OpSqlDeleteTablePartition, cfg, encode(req), priority)
}

// NewSqlCreateIndexesJob issues SQL_CREATE_INDEXES to every eligible
// worker for the given secondary indexes.
func NewSqlCreateIndexesJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database, table string, indexes []IndexDescriptor, priority job.Priority) (*job.Job, error) {
	return run(ctx, ctrl, "SqlCreateIndexesJob", OpSqlCreateIndexes, cfg, encode(indexesRequest{Database: database, Table: table, Indexes: indexes}), priority)
}

// NewSqlDropIndexesJob issues SQL_DROP_INDEXES to every eligible worker.
func NewSqlDropIndexesJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database, table string, indexes []IndexDescriptor, priority job.Priority) (*job.Job, error) {
	return run(ctx, ctrl, "SqlDropIndexesJob", OpSqlDropIndexes, cfg, encode(indexesRequest{Database: database, Table: table, Indexes: indexes}), priority)
}

// NewSqlGetIndexesJob polls every eligible worker's index set. Call
// Summary once the returned Job has finished to reduce the per-worker
// responses into a single IndexSummary.
func NewSqlGetIndexesJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database, table string, priority job.Priority) (*job.Job, error) {
	return run(ctx, ctrl, "SqlGetIndexesJob", OpSqlGetIndexes, cfg, encode(indexesRequest{Database: database, Table: table}), priority)
}

// Summary reduces a finished NewSqlGetIndexesJob's per-worker results
// into an IndexSummary. Workers that failed or timed out are treated as
// reporting no indexes, which pulls the summary toward INCOMPLETE.
func Summary(database, table string, j *job.Job) IndexSummary {
	perWorker := make(map[string][]IndexDescriptor)
	for _, r := range j.Results() {
		var res indexesResult
		if r.Status == job.SUCCESS && decode(r.Body, &res) == nil {
			perWorker[r.Worker] = res.Indexes
		} else {
			perWorker[r.Worker] = nil
		}
	}
	return summarizeIndexes(database, table, perWorker)
}
