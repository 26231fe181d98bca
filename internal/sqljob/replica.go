package sqljob

import (
	"context"

	"github.com/lsst/qserv-sub016/internal/control"
	"github.com/lsst/qserv-sub016/internal/job"
	"github.com/lsst/qserv-sub016/internal/registry"
)

// ReplicaStatus describes one chunk replica as reported by a worker.
type ReplicaStatus struct {
	Database string
	Chunk    int32
	Rows     int64
	Checksum uint64
}

type replicateRequest struct {
	Database     string
	Chunk        int32
	SourceWorker string
}

type deleteRequest struct {
	Database string
	Chunk    int32
}

type findRequest struct {
	Database string
	Chunk    int32
}

type findAllRequest struct {
	Database string // empty means every database the worker hosts
}

type findAllResult struct {
	Replicas []ReplicaStatus
}

type echoRequest struct {
	Payload []byte
}

type directorIndexRequest struct {
	Database string
	Table    string
	Chunk    int32
}

// DirectorIndexRecord is one (object id -> sub-chunk) entry from a
// director table's index, used by the czar to route object-id-qualified
// queries to the right sub-chunk without scanning every worker.
type DirectorIndexRecord struct {
	ObjectID int64
	Chunk    int32
	SubChunk int32
}

type directorIndexResult struct {
	Records []DirectorIndexRecord
}

// NewReplicationJob instructs worker to create a replica of
// database/chunk by pulling it from sourceWorker. A single-item Job:
// exactly one Request against the destination worker.
func NewReplicationJob(ctx context.Context, ctrl *control.Controller, worker, sourceWorker, database string, chunk int32, priority job.Priority) (*job.Job, error) {
	j := job.New("ReplicationJob", priority, 0)
	body := encode(replicateRequest{Database: database, Chunk: chunk, SourceWorker: sourceWorker})
	items := []job.WorkItem{{Worker: worker, Opcode: OpReplicate, Body: body}}
	if err := j.Start(ctx, ctrl, items, 0, nil); err != nil {
		return nil, err
	}
	return j, nil
}

// NewDeleteJob removes database/chunk's replica from worker.
func NewDeleteJob(ctx context.Context, ctrl *control.Controller, worker, database string, chunk int32, priority job.Priority) (*job.Job, error) {
	j := job.New("DeleteJob", priority, 0)
	body := encode(deleteRequest{Database: database, Chunk: chunk})
	items := []job.WorkItem{{Worker: worker, Opcode: OpDelete, Body: body}}
	if err := j.Start(ctx, ctrl, items, 0, nil); err != nil {
		return nil, err
	}
	return j, nil
}

// NewFindJob queries worker's replica of database/chunk for its current
// row count and checksum, used to verify a single replica's health.
func NewFindJob(ctx context.Context, ctrl *control.Controller, worker, database string, chunk int32, priority job.Priority) (*job.Job, error) {
	j := job.New("FindJob", priority, 0)
	body := encode(findRequest{Database: database, Chunk: chunk})
	items := []job.WorkItem{{Worker: worker, Opcode: OpFind, Body: body}}
	if err := j.Start(ctx, ctrl, items, 0, nil); err != nil {
		return nil, err
	}
	return j, nil
}

// NewFindAllJob polls every eligible worker for its full replica
// inventory, optionally scoped to a single database. Used by the
// reconciliation sweep that rebuilds the replica placement table from
// fleet reality.
func NewFindAllJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, database string, priority job.Priority) (*job.Job, error) {
	j := job.New("FindAllJob", priority, 0)
	body := encode(findAllRequest{Database: database})
	items := fleetItems(cfg, OpFindAll, body)
	if err := j.Start(ctx, ctrl, items, 0, nil); err != nil {
		return nil, err
	}
	return j, nil
}

// Inventory reduces a finished NewFindAllJob's per-worker responses into
// a worker-name -> replica-list map.
func Inventory(j *job.Job) map[string][]ReplicaStatus {
	out := make(map[string][]ReplicaStatus)
	for _, r := range j.Results() {
		if r.Status != job.SUCCESS {
			continue
		}
		var res findAllResult
		if decode(r.Body, &res) == nil {
			out[r.Worker] = res.Replicas
		}
	}
	return out
}

// NewEchoJob round-trips payload through every eligible worker, purely
// as a connectivity/latency probe.
func NewEchoJob(ctx context.Context, ctrl *control.Controller, cfg *registry.Configuration, payload []byte, priority job.Priority) (*job.Job, error) {
	j := job.New("EchoJob", priority, 0)
	body := encode(echoRequest{Payload: payload})
	items := fleetItems(cfg, OpEcho, body)
	if err := j.Start(ctx, ctrl, items, 0, nil); err != nil {
		return nil, err
	}
	return j, nil
}

// NewDirectorIndexJob retrieves the director index fragment for
// database.table's chunk from worker, used by the czar to build the
// global director index that routes object-id-qualified queries.
func NewDirectorIndexJob(ctx context.Context, ctrl *control.Controller, worker, database, table string, chunk int32, priority job.Priority) (*job.Job, error) {
	j := job.New("DirectorIndexJob", priority, 0)
	body := encode(directorIndexRequest{Database: database, Table: table, Chunk: chunk})
	items := []job.WorkItem{{Worker: worker, Opcode: OpDirectorIndex, Body: body}}
	if err := j.Start(ctx, ctrl, items, 0, nil); err != nil {
		return nil, err
	}
	return j, nil
}

// DirectorIndexRecords decodes a finished NewDirectorIndexJob's single
// result.
func DirectorIndexRecords(j *job.Job) ([]DirectorIndexRecord, error) {
	results := j.Results()
	if len(results) == 0 {
		return nil, nil
	}
	r := results[0]
	if r.Err != nil {
		return nil, r.Err
	}
	var res directorIndexResult
	if err := decode(r.Body, &res); err != nil {
		return nil, err
	}
	return res.Records, nil
}
