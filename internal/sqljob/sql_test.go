package sqljob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst/qserv-sub016/internal/control"
	"github.com/lsst/qserv-sub016/internal/job"
	"github.com/lsst/qserv-sub016/internal/registry"
	"github.com/lsst/qserv-sub016/internal/registry/memory"
)

// fakeWorkerTransport canned-responds per opcode, decoding/re-encoding
// request bodies where a test needs the response to vary per worker.
type fakeWorkerTransport struct {
	respond func(worker, opcode string, body []byte) ([]byte, error)
}

func (f *fakeWorkerTransport) Send(ctx context.Context, worker, opcode string, body []byte) ([]byte, error) {
	return f.respond(worker, opcode, body)
}

func newTestFleet(t *testing.T, transport control.Transport, workers ...string) (*control.Controller, *registry.Configuration) {
	t.Helper()
	cfg, err := registry.Load(context.Background(), memory.NewStore())
	require.NoError(t, err)
	for _, w := range workers {
		require.NoError(t, cfg.PutWorker(context.Background(), registry.WorkerConfig{Name: w, Status: registry.ENABLED}))
	}
	ctrl := control.New(transport, nil, cfg, nil)
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(func() { ctrl.Stop() })
	return ctrl, cfg
}

func TestSqlCreateDbJobFansOutToAllEligibleWorkers(t *testing.T) {
	seen := make(chan string, 4)
	transport := &fakeWorkerTransport{respond: func(worker, opcode string, body []byte) ([]byte, error) {
		seen <- worker
		return nil, nil
	}}
	ctrl, cfg := newTestFleet(t, transport, "worker01", "worker02")

	j, err := NewSqlCreateDbJob(context.Background(), ctrl, cfg, "db1", job.NORMAL)
	require.NoError(t, err)
	require.NoError(t, j.Wait(context.Background()))
	require.Equal(t, job.SUCCESS, j.Status())
	require.Len(t, j.Results(), 2)
}

func TestSqlGetIndexesJobSummarizesAcrossWorkers(t *testing.T) {
	idx := []IndexDescriptor{{Name: "ix_ra_dec", Columns: []string{"ra", "decl"}}}
	transport := &fakeWorkerTransport{respond: func(worker, opcode string, body []byte) ([]byte, error) {
		require.Equal(t, OpSqlGetIndexes, opcode)
		return encode(indexesResult{Indexes: idx}), nil
	}}
	ctrl, cfg := newTestFleet(t, transport, "worker01", "worker02")

	j, err := NewSqlGetIndexesJob(context.Background(), ctrl, cfg, "db1", "t1", job.NORMAL)
	require.NoError(t, err)
	require.NoError(t, j.Wait(context.Background()))

	summary := Summary("db1", "t1", j)
	require.Equal(t, COMPLETE, summary.Status)
}

func TestSqlDeleteTablePartitionJobTargetsSpecificChunk(t *testing.T) {
	var gotChunk int32 = -100
	transport := &fakeWorkerTransport{respond: func(worker, opcode string, body []byte) ([]byte, error) {
		var req partitionRequest
		require.NoError(t, decode(body, &req))
		gotChunk = req.Chunk
		return nil, nil
	}}
	ctrl, cfg := newTestFleet(t, transport, "worker01")

	j, err := NewSqlDeleteTablePartitionJob(context.Background(), ctrl, cfg, "db1", "t1", 42, job.NORMAL)
	require.NoError(t, err)
	require.NoError(t, j.Wait(context.Background()))
	require.EqualValues(t, 42, gotChunk)
}
