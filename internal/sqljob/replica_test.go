package sqljob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst/qserv-sub016/internal/job"
)

func TestReplicationJobSingleDestination(t *testing.T) {
	var gotSource string
	transport := &fakeWorkerTransport{respond: func(worker, opcode string, body []byte) ([]byte, error) {
		require.Equal(t, OpReplicate, opcode)
		require.Equal(t, "worker02", worker)
		var req replicateRequest
		require.NoError(t, decode(body, &req))
		gotSource = req.SourceWorker
		return nil, nil
	}}
	ctrl, _ := newTestFleet(t, transport, "worker01", "worker02")

	j, err := NewReplicationJob(context.Background(), ctrl, "worker02", "worker01", "db1", 7, job.NORMAL)
	require.NoError(t, err)
	require.NoError(t, j.Wait(context.Background()))
	require.Equal(t, job.SUCCESS, j.Status())
	require.Equal(t, "worker01", gotSource)
}

func TestFindAllJobBuildsInventory(t *testing.T) {
	transport := &fakeWorkerTransport{respond: func(worker, opcode string, body []byte) ([]byte, error) {
		require.Equal(t, OpFindAll, opcode)
		return encode(findAllResult{Replicas: []ReplicaStatus{{Database: "db1", Chunk: 1, Rows: 100}}}), nil
	}}
	ctrl, cfg := newTestFleet(t, transport, "worker01", "worker02")

	j, err := NewFindAllJob(context.Background(), ctrl, cfg, "db1", job.NORMAL)
	require.NoError(t, err)
	require.NoError(t, j.Wait(context.Background()))

	inv := Inventory(j)
	require.Len(t, inv, 2)
	require.Equal(t, int64(100), inv["worker01"][0].Rows)
}

func TestDirectorIndexJobDecodesRecords(t *testing.T) {
	transport := &fakeWorkerTransport{respond: func(worker, opcode string, body []byte) ([]byte, error) {
		require.Equal(t, OpDirectorIndex, opcode)
		return encode(directorIndexResult{Records: []DirectorIndexRecord{{ObjectID: 9, Chunk: 3, SubChunk: 1}}}), nil
	}}
	ctrl, _ := newTestFleet(t, transport, "worker01")

	j, err := NewDirectorIndexJob(context.Background(), ctrl, "worker01", "db1", "Object", 3, job.NORMAL)
	require.NoError(t, err)
	require.NoError(t, j.Wait(context.Background()))

	records, err := DirectorIndexRecords(j)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.EqualValues(t, 9, records[0].ObjectID)
}

func TestEchoJobRoundTrips(t *testing.T) {
	transport := &fakeWorkerTransport{respond: func(worker, opcode string, body []byte) ([]byte, error) {
		require.Equal(t, OpEcho, opcode)
		return body, nil
	}}
	ctrl, cfg := newTestFleet(t, transport, "worker01")

	j, err := NewEchoJob(context.Background(), ctrl, cfg, []byte("ping"), job.NORMAL)
	require.NoError(t, err)
	require.NoError(t, j.Wait(context.Background()))
	require.Equal(t, job.SUCCESS, j.Status())
}
