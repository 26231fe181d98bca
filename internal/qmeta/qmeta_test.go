package qmeta

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

func openTest(t *testing.T) *QMeta {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "qmeta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestRegisterRequestReturnsInProgressSnapshot(t *testing.T) {
	q := openTest(t)
	ctx := context.Background()

	req, err := q.RegisterRequest(ctx, RegisterParams{
		Database: "db1", Table: "t1", TableType: "partitioned",
		Schema: `{"columns":["ra","decl"]}`,
	})
	require.NoError(t, err)
	require.Equal(t, IN_PROGRESS, req.Status)
	require.NotZero(t, req.ID)
	require.NotZero(t, req.BeginTimeMs)
}

func TestIngestFinishedRequiresInProgress(t *testing.T) {
	q := openTest(t)
	ctx := context.Background()

	req, err := q.RegisterRequest(ctx, RegisterParams{Database: "db1", Table: "t1"})
	require.NoError(t, err)

	done, err := q.IngestFinished(ctx, req.ID, COMPLETED, "", "tx1", 10, 1000, 4096)
	require.NoError(t, err)
	require.Equal(t, COMPLETED, done.Status)
	require.NotZero(t, done.EndTimeMs)
	require.EqualValues(t, 1000, done.NumRows)

	_, err = q.IngestFinished(ctx, req.ID, COMPLETED, "", "tx1", 0, 0, 0)
	require.ErrorIs(t, err, qerr.ErrInvalidArg)
}

func TestIngestFinishedRejectsInProgressStatus(t *testing.T) {
	q := openTest(t)
	ctx := context.Background()
	req, err := q.RegisterRequest(ctx, RegisterParams{Database: "db1", Table: "t1"})
	require.NoError(t, err)

	_, err = q.IngestFinished(ctx, req.ID, IN_PROGRESS, "", "", 0, 0, 0)
	require.ErrorIs(t, err, qerr.ErrInvalidArg)
}

func TestTableDeletedRefusedWhileInProgress(t *testing.T) {
	q := openTest(t)
	ctx := context.Background()
	req, err := q.RegisterRequest(ctx, RegisterParams{Database: "db1", Table: "t1"})
	require.NoError(t, err)

	err = q.TableDeleted(ctx, req.ID)
	require.ErrorIs(t, err, qerr.ErrInvalidArg)

	_, err = q.IngestFinished(ctx, req.ID, COMPLETED, "", "", 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, q.TableDeleted(ctx, req.ID))
}

func TestDatabaseDeletedTombstonesAllTables(t *testing.T) {
	q := openTest(t)
	ctx := context.Background()
	r1, err := q.RegisterRequest(ctx, RegisterParams{Database: "db1", Table: "t1"})
	require.NoError(t, err)
	r2, err := q.RegisterRequest(ctx, RegisterParams{Database: "db1", Table: "t2"})
	require.NoError(t, err)

	require.NoError(t, q.DatabaseDeleted(ctx, "db1"))

	got, err := q.FindRequests(ctx, FindFilter{Database: "db1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		require.Contains(t, []int64{r1.ID, r2.ID}, r.ID)
		require.NotZero(t, r.DeleteTimeMs)
	}
}

func TestFindRequestsRejectsTableWithoutDatabase(t *testing.T) {
	q := openTest(t)
	_, err := q.FindRequests(context.Background(), FindFilter{Table: "t1"})
	require.ErrorIs(t, err, qerr.ErrInvalidArg)
}

func TestFindRequestsOrdersNewestFirst(t *testing.T) {
	q := openTest(t)
	ctx := context.Background()
	r1, err := q.RegisterRequest(ctx, RegisterParams{Database: "db1", Table: "t1"})
	require.NoError(t, err)
	r2, err := q.RegisterRequest(ctx, RegisterParams{Database: "db1", Table: "t2"})
	require.NoError(t, err)

	got, err := q.FindRequests(ctx, FindFilter{Database: "db1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, r2.ID, got[0].ID)
	require.Equal(t, r1.ID, got[1].ID)
}

func TestFindRequestsExtendedLoadsSchemaPayload(t *testing.T) {
	q := openTest(t)
	ctx := context.Background()
	_, err := q.RegisterRequest(ctx, RegisterParams{Database: "db1", Table: "t1", Schema: `{"x":1}`})
	require.NoError(t, err)

	got, err := q.FindRequests(ctx, FindFilter{Database: "db1", Extended: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, `{"x":1}`, got[0].Schema)
}
