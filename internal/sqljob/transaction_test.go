package sqljob

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

func TestTransactionLookupBeginCommit(t *testing.T) {
	l := NewTransactionLookup()
	tx := l.Begin("db1")
	require.Equal(t, STARTED, tx.State)

	got, err := l.Lookup(tx.ID)
	require.NoError(t, err)
	require.Equal(t, tx, got)

	require.NoError(t, l.Commit(tx.ID))
	require.Equal(t, COMMITTED, tx.State)
}

func TestTransactionLookupDoubleCommitFails(t *testing.T) {
	l := NewTransactionLookup()
	tx := l.Begin("db1")
	require.NoError(t, l.Commit(tx.ID))
	require.Error(t, l.Commit(tx.ID))
}

func TestTransactionLookupMissingReturnsNotFound(t *testing.T) {
	l := NewTransactionLookup()
	tx := l.Begin("db1")
	_, err := l.Lookup(tx.ID)
	require.NoError(t, err)

	other := l.Begin("db2")
	require.NoError(t, l.Abort(other.ID))

	l2 := NewTransactionLookup()
	_, err = l2.Lookup(tx.ID)
	require.ErrorIs(t, err, qerr.ErrNotFound)
}

func TestTransactionLookupByDatabase(t *testing.T) {
	l := NewTransactionLookup()
	l.Begin("db1")
	l.Begin("db1")
	l.Begin("db2")
	require.Len(t, l.ByDatabase("db1"), 2)
	require.Len(t, l.ByDatabase("db2"), 1)
}
