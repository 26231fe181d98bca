package csvedit

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEditor(t *testing.T) *Editor {
	t.Helper()
	cfg := Config{
		In:  DefaultFormat([]string{"id", "lon", "lat", "name"}),
		Out: DefaultFormat([]string{"id", "lon", "lat", "name"}),
	}
	e, err := NewEditor(cfg)
	require.NoError(t, err)
	return e
}

func TestReadRecordPlainFields(t *testing.T) {
	e := newTestEditor(t)
	require.NoError(t, e.ReadRecord([]byte("1,10.5,-20.25,star")))
	require.Equal(t, "1", e.GetString(0))
	lon, err := e.GetFloat(1)
	require.NoError(t, err)
	require.Equal(t, 10.5, lon)
	require.Equal(t, "star", e.GetString(3))
	require.False(t, e.IsNull(3))
}

func TestReadRecordNullSentinel(t *testing.T) {
	e := newTestEditor(t)
	require.NoError(t, e.ReadRecord([]byte(`1,10.5,-20.25,\N`)))
	require.True(t, e.IsNull(3))
}

func TestReadRecordQuotedField(t *testing.T) {
	e := newTestEditor(t)
	require.NoError(t, e.ReadRecord([]byte(`1,10.5,-20.25,"a,b"`)))
	require.Equal(t, "a,b", e.GetString(3))
}

func TestReadRecordRejectsFieldCountMismatch(t *testing.T) {
	e := newTestEditor(t)
	err := e.ReadRecord([]byte("1,10.5,-20.25"))
	require.Error(t, err)
}

func TestReadRecordRejectsLineTooLong(t *testing.T) {
	e := newTestEditor(t)
	huge := make([]byte, MaxLineSize+1)
	err := e.ReadRecord(huge)
	require.Error(t, err)
}

func TestSetAndWriteRecord(t *testing.T) {
	e := newTestEditor(t)
	require.NoError(t, e.ReadRecord([]byte("1,10.5,-20.25,star")))
	e.Set(3, "new,name")
	e.SetNull(1)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, e.WriteRecord(w))
	require.NoError(t, w.Flush())
	require.Equal(t, "1,\\N,-20.25,\"new,name\"\n", buf.String())
}

func TestFieldIndexResolution(t *testing.T) {
	e := newTestEditor(t)
	idx, ok := e.FieldIndex("lat")
	require.True(t, ok)
	require.Equal(t, 2, idx)

	_, ok = e.FieldIndex("missing")
	require.False(t, ok)
}

func TestReadRecordClearsPreviousSet(t *testing.T) {
	e := newTestEditor(t)
	require.NoError(t, e.ReadRecord([]byte("1,10.5,-20.25,star")))
	e.Set(0, "99")
	require.Equal(t, "99", e.GetString(0))

	require.NoError(t, e.ReadRecord([]byte("2,11.5,-21.25,nova")))
	require.Equal(t, "2", e.GetString(0))
}
