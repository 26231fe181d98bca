package partidx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHtmIndexAddRejectsWrongLevel(t *testing.T) {
	idx := NewHtmIndex(1)
	err := idx.Add(12, 1) // id 12 is a level-0 id
	require.Error(t, err)
}

func TestHtmIndexConcatenationEqualsMerge(t *testing.T) {
	a := NewHtmIndex(1)
	require.NoError(t, a.Add(50, 3))
	require.NoError(t, a.Add(51, 1))

	b := NewHtmIndex(1)
	require.NoError(t, b.Add(50, 2))
	require.NoError(t, b.Add(52, 7))

	var bufA, bufB bytes.Buffer
	_, err := a.WriteTo(&bufA)
	require.NoError(t, err)
	_, err = b.WriteTo(&bufB)
	require.NoError(t, err)

	concatenated := append(append([]byte{}, bufA.Bytes()...), bufB.Bytes()...)
	fromConcat, err := ReadHtmIndex(bytes.NewReader(concatenated), 1)
	require.NoError(t, err)

	merged := NewHtmIndex(1)
	require.NoError(t, merged.Merge(a))
	require.NoError(t, merged.Merge(b))

	require.Equal(t, merged.Ids(), fromConcat.Ids())
	for _, id := range merged.Ids() {
		require.Equal(t, merged.Count(id), fromConcat.Count(id))
	}
}

func TestHtmIndexMergeRejectsLevelMismatch(t *testing.T) {
	a := NewHtmIndex(1)
	b := NewHtmIndex(2)
	require.Error(t, a.Merge(b))
}

func TestHtmIndexMapToNonEmptyIsDeterministic(t *testing.T) {
	idx := NewHtmIndex(1)
	require.NoError(t, idx.Add(50, 1))
	require.NoError(t, idx.Add(51, 1))
	require.NoError(t, idx.Add(52, 1))

	got1, err := idx.MapToNonEmpty(999)
	require.NoError(t, err)
	got2, err := idx.MapToNonEmpty(999)
	require.NoError(t, err)
	require.Equal(t, got1, got2)
	require.Contains(t, idx.Ids(), got1)
}

func TestHtmIndexMapToNonEmptyRejectsEmpty(t *testing.T) {
	idx := NewHtmIndex(1)
	_, err := idx.MapToNonEmpty(1)
	require.Error(t, err)
}

func TestHtmIndexReadRejectsTruncatedRecord(t *testing.T) {
	_, err := ReadHtmIndex(bytes.NewReader([]byte{1, 2, 3}), 1)
	require.Error(t, err)
}

func TestHtmIndexJSONRoundtrip(t *testing.T) {
	idx := NewHtmIndex(2)
	require.NoError(t, idx.Add(200, 5))
	require.NoError(t, idx.Add(201, 9))

	data, err := json.Marshal(idx)
	require.NoError(t, err)

	got := NewHtmIndex(0)
	require.NoError(t, json.Unmarshal(data, got))
	require.Equal(t, idx.Level(), got.Level())
	require.Equal(t, idx.Count(200), got.Count(200))
	require.Equal(t, idx.Count(201), got.Count(201))
}

func TestChunkIndexMergeAndRoundtrip(t *testing.T) {
	a := NewChunkIndex()
	a.Add(ChunkKey{ChunkID: 10, SubChunkID: 1}, false, 4)
	a.Add(ChunkKey{ChunkID: 10, SubChunkID: 1}, true, 1)

	b := NewChunkIndex()
	b.Add(ChunkKey{ChunkID: 10, SubChunkID: 1}, false, 6)
	b.Add(ChunkKey{ChunkID: 11, SubChunkID: 0}, false, 2)

	a.Merge(b)
	require.Equal(t, ChunkCounts{Main: 10, Overlap: 1}, a.Counts(ChunkKey{ChunkID: 10, SubChunkID: 1}))
	require.Equal(t, ChunkCounts{Main: 2}, a.Counts(ChunkKey{ChunkID: 11, SubChunkID: 0}))

	var buf bytes.Buffer
	_, err := a.WriteTo(&buf)
	require.NoError(t, err)

	roundtrip, err := ReadChunkIndex(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, a.Keys(), roundtrip.Keys())
}
