package partfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexIDRoundTrip(t *testing.T) {
	for _, id := range []uint32{0, 1, 0xdeadbeef, 0x0000ffff} {
		s := HexID(id)
		require.Len(t, s, 8)
		got, err := ParseHexID(s)
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
}

func TestParseHexIDRejectsMalformed(t *testing.T) {
	_, err := ParseHexID("zz")
	require.Error(t, err)
	_, err = ParseHexID("ab")
	require.Error(t, err)
}

func TestTrianglePathRoundTripsThroughParseTrianglePath(t *testing.T) {
	path := TrianglePath("/data", 0x01020304, 16, "txt")
	got, err := ParseTrianglePath(path)
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), got)
}

func TestNodeDirIsStableAndInRange(t *testing.T) {
	for _, n := range []int{1, 4, 97} {
		d := NodeDir(123456, n)
		require.Equal(t, d, NodeDir(123456, n))
	}
}

func TestChunkPathSingleNodeSkipsSharding(t *testing.T) {
	path := ChunkPath("/out", 7, 1, false)
	require.Equal(t, "/out/chunk_7.txt", path)
	overlapPath := ChunkPath("/out", 7, 1, true)
	require.Equal(t, "/out/chunk_7_overlap.txt", overlapPath)
}

func TestChunkPathShardsWhenMultiNode(t *testing.T) {
	path := ChunkPath("/out", 7, 16, false)
	require.NotEqual(t, "/out/chunk_7.txt", path)
	require.Contains(t, path, "chunk_7.txt")
}
