package chunker

import (
	"testing"

	"github.com/lsst/qserv-sub016/internal/geom"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{OverlapDeg: 0.01, NumStripes: 18, NumSubStripesPerStripe: 3}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{NumStripes: 0, NumSubStripesPerStripe: 1})
	require.Error(t, err)
	_, err = New(Config{NumStripes: 1, NumSubStripesPerStripe: 0})
	require.Error(t, err)
	_, err = New(Config{NumStripes: 1, NumSubStripesPerStripe: 1, OverlapDeg: -1})
	require.Error(t, err)
}

func TestChunkBoundsCoverSphere(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	var totalArea float64
	for cid := int32(0); cid < c.NumChunks(); cid++ {
		require.True(t, c.Valid(cid))
		b, err := c.GetChunkBounds(cid)
		require.NoError(t, err)
		require.False(t, b.IsEmpty())
		totalArea += b.Area()
	}
	require.InDelta(t, 4*3.14159265358979, totalArea, 1e-6)
}

func TestGetChunkBoundsRejectsOutOfRange(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)
	_, err = c.GetChunkBounds(-1)
	require.Error(t, err)
	_, err = c.GetChunkBounds(c.NumChunks())
	require.Error(t, err)
}

func TestSubChunkBoundsNestInsideChunk(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	cid := c.NumChunks() / 2
	chunkBounds, err := c.GetChunkBounds(cid)
	require.NoError(t, err)

	i, err := c.stripeForChunk(cid)
	require.NoError(t, err)
	lonWidth := 360.0 / float64(c.chunksPerStripe[i])
	_, offsets := c.subChunkOffsets(i, lonWidth)
	total := offsets[len(offsets)-1]
	require.Greater(t, total, int32(0))
	for sub := int32(0); sub < total; sub++ {
		sb, err := c.GetSubChunkBounds(cid, sub)
		require.NoError(t, err)
		require.GreaterOrEqual(t, sb.LatMin, chunkBounds.LatMin-1e-9)
		require.LessOrEqual(t, sb.LatMax, chunkBounds.LatMax+1e-9)
	}
}

func TestLocateFindsPrimaryChunk(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	locs := c.Locate(123.45, -17.3, -1, nil)
	require.NotEmpty(t, locs)

	var primaries int
	for _, l := range locs {
		if !l.Overlap {
			primaries++
			b, err := c.GetChunkBounds(l.ChunkID)
			require.NoError(t, err)
			require.True(t, b.Contains(123.45, -17.3))
		}
	}
	require.Equal(t, 1, primaries)
}

func TestLocateProducesOverlapsNearBoundary(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	b, err := c.GetChunkBounds(c.NumChunks() / 2)
	require.NoError(t, err)
	lon := b.LonMin + 0.0001
	lat := (b.LatMin + b.LatMax) / 2

	locs := c.Locate(lon, lat, -1, nil)
	var overlaps int
	for _, l := range locs {
		if l.Overlap {
			overlaps++
		}
	}
	require.Greater(t, overlaps, 0)
}

func TestChunksIntersectingMatchesBruteForce(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	box := geom.NewBox(10, 50, -5, 5)
	ids, err := c.ChunksIntersecting(box, 0)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	for _, id := range ids {
		bounds, err := c.GetChunkBounds(id)
		require.NoError(t, err)
		require.True(t, bounds.Intersects(box))
	}
}
