package duplicator

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lsst/qserv-sub016/internal/chunker"
	"github.com/lsst/qserv-sub016/internal/csvedit"
	"github.com/lsst/qserv-sub016/internal/geom"
	"github.com/lsst/qserv-sub016/internal/partfile"
	"github.com/lsst/qserv-sub016/internal/partidx"
	"github.com/stretchr/testify/require"
)

const testLevel = 2

func testChunkerConfig() chunker.Config {
	return chunker.Config{OverlapDeg: 0.1, NumStripes: 6, NumSubStripesPerStripe: 2}
}

func testDuplicatorConfig(inDir, outDir string) Config {
	fields := []string{"id", "lon", "lat"}
	outFields := []string{"id", "lon", "lat", "chunkId", "subChunkId"}
	return Config{
		Format:        csvedit.Config{In: csvedit.DefaultFormat(fields), Out: csvedit.DefaultFormat(outFields)},
		RecordIDField: "id",
		PartPosition:  PositionFields{LonField: "lon", LatField: "lat"},
		ChunkIDField:  "chunkId", SubChunkIDField: "subChunkId",
		Level: testLevel, InDir: inDir, InNodes: 1, OutDir: outDir, OutNodes: 1,
	}
}

// writeSourceTriangle writes a source triangle's .txt/.ids pair (one row
// per id) under inDir, sharded for a single-node input layout.
func writeSourceTriangle(t *testing.T, inDir string, htmID uint32, ids []int64, lon, lat float64) {
	t.Helper()
	txtPath := partfile.TrianglePath(inDir, htmID, 1, "txt")
	idsPath := partfile.TrianglePath(inDir, htmID, 1, "ids")
	require.NoError(t, os.MkdirAll(filepath.Dir(txtPath), 0o755))

	var txt []byte
	var idsBuf []byte
	for _, id := range ids {
		txt = append(txt, []byte(fmt.Sprintf("%d,%g,%g\n", id, lon, lat))...)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(id))
		idsBuf = append(idsBuf, b[:]...)
	}
	require.NoError(t, os.WriteFile(txtPath, txt, 0o644))
	require.NoError(t, os.WriteFile(idsPath, idsBuf, 0o644))
}

func TestRunDuplicatesSourceOntoItself(t *testing.T) {
	dir := t.TempDir()
	inDir := filepath.Join(dir, "in")
	outDir := filepath.Join(dir, "out")

	lon, lat := 10.0, 5.0
	htmID, err := geom.HTMID(geom.Cartesian(lon, lat), testLevel)
	require.NoError(t, err)

	writeSourceTriangle(t, inDir, htmID, []int64{100, 101, 102}, lon, lat)

	dataIndex := partidx.NewHtmIndex(testLevel)
	require.NoError(t, dataIndex.Add(htmID, 3))
	partIndex := partidx.NewHtmIndex(testLevel)
	require.NoError(t, partIndex.Add(htmID, 3))

	ck, err := chunker.New(testChunkerConfig())
	require.NoError(t, err)
	locs := ck.Locate(lon, lat, -1, nil)
	require.NotEmpty(t, locs)

	cfg := testDuplicatorConfig(inDir, outDir)
	cfg.TargetChunks = []int32{locs[0].ChunkID}
	opts := RunOptions{Chunker: testChunkerConfig(), NumWorkers: 2, BlockSizeMiB: 1}

	result, err := Run(context.Background(), cfg, opts, partIndex, dataIndex)
	require.NoError(t, err)
	require.NotNil(t, result)

	var total uint64
	for _, k := range result.Keys() {
		c := result.Counts(k)
		total += c.Main + c.Overlap
	}
	require.Greater(t, total, uint64(0))

	var found bool
	require.NoError(t, filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		if !info.IsDir() {
			found = true
		}
		return nil
	}))
	require.True(t, found)
}

func TestRunRejectsInconsistentLevels(t *testing.T) {
	dir := t.TempDir()
	cfg := testDuplicatorConfig(filepath.Join(dir, "in"), filepath.Join(dir, "out"))
	opts := RunOptions{Chunker: testChunkerConfig(), NumWorkers: 1, BlockSizeMiB: 1}

	partIndex := partidx.NewHtmIndex(testLevel)
	dataIndex := partidx.NewHtmIndex(testLevel + 1)

	_, err := Run(context.Background(), cfg, opts, partIndex, dataIndex)
	require.ErrorIs(t, err, ErrInconsistentIndex)
}

func TestSamplingConfigValidate(t *testing.T) {
	require.NoError(t, SamplingConfig{Fraction: 0}.Validate())
	require.NoError(t, SamplingConfig{Fraction: 0.5}.Validate())
	require.ErrorIs(t, SamplingConfig{Fraction: 1.5}.Validate(), ErrInvalidSamplingFraction)
}

func TestRemapIDIsUniquePerTargetAndIndex(t *testing.T) {
	a := RemapID(42, 7)
	b := RemapID(42, 8)
	c := RemapID(43, 7)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}

func TestIdArrayIndexOfRejectsMissingID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.ids")
	var buf []byte
	for _, id := range []int64{5, 1, 3} {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(id))
		buf = append(buf, b[:]...)
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	arr, err := loadIdArray(path)
	require.NoError(t, err)
	idx, err := arr.indexOf(3)
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx)

	_, err = arr.indexOf(99)
	require.Error(t, err)
}
