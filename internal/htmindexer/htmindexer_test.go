package htmindexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lsst/qserv-sub016/internal/csvedit"
	"github.com/lsst/qserv-sub016/internal/geom"
	"github.com/lsst/qserv-sub016/internal/mapreduce"
	"github.com/lsst/qserv-sub016/internal/partidx"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, outDir string) Config {
	t.Helper()
	fields := []string{"id", "lon", "lat"}
	return Config{
		Format:   csvedit.Config{In: csvedit.DefaultFormat(fields), Out: csvedit.DefaultFormat(fields)},
		IDField:  "id",
		LonField: "lon",
		LatField: "lat",
		Level:    8,
		OutDir:   outDir,
		NumNodes: 4,
	}
}

func TestConfigValidateRejectsBadLevel(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Level = 99
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsBadNumNodes(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.NumNodes = 0
	require.Error(t, cfg.Validate())
}

func TestMapLineComputesHtmID(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	w, err := NewWorker(cfg)
	require.NoError(t, err)

	rec, err := w.mapLine([]byte("1,0,0"))
	require.NoError(t, err)
	wantID, err := geom.HTMID(geom.Cartesian(0, 0), 8)
	require.NoError(t, err)
	require.Equal(t, wantID, rec.Key.HtmID)
	require.Equal(t, int64(1), rec.Key.RecordID)
}

func TestIndexerScenarioS4(t *testing.T) {
	dir := t.TempDir()
	inputDir := filepath.Join(dir, "in")
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(inputDir, 0o755))

	inputPath := filepath.Join(inputDir, "rows.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte("1,0,0\n2,10,0\n"), 0o644))

	cfg := testConfig(t, outDir)
	mrCfg := MapReduceConfig(2, 16, 0, t.TempDir())

	eng, err := mapreduce.New(mrCfg)
	require.NoError(t, err)

	results, err := eng.Run(context.Background(), []string{inputPath}, func() mapreduce.Worker[Key] {
		w, err := NewWorker(cfg)
		require.NoError(t, err)
		return w
	})
	require.NoError(t, err)

	merged := newMergedIndex(t, results)
	require.Len(t, merged.Ids(), 2)
	for _, id := range merged.Ids() {
		require.Equal(t, uint64(1), merged.Count(id))
	}

	var txtFiles []string
	require.NoError(t, filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		if !info.IsDir() && filepath.Ext(path) == ".txt" {
			txtFiles = append(txtFiles, path)
		}
		return nil
	}))
	require.Len(t, txtFiles, 2)
}

func newMergedIndex(t *testing.T, results []any) *partidx.HtmIndex {
	t.Helper()
	merged := partidx.NewHtmIndex(8)
	for _, r := range results {
		idx := r.(*partidx.HtmIndex)
		require.NoError(t, merged.Merge(idx))
	}
	return merged
}
