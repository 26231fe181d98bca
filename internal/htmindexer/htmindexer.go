// Package htmindexer implements the map-reduce Worker that partitions
// catalog rows by HTM triangle: each row's (lon,lat) is converted to an
// HTM id at a configured level, and rows are appended, grouped by
// triangle, to per-triangle CSV and id files alongside a binary record
// count index.
package htmindexer

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lsst/qserv-sub016/internal/csvedit"
	"github.com/lsst/qserv-sub016/internal/geom"
	"github.com/lsst/qserv-sub016/internal/mapreduce"
	"github.com/lsst/qserv-sub016/internal/partfile"
	"github.com/lsst/qserv-sub016/internal/partidx"
	"github.com/lsst/qserv-sub016/internal/qerr"
)

// Key orders and buckets indexer records by htm id alone: Less/Hash
// ignore RecordID, so every record for a given triangle lands in the
// same bucket and forms a single contiguous run.
type Key struct {
	RecordID int64
	HtmID    uint32
}

// Config configures the indexer worker, matching the --id,
// --part.pos, --out.dir, --out.num-nodes, --htm.level CLI options.
type Config struct {
	Format   csvedit.Config
	IDField  string
	LonField string
	LatField string
	Level    int
	OutDir   string
	NumNodes int
	Compress bool
}

// Validate checks Config against §4.5's constraints.
func (c Config) Validate() error {
	if c.Level < 0 || c.Level > geom.MaxHTMLevel {
		return fmt.Errorf("htmindexer: htm.level %d out of range [0,%d]: %w", c.Level, geom.MaxHTMLevel, qerr.ErrConfig)
	}
	if c.NumNodes < 1 || c.NumNodes > 99999 {
		return fmt.Errorf("htmindexer: out.num-nodes %d out of range [1,99999]: %w", c.NumNodes, qerr.ErrConfig)
	}
	if c.OutDir == "" {
		return fmt.Errorf("htmindexer: out.dir is required: %w", qerr.ErrConfig)
	}
	if c.IDField == "" || c.LonField == "" || c.LatField == "" {
		return fmt.Errorf("htmindexer: id, part.pos fields are required: %w", qerr.ErrConfig)
	}
	return nil
}

// MapReduceConfig returns the mapreduce.Config this worker expects to
// run under: Hash/Less both key off HtmID alone.
func MapReduceConfig(numWorkers, blockSizeMiB, bucketThreshold int, runDir string) mapreduce.Config[Key] {
	return mapreduce.Config[Key]{
		NumWorkers:      numWorkers,
		BlockSizeMiB:    blockSizeMiB,
		BucketThreshold: bucketThreshold,
		RunDir:          runDir,
		Hash:            func(k Key) uint64 { return partfile.HashUint32(k.HtmID) },
		Less:            func(a, b Key) bool { return a.HtmID < b.HtmID },
	}
}

// Worker is the per-mapper-thread indexer; one Worker instance also
// reduces the bucket it owns, accumulating a local HtmIndex.
type Worker struct {
	cfg        Config
	editor     *csvedit.Editor
	idField    int
	lonField   int
	latField   int
	idx        *partidx.HtmIndex
}

// NewWorker validates cfg and returns a ready indexer Worker.
func NewWorker(cfg Config) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	editor, err := csvedit.NewEditor(cfg.Format)
	if err != nil {
		return nil, err
	}
	idField, ok := editor.FieldIndex(cfg.IDField)
	if !ok {
		return nil, fmt.Errorf("htmindexer: id field %q not in in.fields: %w", cfg.IDField, qerr.ErrConfig)
	}
	lonField, ok := editor.FieldIndex(cfg.LonField)
	if !ok {
		return nil, fmt.Errorf("htmindexer: lon field %q not in in.fields: %w", cfg.LonField, qerr.ErrConfig)
	}
	latField, ok := editor.FieldIndex(cfg.LatField)
	if !ok {
		return nil, fmt.Errorf("htmindexer: lat field %q not in in.fields: %w", cfg.LatField, qerr.ErrConfig)
	}
	return &Worker{
		cfg: cfg, editor: editor,
		idField: idField, lonField: lonField, latField: latField,
		idx: partidx.NewHtmIndex(cfg.Level),
	}, nil
}

// Map parses block line by line, computes each row's htmId, re-encodes
// the row through the editor's output dialect, and hands the result to
// silo.
func (w *Worker) Map(ctx context.Context, _ string, block []byte, silo *mapreduce.Silo[Key]) error {
	start := 0
	for i := 0; i <= len(block); i++ {
		if i < len(block) && block[i] != '\n' {
			continue
		}
		line := block[start:i]
		start = i + 1
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := w.mapLine(line)
		if err != nil {
			return err
		}
		if err := silo.Add(rec); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) mapLine(line []byte) (mapreduce.Record[Key], error) {
	if err := w.editor.ReadRecord(line); err != nil {
		return mapreduce.Record[Key]{}, err
	}
	id, err := w.editor.GetInt(w.idField)
	if err != nil {
		return mapreduce.Record[Key]{}, fmt.Errorf("htmindexer: bad id field: %w", qerr.ErrInvalidFile)
	}
	lon, err := w.editor.GetFloat(w.lonField)
	if err != nil {
		return mapreduce.Record[Key]{}, fmt.Errorf("htmindexer: bad lon field: %w", qerr.ErrInvalidFile)
	}
	lat, err := w.editor.GetFloat(w.latField)
	if err != nil {
		return mapreduce.Record[Key]{}, fmt.Errorf("htmindexer: bad lat field: %w", qerr.ErrInvalidFile)
	}
	htmID, err := geom.HTMID(geom.Cartesian(lon, lat), w.cfg.Level)
	if err != nil {
		return mapreduce.Record[Key]{}, err
	}

	var buf []byte
	bw := bufio.NewWriter(sliceWriter{&buf})
	if err := w.editor.WriteRecord(bw); err != nil {
		return mapreduce.Record[Key]{}, err
	}
	if err := bw.Flush(); err != nil {
		return mapreduce.Record[Key]{}, err
	}
	return mapreduce.Record[Key]{Key: Key{RecordID: id, HtmID: htmID}, Data: buf}, nil
}

// sliceWriter adapts a *[]byte to io.Writer by appending.
type sliceWriter struct{ buf *[]byte }

func (s sliceWriter) Write(p []byte) (int, error) {
	*s.buf = append(*s.buf, p...)
	return len(p), nil
}

// Reduce appends every record in this maximal htmId run to that
// triangle's CSV and id files, under a node_NNNNN subdirectory keyed by
// hash(htmId) mod NumNodes, then records the triangle's count.
func (w *Worker) Reduce(_ context.Context, key Key, records []mapreduce.Record[Key]) error {
	htmID := key.HtmID
	txtPath := partfile.TrianglePath(w.cfg.OutDir, htmID, w.cfg.NumNodes, "txt")
	idsPath := partfile.TrianglePath(w.cfg.OutDir, htmID, w.cfg.NumNodes, "ids")
	if err := os.MkdirAll(filepath.Dir(txtPath), 0o755); err != nil {
		return err
	}

	txt, err := mapreduce.OpenAppender(txtPath, w.cfg.Compress)
	if err != nil {
		return err
	}
	defer txt.Close()
	ids, err := mapreduce.OpenAppender(idsPath, false)
	if err != nil {
		return err
	}
	defer ids.Close()

	var idBuf [8]byte
	for _, rec := range records {
		if _, err := txt.Write(rec.Data); err != nil {
			return err
		}
		binary.BigEndian.PutUint64(idBuf[:], uint64(rec.Key.RecordID))
		if _, err := ids.Write(idBuf[:]); err != nil {
			return err
		}
	}
	return w.idx.Add(htmID, uint64(len(records)))
}

// Finish is a no-op: every triangle's files and count are already
// flushed within Reduce, since a Reduce call always receives a
// triangle's complete run.
func (w *Worker) Finish(context.Context) error { return nil }

// Result returns the local HtmIndex this worker accumulated.
func (w *Worker) Result() any { return w.idx }
