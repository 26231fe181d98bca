package duplicator

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lsst/qserv-sub016/internal/chunker"
	"github.com/lsst/qserv-sub016/internal/csvedit"
	"github.com/lsst/qserv-sub016/internal/geom"
	"github.com/lsst/qserv-sub016/internal/mapreduce"
	"github.com/lsst/qserv-sub016/internal/partfile"
	"github.com/lsst/qserv-sub016/internal/partidx"
	"github.com/lsst/qserv-sub016/internal/qerr"
)

// TargetMap maps a source HTM triangle id to the set of target HTM
// triangle ids that should be populated by rotating copies of it.
type TargetMap map[uint32][]uint32

// Shared is the read-only state every duplicator Worker instance needs;
// the driver builds it once and passes a pointer to every worker.
type Shared struct {
	Chunker    *chunker.Chunker
	PartIndex  *partidx.HtmIndex
	DataIndex  *partidx.HtmIndex
	Targets    TargetMap
}

// Worker rotates one source triangle's records onto each of its target
// triangles, producing chunk/overlap records. One Worker instance is
// created per mapper goroutine and also reduces the bucket it owns.
type Worker struct {
	cfg    Config
	shared *Shared
	editor *csvedit.Editor

	recordIDField int
	partIDField   int // -1 if PartitioningIDField is unset
	partLon       int
	partLat       int
	secondary     []secondaryFields

	idx *partidx.ChunkIndex

	curSource  uint32
	sourceSet  bool
	ids        *idArray
	transforms map[uint32]geom.Mat3 // target htmId -> rotation from curSource
}

type secondaryFields struct {
	lon, lat int
}

// NewWorker validates cfg and returns a ready duplicator Worker sharing
// shared (built once by the driver).
func NewWorker(cfg Config, shared *Shared) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if shared.PartIndex.Level() != shared.DataIndex.Level() {
		return nil, fmt.Errorf("duplicator: partIndex level %d != dataIndex level %d: %w", shared.PartIndex.Level(), shared.DataIndex.Level(), ErrInconsistentIndex)
	}
	editor, err := csvedit.NewEditor(cfg.Format)
	if err != nil {
		return nil, err
	}
	recordIDField, ok := editor.FieldIndex(cfg.RecordIDField)
	if !ok {
		return nil, fmt.Errorf("duplicator: record id field %q not in in.fields: %w", cfg.RecordIDField, qerr.ErrConfig)
	}
	partIDField := -1
	if cfg.PartitioningIDField != "" {
		if i, ok := editor.FieldIndex(cfg.PartitioningIDField); ok {
			partIDField = i
		}
	}
	partLon, ok := editor.FieldIndex(cfg.PartPosition.LonField)
	if !ok {
		return nil, fmt.Errorf("duplicator: partitioning lon field %q not in in.fields: %w", cfg.PartPosition.LonField, qerr.ErrConfig)
	}
	partLat, ok := editor.FieldIndex(cfg.PartPosition.LatField)
	if !ok {
		return nil, fmt.Errorf("duplicator: partitioning lat field %q not in in.fields: %w", cfg.PartPosition.LatField, qerr.ErrConfig)
	}
	var secondary []secondaryFields
	for _, p := range cfg.SecondaryPositions {
		lon, ok1 := editor.FieldIndex(p.LonField)
		lat, ok2 := editor.FieldIndex(p.LatField)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("duplicator: secondary position fields %q/%q not in in.fields: %w", p.LonField, p.LatField, qerr.ErrConfig)
		}
		secondary = append(secondary, secondaryFields{lon: lon, lat: lat})
	}

	return &Worker{
		cfg: cfg, shared: shared, editor: editor,
		recordIDField: recordIDField, partIDField: partIDField,
		partLon: partLon, partLat: partLat, secondary: secondary,
		idx: partidx.NewChunkIndex(),
	}, nil
}

// ErrInconsistentIndex is returned when partIndex and dataIndex disagree
// on HTM level.
var ErrInconsistentIndex = fmt.Errorf("%w: partIndex and dataIndex levels disagree", qerr.ErrInvalidArg)

// Map processes one source triangle's file in full: path identifies the
// source triangle (htm_<hex>.txt), so the first call for a new source
// runs _setup, then every line is rotated onto each of that source's
// targets.
func (w *Worker) Map(ctx context.Context, path string, block []byte, silo *mapreduce.Silo[chunker.ChunkLocation]) error {
	sourceID, err := parseHtmIDFromPath(path)
	if err != nil {
		return err
	}
	if !w.sourceSet || sourceID != w.curSource {
		if err := w.setup(sourceID); err != nil {
			return err
		}
	}

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
		if err := w.mapLine(line, silo); err != nil {
			return err
		}
	}
	return nil
}

// setup implements _setup(S): loads S's sorted id array and precomputes
// the rotation transform to every target triangle of S.
func (w *Worker) setup(source uint32) error {
	idsPath := partfile.TrianglePath(w.cfg.InDir, source, w.cfg.InNodes, "ids")
	ids, err := loadIdArray(idsPath)
	if err != nil {
		return err
	}

	sourceTri, err := geom.TriangleFromHTMID(source)
	if err != nil {
		return err
	}
	transforms := make(map[uint32]geom.Mat3, len(w.shared.Targets[source]))
	for _, target := range w.shared.Targets[source] {
		if target == source {
			transforms[target] = geom.Mat3{Col0: geom.Vec3{X: 1}, Col1: geom.Vec3{Y: 1}, Col2: geom.Vec3{Z: 1}}
			continue
		}
		targetTri, err := geom.TriangleFromHTMID(target)
		if err != nil {
			return err
		}
		transforms[target] = rotation(sourceTri, targetTri)
	}

	w.curSource = source
	w.sourceSet = true
	w.ids = ids
	w.transforms = transforms
	return nil
}

func (w *Worker) mapLine(line []byte, silo *mapreduce.Silo[chunker.ChunkLocation]) error {
	if err := w.editor.ReadRecord(line); err != nil {
		return err
	}
	recordID, err := w.editor.GetInt(w.recordIDField)
	if err != nil {
		return fmt.Errorf("duplicator: bad record id: %w", qerr.ErrInvalidFile)
	}
	samplingKey := uint64(recordID)
	if w.partIDField >= 0 && !w.editor.IsNull(w.partIDField) {
		if partID, err := w.editor.GetInt(w.partIDField); err == nil {
			samplingKey = uint64(partID)
		}
	}
	if !w.cfg.Sampling.keep(samplingKey) {
		return nil
	}

	idx, err := w.ids.indexOf(recordID)
	if err != nil {
		return err
	}

	lon, err := w.editor.GetFloat(w.partLon)
	if err != nil {
		return fmt.Errorf("duplicator: bad partitioning lon: %w", qerr.ErrInvalidFile)
	}
	lat, err := w.editor.GetFloat(w.partLat)
	if err != nil {
		return fmt.Errorf("duplicator: bad partitioning lat: %w", qerr.ErrInvalidFile)
	}
	v := geom.Cartesian(lon, lat)

	for target, m := range w.transforms {
		// Re-parse so each target starts from the source row's own values.
		if err := w.editor.ReadRecord(line); err != nil {
			return err
		}
		tv := v
		identity := target == w.curSource
		if !identity {
			tv = apply(m, v)
		}
		tlon, tlat := geom.Spherical(tv)

		var locs []chunker.ChunkLocation
		locs = w.shared.Chunker.Locate(tlon, tlat, -1, locs)
		if len(locs) == 0 {
			continue
		}

		outID := RemapID(target, idx)
		if !identity {
			w.editor.Set(w.partLon, formatFloat(tlon))
			w.editor.Set(w.partLat, formatFloat(tlat))
			for _, sp := range w.secondary {
				if w.editor.IsNull(sp.lon) || w.editor.IsNull(sp.lat) {
					w.editor.SetNull(sp.lon)
					w.editor.SetNull(sp.lat)
					continue
				}
				slon, err := w.editor.GetFloat(sp.lon)
				if err != nil {
					return fmt.Errorf("duplicator: bad secondary lon: %w", qerr.ErrInvalidFile)
				}
				slat, err := w.editor.GetFloat(sp.lat)
				if err != nil {
					return fmt.Errorf("duplicator: bad secondary lat: %w", qerr.ErrInvalidFile)
				}
				sv := apply(m, geom.Cartesian(slon, slat))
				rlon, rlat := geom.Spherical(sv)
				w.editor.Set(sp.lon, formatFloat(rlon))
				w.editor.Set(sp.lat, formatFloat(rlat))
			}
		}
		w.editor.Set(w.recordIDField, strconv.FormatUint(outID, 10))

		for _, loc := range locs {
			w.editor.SetExtra(w.cfg.ChunkIDField, strconv.Itoa(int(loc.ChunkID)))
			w.editor.SetExtra(w.cfg.SubChunkIDField, strconv.Itoa(int(loc.SubChunkID)))

			var buf []byte
			bw := bufio.NewWriter(sliceWriter{&buf})
			if err := w.editor.WriteRecord(bw); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			if err := silo.Add(mapreduce.Record[chunker.ChunkLocation]{Key: loc, Data: buf, Overlap: loc.Overlap}); err != nil {
				return err
			}
		}
	}
	return nil
}

type sliceWriter struct{ buf *[]byte }

func (s sliceWriter) Write(p []byte) (int, error) {
	*s.buf = append(*s.buf, p...)
	return len(p), nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// Reduce appends every record of one (chunkId,subChunkId,overlap) run to
// that chunk's main or overlap output file, sharded under a node_NNNNN
// directory when OutNodes>1, then records the sub-chunk's count.
func (w *Worker) Reduce(_ context.Context, key chunker.ChunkLocation, records []mapreduce.Record[chunker.ChunkLocation]) error {
	path := partfile.ChunkPath(w.cfg.OutDir, key.ChunkID, w.cfg.OutNodes, key.Overlap)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := mapreduce.OpenAppender(path, w.cfg.Compress)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, rec := range records {
		if _, err := out.Write(rec.Data); err != nil {
			return err
		}
	}
	w.idx.Add(partidx.ChunkKey{ChunkID: key.ChunkID, SubChunkID: key.SubChunkID}, key.Overlap, uint64(len(records)))
	return nil
}

// Finish is a no-op: every sub-chunk's file and count are flushed within
// Reduce, since a Reduce call always receives one sub-chunk's complete
// run of records.
func (w *Worker) Finish(context.Context) error { return nil }

// Result returns the local ChunkIndex this worker accumulated.
func (w *Worker) Result() any { return w.idx }
