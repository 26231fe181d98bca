package duplicator

import (
	"context"
	"fmt"

	"github.com/lsst/qserv-sub016/internal/chunker"
	"github.com/lsst/qserv-sub016/internal/mapreduce"
	"github.com/lsst/qserv-sub016/internal/partidx"
)

// RunOptions carries the driver's operational knobs that are not part of
// the worker's per-record Config: the layout to chunk into, and the
// map-reduce engine's concurrency/staging settings.
type RunOptions struct {
	Chunker         chunker.Config
	NumWorkers      int
	BlockSizeMiB    int
	BucketThreshold int
	RunDir          string
}

// Run duplicates records from every populated source triangle in
// dataIndex onto every target triangle required to cover cfg's target
// chunks (expanded by the layout's overlap plus a 1 arcsecond margin),
// producing chunk_<id>.txt/chunk_<id>_overlap.txt files and returning the
// combined ChunkIndex. partIndex and dataIndex must share the same HTM
// level (InconsistentIndex otherwise).
func Run(ctx context.Context, cfg Config, opts RunOptions, partIndex, dataIndex *partidx.HtmIndex) (*partidx.ChunkIndex, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if partIndex.Level() != dataIndex.Level() {
		return nil, fmt.Errorf("duplicator: partIndex level %d != dataIndex level %d: %w", partIndex.Level(), dataIndex.Level(), ErrInconsistentIndex)
	}
	if partIndex.Level() != cfg.Level {
		return nil, fmt.Errorf("duplicator: index level %d != cfg.Level %d: %w", partIndex.Level(), cfg.Level, ErrInconsistentIndex)
	}

	ck, err := chunker.New(opts.Chunker)
	if err != nil {
		return nil, err
	}

	targets, err := buildTargetMap(ck, opts.Chunker.OverlapDeg, cfg, dataIndex)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return partidx.NewChunkIndex(), nil
	}

	shared := &Shared{Chunker: ck, PartIndex: partIndex, DataIndex: dataIndex, Targets: targets}

	inputPaths := make([]string, 0, len(targets))
	for source := range targets {
		inputPaths = append(inputPaths, inputPath(cfg.InDir, source, cfg.InNodes))
	}

	mrCfg := mapreduce.Config[chunker.ChunkLocation]{
		NumWorkers:      opts.NumWorkers,
		BlockSizeMiB:    opts.BlockSizeMiB,
		BucketThreshold: opts.BucketThreshold,
		RunDir:          opts.RunDir,
		Hash:            func(k chunker.ChunkLocation) uint64 { return uint64(uint32(k.ChunkID)) },
		Less:            lessChunkLocation,
	}
	engine, err := mapreduce.New(mrCfg)
	if err != nil {
		return nil, err
	}

	results, err := engine.Run(ctx, inputPaths, func() mapreduce.Worker[chunker.ChunkLocation] {
		w, werr := NewWorker(cfg, shared)
		if werr != nil {
			// NewWorker was already validated once above via cfg.Validate
			// and the level check; a construction failure here would be a
			// programmer error, not a runtime condition the engine's
			// newWorker signature can report, so panic rather than silently
			// run with a broken worker.
			panic(werr)
		}
		return w
	})
	if err != nil {
		return nil, err
	}

	combined := partidx.NewChunkIndex()
	for _, r := range results {
		idx, ok := r.(*partidx.ChunkIndex)
		if !ok {
			continue
		}
		combined.Merge(idx)
	}
	return combined, nil
}

// lessChunkLocation orders records by chunkId, then subChunkId, then
// overlap (main before overlap), matching the grouping the duplicator's
// Reduce expects: one call per (chunkId,subChunkId,overlap) triple.
func lessChunkLocation(a, b chunker.ChunkLocation) bool {
	if a.ChunkID != b.ChunkID {
		return a.ChunkID < b.ChunkID
	}
	if a.SubChunkID != b.SubChunkID {
		return a.SubChunkID < b.SubChunkID
	}
	return !a.Overlap && b.Overlap
}

// overlapMarginDeg is the fixed margin (beyond the layout's own overlap)
// added when expanding a target chunk's bounds to find every HTM
// triangle that might contribute overlap records, absorbing floating
// point jitter at the overlap boundary.
const overlapMarginDeg = 1.0 / 3600.0

// buildTargetMap enumerates every HTM triangle needed to cover cfg's
// target chunks and maps each to a donor source triangle via
// dataIndex.MapToNonEmpty, inverting into source -> []target.
func buildTargetMap(ck *chunker.Chunker, overlapDeg float64, cfg Config, dataIndex *partidx.HtmIndex) (TargetMap, error) {
	chunkIDs := cfg.TargetChunks
	if len(chunkIDs) == 0 {
		n := ck.NumChunks()
		chunkIDs = make([]int32, n)
		for i := range chunkIDs {
			chunkIDs[i] = int32(i)
		}
	}

	seenTarget := make(map[uint32]bool)
	targets := make(TargetMap)
	for _, id := range chunkIDs {
		bounds, err := ck.GetChunkBounds(id)
		if err != nil {
			return nil, err
		}
		expanded := bounds.Expand(overlapDeg + overlapMarginDeg)
		htmIDs, err := expanded.HTMIDs(cfg.Level)
		if err != nil {
			return nil, err
		}
		for _, t := range htmIDs {
			if seenTarget[t] {
				continue
			}
			seenTarget[t] = true
			s, err := dataIndex.MapToNonEmpty(t)
			if err != nil {
				return nil, err
			}
			targets[s] = append(targets[s], t)
		}
	}
	return targets, nil
}
