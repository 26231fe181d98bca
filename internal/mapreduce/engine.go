package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/lsst/qserv-sub016/internal/qerr"
	"golang.org/x/sync/errgroup"
)

// Engine runs the split/map/shuffle/reduce pipeline described by spec
// §4.4 over a fixed worker pool.
type Engine[K any] struct {
	cfg Config[K]
}

// New validates cfg and returns a ready Engine. If cfg.NumBuckets is 0
// it defaults to cfg.NumWorkers.
func New[K any](cfg Config[K]) (*Engine[K], error) {
	if cfg.NumWorkers <= 0 {
		return nil, fmt.Errorf("mapreduce: numWorkers must be positive: %w", qerr.ErrConfig)
	}
	if cfg.BlockSizeMiB <= 0 {
		cfg.BlockSizeMiB = 16
	}
	if cfg.NumBuckets <= 0 {
		cfg.NumBuckets = cfg.NumWorkers
	}
	if cfg.Hash == nil || cfg.Less == nil {
		return nil, fmt.Errorf("mapreduce: Hash and Less are required: %w", qerr.ErrConfig)
	}
	if cfg.RunDir == "" {
		dir, err := os.MkdirTemp("", "mapreduce-run-")
		if err != nil {
			return nil, err
		}
		cfg.RunDir = dir
	}
	return &Engine[K]{cfg: cfg}, nil
}

// Run executes the full pipeline over inputPaths, using newWorker to
// build one Worker per mapper goroutine (also the reducer for the
// bucket(s) it owns, cycling if NumBuckets != NumWorkers, with Finish
// called once per worker after its last bucket). It returns each
// worker's Result(), indexed by worker ordinal. Cancelling ctx aborts
// the job; any worker error aborts the job and removes all run files,
// per the fatal MapReduceError failure semantics in §4.4.
func (e *Engine[K]) Run(ctx context.Context, inputPaths []string, newWorker func() Worker[K]) ([]any, error) {
	workers := make([]Worker[K], e.cfg.NumWorkers)
	silos := make([]*Silo[K], e.cfg.NumWorkers)
	for i := range workers {
		workers[i] = newWorker()
		silos[i] = newSilo(e.cfg, i, e.cfg.NumBuckets)
	}

	if err := e.mapPhase(ctx, inputPaths, workers, silos); err != nil {
		e.cleanup(silos)
		return nil, fmt.Errorf("mapreduce: map phase: %w", errWithWorker(err))
	}

	runsByBucket, tailByBucket, err := e.collectBuckets(silos)
	if err != nil {
		e.cleanup(silos)
		return nil, fmt.Errorf("mapreduce: finalizing silos: %w", errWithWorker(err))
	}

	if err := e.reducePhase(ctx, workers, runsByBucket, tailByBucket); err != nil {
		e.cleanup(silos)
		return nil, fmt.Errorf("mapreduce: reduce phase: %w", errWithWorker(err))
	}

	e.cleanupRuns(runsByBucket)

	results := make([]any, len(workers))
	for i, w := range workers {
		results[i] = w.Result()
	}
	return results, nil
}

// errWithWorker classifies a pipeline-stage error into the qerr
// taxonomy: context cancellation/deadline errors keep their meaning,
// anything else (a failing Worker.Map/Reduce/Finish call, a run-file
// I/O failure) is a fatal MapReduceError per §4.4.
func errWithWorker(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", qerr.ErrCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", qerr.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", qerr.ErrWorker, err)
	}
}

// mapPhase splits every input file into blocks and distributes them
// across NumWorkers mapper goroutines, each backed by its own Worker
// and Silo; blocks are pulled from a shared channel in arrival order so
// faster workers steal more work.
func (e *Engine[K]) mapPhase(ctx context.Context, inputPaths []string, workers []Worker[K], silos []*Silo[K]) error {
	blocks := make(chan Block, e.cfg.NumWorkers*2)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(blocks)
		for _, path := range inputPaths {
			bs, err := InputLines(path, e.cfg.BlockSizeMiB)
			if err != nil {
				return err
			}
			for _, b := range bs {
				select {
				case blocks <- b:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return nil
	})

	for i := 0; i < e.cfg.NumWorkers; i++ {
		i := i
		g.Go(func() error {
			for {
				select {
				case b, ok := <-blocks:
					if !ok {
						return nil
					}
					data, err := ReadBlock(b)
					if err != nil {
						return err
					}
					if err := workers[i].Map(gctx, b.Path, data, silos[i]); err != nil {
						return err
					}
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}
	return g.Wait()
}

// collectBuckets finalizes every silo, returning per-bucket run file
// lists. Silo.finish flushes every in-memory tail to a run file, so the
// per-bucket tails it returns are always empty.
func (e *Engine[K]) collectBuckets(silos []*Silo[K]) (runsByBucket [][]string, tailByBucket [][]Record[K], err error) {
	runsByBucket = make([][]string, e.cfg.NumBuckets)
	for _, s := range silos {
		perBucket, err := s.finish()
		if err != nil {
			return nil, nil, err
		}
		for b, paths := range perBucket {
			runsByBucket[b] = append(runsByBucket[b], paths...)
		}
	}
	return runsByBucket, make([][]Record[K], e.cfg.NumBuckets), nil
}

// reducePhase merges each bucket's runs into a single sorted stream and
// delivers every maximal equal-key run to the owning worker's Reduce. A
// worker can own several buckets when NumBuckets != NumWorkers, but it
// is still a single goroutine and its trailing Finish is still called
// exactly once, after its last bucket, per §4.4.
func (e *Engine[K]) reducePhase(ctx context.Context, workers []Worker[K], runsByBucket [][]string, tailByBucket [][]Record[K]) error {
	bucketsByWorker := make([][]int, len(workers))
	for b := 0; b < e.cfg.NumBuckets; b++ {
		w := b % len(workers)
		bucketsByWorker[w] = append(bucketsByWorker[w], b)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		w := w
		g.Go(func() error {
			for _, b := range bucketsByWorker[w] {
				if err := e.reduceBucket(gctx, workers[w], runsByBucket[b], tailByBucket[b]); err != nil {
					return err
				}
			}
			return workers[w].Finish(gctx)
		})
	}
	return g.Wait()
}

func (e *Engine[K]) reduceBucket(ctx context.Context, w Worker[K], runs []string, tail []Record[K]) error {
	if len(runs) == 0 && len(tail) == 0 {
		return nil
	}
	ms, err := newMergeStream(runs, tail, e.cfg.Less)
	if err != nil {
		return err
	}
	defer ms.close()

	var run []Record[K]
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, ok, err := ms.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if len(run) > 0 && keysEqual(run[0].Key, rec.Key, e.cfg.Less) {
			run = append(run, rec)
			continue
		}
		if len(run) > 0 {
			if err := w.Reduce(ctx, run[0].Key, run); err != nil {
				return err
			}
		}
		run = []Record[K]{rec}
	}
	if len(run) > 0 {
		if err := w.Reduce(ctx, run[0].Key, run); err != nil {
			return err
		}
	}
	return nil
}

func keysEqual[K any](a, b K, less func(a, b K) bool) bool {
	return !less(a, b) && !less(b, a)
}

func (e *Engine[K]) cleanup(silos []*Silo[K]) {
	for _, s := range silos {
		s.removeRuns()
	}
}

func (e *Engine[K]) cleanupRuns(runsByBucket [][]string) {
	for _, paths := range runsByBucket {
		for _, p := range paths {
			_ = removeFile(p)
		}
	}
}

func removeFile(path string) error {
	return os.Remove(path)
}
