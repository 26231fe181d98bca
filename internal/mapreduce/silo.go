package mapreduce

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

// Config controls an Engine's splitting, bucketing, and concurrency.
type Config[K any] struct {
	NumWorkers      int
	BlockSizeMiB    int
	NumBuckets      int // 0 defaults to NumWorkers
	BucketThreshold int // records buffered per bucket before spilling
	RunDir          string

	Hash func(K) uint64
	Less func(a, b K) bool
}

var runFileSeq atomic.Int64

type bucket[K any] struct {
	records []Record[K]
	runs    []string
}

// Silo accumulates one mapper thread's output into per-bucket arrays,
// spilling a sorted run file to RunDir whenever a bucket's buffered
// record count reaches BucketThreshold. Not safe for concurrent use; the
// engine creates one Silo per mapper goroutine.
type Silo[K any] struct {
	cfg     Config[K]
	id      int
	buckets []bucket[K]
}

func newSilo[K any](cfg Config[K], id, numBuckets int) *Silo[K] {
	return &Silo[K]{cfg: cfg, id: id, buckets: make([]bucket[K], numBuckets)}
}

// Add buckets rec by Hash(rec.Key) mod the silo's bucket count, spilling
// that bucket to disk if it has reached the configured threshold.
func (s *Silo[K]) Add(rec Record[K]) error {
	b := int(s.cfg.Hash(rec.Key) % uint64(len(s.buckets)))
	s.buckets[b].records = append(s.buckets[b].records, rec)
	if s.cfg.BucketThreshold > 0 && len(s.buckets[b].records) >= s.cfg.BucketThreshold {
		return s.flush(b)
	}
	return nil
}

// flush sorts bucket b's buffered records and spills them to a new run
// file, then empties the in-memory buffer.
func (s *Silo[K]) flush(b int) error {
	recs := s.buckets[b].records
	if len(recs) == 0 {
		return nil
	}
	slices.SortFunc(recs, func(a, c Record[K]) int {
		switch {
		case s.cfg.Less(a.Key, c.Key):
			return -1
		case s.cfg.Less(c.Key, a.Key):
			return 1
		default:
			return 0
		}
	})

	seq := runFileSeq.Add(1)
	path := filepath.Join(s.cfg.RunDir, fmt.Sprintf("run-%d-%d-%d.bin", s.id, b, seq))
	if err := writeRunFile(path, recs); err != nil {
		return err
	}
	s.buckets[b].runs = append(s.buckets[b].runs, path)
	s.buckets[b].records = nil
	return nil
}

// finish flushes every non-empty bucket's tail and returns, per bucket,
// the run files this silo produced (including the final tail run).
func (s *Silo[K]) finish() ([][]string, error) {
	out := make([][]string, len(s.buckets))
	for b := range s.buckets {
		if len(s.buckets[b].records) > 0 {
			if err := s.flush(b); err != nil {
				return nil, err
			}
		}
		out[b] = s.buckets[b].runs
	}
	return out, nil
}

// removeRuns deletes every run file the silo produced; used to clean up
// after a failed job per the "all run files are removed" failure
// semantics.
func (s *Silo[K]) removeRuns() {
	for b := range s.buckets {
		for _, path := range s.buckets[b].runs {
			os.Remove(path)
		}
	}
}

func writeRunFile[K any](path string, recs []Record[K]) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := msgpack.NewEncoder(f)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
	}
	return f.Close()
}
