package mapreduce

import "context"

// Worker implements one domain-specific map-reduce job (the HTM indexer
// or the duplicator). The engine creates one Worker per mapper thread
// via a factory function, and re-uses that same Worker to reduce the
// bucket it owns, so Result can safely be the state the worker
// accumulated across its own reduce calls.
type Worker[K any] interface {
	// Map parses block (read from path) and emits zero or more Records
	// to silo. path lets workers that need whole-file context (the
	// duplicator's per-source-triangle setup) detect when a new source
	// file begins.
	Map(ctx context.Context, path string, block []byte, silo *Silo[K]) error

	// Reduce is called once per maximal equal-key run in this worker's
	// bucket, with records sharing a single key (ties broken by Less).
	Reduce(ctx context.Context, key K, records []Record[K]) error

	// Finish is called once after the last Reduce call for this worker's
	// bucket.
	Finish(ctx context.Context) error

	// Result returns the worker's locally accumulated output (e.g. a
	// partial HtmIndex or ChunkIndex), to be combined by the caller.
	Result() any
}
