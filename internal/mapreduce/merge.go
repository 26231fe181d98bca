package mapreduce

import (
	"container/heap"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// runReader streams decoded Records from one sorted run file.
type runReader[K any] struct {
	f   *os.File
	dec *msgpack.Decoder
}

func openRunReader[K any](path string) (*runReader[K], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &runReader[K]{f: f, dec: msgpack.NewDecoder(f)}, nil
}

func (r *runReader[K]) next() (Record[K], bool, error) {
	var rec Record[K]
	err := r.dec.Decode(&rec)
	if err == io.EOF {
		return Record[K]{}, false, nil
	}
	if err != nil {
		return Record[K]{}, false, err
	}
	return rec, true, nil
}

func (r *runReader[K]) close() { r.f.Close() }

// mergeStream is a sorted iterator over every run file and every
// still-buffered in-memory record for one bucket, produced by a k-way
// heap merge of already-sorted inputs.
type mergeStream[K any] struct {
	less    func(a, b K) bool
	readers []*runReader[K]
	h       *mergeHeap[K]
}

type mergeItem[K any] struct {
	rec    Record[K]
	source int // index into readers, or -1 for the in-memory tail
}

type mergeHeap[K any] struct {
	items []mergeItem[K]
	less  func(a, b K) bool
}

func (h mergeHeap[K]) Len() int { return len(h.items) }
func (h mergeHeap[K]) Less(i, j int) bool {
	return h.less(h.items[i].rec.Key, h.items[j].rec.Key)
}
func (h mergeHeap[K]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap[K]) Push(x any)   { h.items = append(h.items, x.(mergeItem[K])) }
func (h *mergeHeap[K]) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items = h.items[:n-1]
	return it
}

// newMergeStream opens runPaths plus tail (the bucket's unflushed
// in-memory records, already sorted by the caller) and returns a merged
// sorted stream over all of them. Callers must call close when done.
func newMergeStream[K any](runPaths []string, tail []Record[K], less func(a, b K) bool) (*mergeStream[K], error) {
	ms := &mergeStream[K]{less: less, h: &mergeHeap[K]{less: less}}
	for _, p := range runPaths {
		r, err := openRunReader[K](p)
		if err != nil {
			ms.close()
			return nil, err
		}
		ms.readers = append(ms.readers, r)
	}
	for i, r := range ms.readers {
		rec, ok, err := r.next()
		if err != nil {
			ms.close()
			return nil, err
		}
		if ok {
			heap.Push(ms.h, mergeItem[K]{rec: rec, source: i})
		}
	}
	for _, rec := range tail {
		heap.Push(ms.h, mergeItem[K]{rec: rec, source: -1})
	}
	return ms, nil
}

// next returns the next record in sorted order, or ok=false when
// exhausted.
func (ms *mergeStream[K]) next() (Record[K], bool, error) {
	if ms.h.Len() == 0 {
		return Record[K]{}, false, nil
	}
	top := heap.Pop(ms.h).(mergeItem[K])
	if top.source >= 0 {
		rec, ok, err := ms.readers[top.source].next()
		if err != nil {
			return Record[K]{}, false, err
		}
		if ok {
			heap.Push(ms.h, mergeItem[K]{rec: rec, source: top.source})
		}
	}
	return top.rec, true, nil
}

func (ms *mergeStream[K]) close() {
	for _, r := range ms.readers {
		r.close()
	}
}
