// Package partidx holds the per-triangle and per-chunk record-count
// indexes produced by the HTM indexer and the duplicator: compact maps
// from a spatial key to the number of records that landed there, with a
// binary wire format designed so that concatenating two index files is
// equivalent to merging the indexes they represent.
package partidx

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"sort"

	"github.com/lsst/qserv-sub016/internal/geom"
	"github.com/lsst/qserv-sub016/internal/qerr"
)

// htmRecordSize is the width in bytes of one binary HtmIndex entry: a
// 4-byte little-endian htmId followed by an 8-byte little-endian count.
const htmRecordSize = 12

// HtmIndex maps htmId -> record count for triangles at a single HTM
// level.
type HtmIndex struct {
	level  int
	counts map[uint32]uint64
}

// NewHtmIndex returns an empty index for the given HTM level.
func NewHtmIndex(level int) *HtmIndex {
	return &HtmIndex{level: level, counts: make(map[uint32]uint64)}
}

// Level returns the HTM level this index was built for.
func (h *HtmIndex) Level() int { return h.level }

// Add increments the count for htmId by delta, validating that htmId
// belongs to this index's level.
func (h *HtmIndex) Add(htmID uint32, delta uint64) error {
	if geom.HTMLevel(htmID) != h.level {
		return fmt.Errorf("partidx: htm id %#x is not a well-formed level-%d id: %w", htmID, h.level, qerr.ErrInvalidFile)
	}
	h.counts[htmID] += delta
	return nil
}

// Count returns the current count for htmId, 0 if absent.
func (h *HtmIndex) Count(htmID uint32) uint64 { return h.counts[htmID] }

// Ids returns the index's populated htm ids, sorted ascending.
func (h *HtmIndex) Ids() []uint32 {
	ids := make([]uint32, 0, len(h.counts))
	for id := range h.counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Merge folds other's counts into h, summing counts for shared ids.
// Both indexes must share the same level.
func (h *HtmIndex) Merge(other *HtmIndex) error {
	if other.level != h.level {
		return fmt.Errorf("partidx: cannot merge htm index level %d into level %d: %w", other.level, h.level, qerr.ErrInvalidArg)
	}
	for id, c := range other.counts {
		h.counts[id] += c
	}
	return nil
}

// MapToNonEmpty deterministically maps id to one of h's populated ids,
// by hashing id and indexing into the sorted id array mod its size. Used
// by the duplicator to pick a donor triangle for an empty target. h must
// be non-empty.
func (h *HtmIndex) MapToNonEmpty(id uint32) (uint32, error) {
	ids := h.Ids()
	if len(ids) == 0 {
		return 0, fmt.Errorf("partidx: mapToNonEmpty on empty index: %w", qerr.ErrInvalidArg)
	}
	return ids[hashID(id)%uint64(len(ids))], nil
}

func hashID(id uint32) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], id)
	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}

// WriteTo serializes h as a sequence of 12-byte binary records, ids
// sorted ascending, matching the format in which two files for the same
// level concatenate to the files' merge.
func (h *HtmIndex) WriteTo(w io.Writer) (int64, error) {
	var written int64
	var buf [htmRecordSize]byte
	for _, id := range h.Ids() {
		binary.LittleEndian.PutUint32(buf[0:4], id)
		binary.LittleEndian.PutUint64(buf[4:12], h.counts[id])
		n, err := w.Write(buf[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// ReadHtmIndex parses a binary HtmIndex file for the given level. Any
// record whose id is not a well-formed level-L id is fatal.
func ReadHtmIndex(r io.Reader, level int) (*HtmIndex, error) {
	idx := NewHtmIndex(level)
	buf := make([]byte, htmRecordSize)
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			return nil, fmt.Errorf("partidx: truncated htm index record: %w", qerr.ErrInvalidFile)
		}
		id := binary.LittleEndian.Uint32(buf[0:4])
		count := binary.LittleEndian.Uint64(buf[4:12])
		if err := idx.Add(id, count); err != nil {
			return nil, err
		}
	}
}

// htmIndexJSON is the JSON dump shape: a sorted array keeps the dump
// byte-stable for identical indexes.
type htmIndexJSON struct {
	Level   int              `json:"level"`
	Entries []htmIndexEntry `json:"entries"`
}

type htmIndexEntry struct {
	HtmID uint32 `json:"htmId"`
	Count uint64 `json:"count"`
}

// MarshalJSON renders h as a sorted, stable JSON document.
func (h *HtmIndex) MarshalJSON() ([]byte, error) {
	doc := htmIndexJSON{Level: h.level}
	for _, id := range h.Ids() {
		doc.Entries = append(doc.Entries, htmIndexEntry{HtmID: id, Count: h.counts[id]})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON restores h from the format produced by MarshalJSON.
func (h *HtmIndex) UnmarshalJSON(data []byte) error {
	var doc htmIndexJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	h.level = doc.Level
	h.counts = make(map[uint32]uint64, len(doc.Entries))
	for _, e := range doc.Entries {
		h.counts[e.HtmID] = e.Count
	}
	return nil
}
