package partidx

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// chunkRecordSize is the width of one binary ChunkIndex entry: 4-byte
// chunkId, 4-byte subChunkId, 8-byte main count, 8-byte overlap count,
// all little-endian.
const chunkRecordSize = 24

// ChunkCounts is the pair of record counts (non-overlap and overlap)
// recorded for one (chunkId, subChunkId).
type ChunkCounts struct {
	Main    uint64
	Overlap uint64
}

// ChunkKey identifies a sub-chunk.
type ChunkKey struct {
	ChunkID    int32
	SubChunkID int32
}

// ChunkIndex maps (chunkId,subChunkId) -> ChunkCounts, the duplicator's
// analogue of HtmIndex.
type ChunkIndex struct {
	counts map[ChunkKey]ChunkCounts
}

// NewChunkIndex returns an empty ChunkIndex.
func NewChunkIndex() *ChunkIndex {
	return &ChunkIndex{counts: make(map[ChunkKey]ChunkCounts)}
}

// Add increments the main or overlap count for key.
func (c *ChunkIndex) Add(key ChunkKey, overlap bool, delta uint64) {
	cur := c.counts[key]
	if overlap {
		cur.Overlap += delta
	} else {
		cur.Main += delta
	}
	c.counts[key] = cur
}

// Counts returns the counts recorded for key.
func (c *ChunkIndex) Counts(key ChunkKey) ChunkCounts { return c.counts[key] }

// Keys returns the index's populated keys, sorted by (chunkId,subChunkId).
func (c *ChunkIndex) Keys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(c.counts))
	for k := range c.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ChunkID != keys[j].ChunkID {
			return keys[i].ChunkID < keys[j].ChunkID
		}
		return keys[i].SubChunkID < keys[j].SubChunkID
	})
	return keys
}

// Merge folds other's counts into c.
func (c *ChunkIndex) Merge(other *ChunkIndex) {
	for k, v := range other.counts {
		cur := c.counts[k]
		cur.Main += v.Main
		cur.Overlap += v.Overlap
		c.counts[k] = cur
	}
}

// WriteTo serializes c as a sequence of 24-byte binary records.
func (c *ChunkIndex) WriteTo(w io.Writer) (int64, error) {
	var written int64
	var buf [chunkRecordSize]byte
	for _, k := range c.Keys() {
		v := c.counts[k]
		binary.LittleEndian.PutUint32(buf[0:4], uint32(k.ChunkID))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(k.SubChunkID))
		binary.LittleEndian.PutUint64(buf[8:16], v.Main)
		binary.LittleEndian.PutUint64(buf[16:24], v.Overlap)
		n, err := w.Write(buf[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// ReadChunkIndex parses a binary ChunkIndex file.
func ReadChunkIndex(r io.Reader) (*ChunkIndex, error) {
	idx := NewChunkIndex()
	buf := make([]byte, chunkRecordSize)
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			return nil, fmt.Errorf("partidx: truncated chunk index record: %w", qerr.ErrInvalidFile)
		}
		key := ChunkKey{
			ChunkID:    int32(binary.LittleEndian.Uint32(buf[0:4])),
			SubChunkID: int32(binary.LittleEndian.Uint32(buf[4:8])),
		}
		cur := idx.counts[key]
		cur.Main += binary.LittleEndian.Uint64(buf[8:16])
		cur.Overlap += binary.LittleEndian.Uint64(buf[16:24])
		idx.counts[key] = cur
	}
}

type chunkIndexJSON struct {
	Entries []chunkIndexEntry `json:"entries"`
}

type chunkIndexEntry struct {
	ChunkID    int32  `json:"chunkId"`
	SubChunkID int32  `json:"subChunkId"`
	Main       uint64 `json:"main"`
	Overlap    uint64 `json:"overlap"`
}

// MarshalJSON renders c as a sorted, stable JSON document.
func (c *ChunkIndex) MarshalJSON() ([]byte, error) {
	var doc chunkIndexJSON
	for _, k := range c.Keys() {
		v := c.counts[k]
		doc.Entries = append(doc.Entries, chunkIndexEntry{ChunkID: k.ChunkID, SubChunkID: k.SubChunkID, Main: v.Main, Overlap: v.Overlap})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON restores c from the format produced by MarshalJSON.
func (c *ChunkIndex) UnmarshalJSON(data []byte) error {
	var doc chunkIndexJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	c.counts = make(map[ChunkKey]ChunkCounts, len(doc.Entries))
	for _, e := range doc.Entries {
		c.counts[ChunkKey{ChunkID: e.ChunkID, SubChunkID: e.SubChunkID}] = ChunkCounts{Main: e.Main, Overlap: e.Overlap}
	}
	return nil
}
