// Package partfile names and shards the per-triangle and per-chunk
// output files the HTM indexer and duplicator produce: both workers
// write a CSV/ids pair (or a main/overlap CSV pair) under a node_NNNNN
// directory chosen by hashing the file's key, and this package is the
// one place that naming and sharding scheme lives.
package partfile

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// HashUint32 is the fnv-1a hash used to shard a uint32 key (an htm id or
// a chunk id, reinterpreted unsigned) across node directories.
func HashUint32(v uint32) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}

// NodeDir returns the node_NNNNN directory key is sharded under, for a
// layout with numNodes nodes.
func NodeDir(key uint32, numNodes int) string {
	n := HashUint32(key) % uint64(numNodes)
	return fmt.Sprintf("node_%05d", n)
}

// HexID renders an htm id as the 8 hex digit string used in htm_<hex>
// file names.
func HexID(htmID uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], htmID)
	return hex.EncodeToString(buf[:])
}

// ParseHexID inverts HexID.
func ParseHexID(s string) (uint32, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 4 {
		return 0, fmt.Errorf("partfile: malformed htm hex id %q: %w", s, qerr.ErrInvalidArg)
	}
	return binary.BigEndian.Uint32(raw), nil
}

// TrianglePath returns the path to triangle htmId's file with the given
// extension ("txt" or "ids"), sharded under dir by numNodes.
func TrianglePath(dir string, htmID uint32, numNodes int, ext string) string {
	return filepath.Join(dir, NodeDir(htmID, numNodes), fmt.Sprintf("htm_%s.%s", HexID(htmID), ext))
}

// ParseTrianglePath recovers the htm id from a path produced by
// TrianglePath (or any htm_<hex>.<ext> basename).
func ParseTrianglePath(path string) (uint32, error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	hexPart := strings.TrimPrefix(base, "htm_")
	if hexPart == base {
		return 0, fmt.Errorf("partfile: path %q is not a triangle file: %w", path, qerr.ErrInvalidArg)
	}
	return ParseHexID(hexPart)
}

// ChunkPath returns the path to chunkId's main or overlap file, sharded
// under dir by numNodes when numNodes > 1 (a single-node layout keeps
// chunk files directly under dir, unlike TrianglePath, which always
// places files in a node directory).
func ChunkPath(dir string, chunkID int32, numNodes int, overlap bool) string {
	name := fmt.Sprintf("chunk_%d.txt", chunkID)
	if overlap {
		name = fmt.Sprintf("chunk_%d_overlap.txt", chunkID)
	}
	if numNodes <= 1 {
		return filepath.Join(dir, name)
	}
	return filepath.Join(dir, NodeDir(uint32(chunkID), numNodes), name)
}
