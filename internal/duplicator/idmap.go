package duplicator

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// idArray is a sorted array of record ids read from a source triangle's
// .ids file, supporting the binary-search id-remap lookup described in
// §4.6.
type idArray struct {
	ids []int64
}

// loadIdArray reads path (a sequence of 8-byte big-endian ids, per
// §6.3) and returns them sorted ascending.
func loadIdArray(path string) (*idArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []int64
	buf := make([]byte, 8)
	for {
		_, err := io.ReadFull(f, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("duplicator: truncated ids file %s: %w", path, qerr.ErrInvalidFile)
		}
		ids = append(ids, int64(binary.BigEndian.Uint64(buf)))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &idArray{ids: ids}, nil
}

// indexOf returns the position of id within the sorted array via binary
// search, or IdNotFound wrapping qerr.ErrNotFound.
func (a *idArray) indexOf(id int64) (uint32, error) {
	i := sort.Search(len(a.ids), func(i int) bool { return a.ids[i] >= id })
	if i >= len(a.ids) || a.ids[i] != id {
		return 0, fmt.Errorf("%w: id %d not found in source triangle's id array", qerr.ErrNotFound, id)
	}
	return uint32(i), nil
}

// RemapID computes the duplicator's output id K = (uint64)T<<32 |
// indexOf(id,A), unique across all target triangles since T is unique
// per target and the low 32 bits are unique within one source triangle.
func RemapID(targetHtmID uint32, idx uint32) uint64 {
	return uint64(targetHtmID)<<32 | uint64(idx)
}
