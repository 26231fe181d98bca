package mapreduce

import (
	"bufio"
	"fmt"
	"os"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// Block is one line-aligned byte range of an input file.
type Block struct {
	Path       string
	Begin, End int64
}

// InputLines splits path into blocks of approximately blockSizeMiB MiB,
// each aligned so it starts and ends on a line boundary (no line is
// split across two blocks).
func InputLines(path string, blockSizeMiB int) ([]Block, error) {
	if blockSizeMiB <= 0 {
		return nil, fmt.Errorf("mapreduce: block size must be positive: %w", qerr.ErrConfig)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}
	target := int64(blockSizeMiB) * 1024 * 1024

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []Block
	var begin int64
	for begin < size {
		want := begin + target
		if want >= size {
			blocks = append(blocks, Block{Path: path, Begin: begin, End: size})
			break
		}
		end, err := nextLineBoundary(f, want, size)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, Block{Path: path, Begin: begin, End: end})
		begin = end
	}
	return blocks, nil
}

// nextLineBoundary scans forward from from until it finds the byte
// index just past the next newline, or size if none remains.
func nextLineBoundary(f *os.File, from, size int64) (int64, error) {
	if _, err := f.Seek(from, 0); err != nil {
		return 0, err
	}
	r := bufio.NewReader(f)
	pos := from
	for {
		b, err := r.ReadByte()
		if err != nil {
			return size, nil
		}
		pos++
		if b == '\n' {
			return pos, nil
		}
		if pos >= size {
			return size, nil
		}
	}
}

// ReadBlock returns block's raw bytes.
func ReadBlock(b Block) ([]byte, error) {
	f, err := os.Open(b.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, b.End-b.Begin)
	if _, err := f.ReadAt(buf, b.Begin); err != nil {
		return nil, err
	}
	return buf, nil
}
