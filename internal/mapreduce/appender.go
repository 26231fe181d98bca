package mapreduce

import (
	"bufio"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// BufferedAppender is a buffered, append-only file writer used by
// reducers to build per-triangle and per-chunk output files. When
// compress is true, writes are passed through a streaming zstd encoder
// and the file is suffixed with .zst by convention (callers choose the
// path).
type BufferedAppender struct {
	f   *os.File
	bw  *bufio.Writer
	zw  *zstd.Encoder
	out io.Writer
}

// OpenAppender opens path for appending (creating it if absent) and
// wraps it in a buffered writer, optionally with zstd compression.
func OpenAppender(path string, compress bool) (*BufferedAppender, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	a := &BufferedAppender{f: f}
	a.bw = bufio.NewWriter(f)
	a.out = a.bw
	if compress {
		zw, err := zstd.NewWriter(a.bw)
		if err != nil {
			f.Close()
			return nil, err
		}
		a.zw = zw
		a.out = zw
	}
	return a, nil
}

// Write appends p to the file.
func (a *BufferedAppender) Write(p []byte) (int, error) { return a.out.Write(p) }

// Close flushes buffered data (and the zstd stream, if any) and closes
// the underlying file.
func (a *BufferedAppender) Close() error {
	if a.zw != nil {
		if err := a.zw.Close(); err != nil {
			a.f.Close()
			return err
		}
	}
	if err := a.bw.Flush(); err != nil {
		a.f.Close()
		return err
	}
	return a.f.Close()
}
