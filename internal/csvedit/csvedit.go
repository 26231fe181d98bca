// Package csvedit implements a zero-copy CSV record editor: it parses
// one line at a time into field slots that reference the input buffer
// directly, lets callers read and overwrite individual fields by index,
// and re-serializes the edited record using a (possibly different)
// output format.
package csvedit

import (
	"bufio"
	"fmt"
	"strconv"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// MaxLineSize and MaxFieldSize are the default limits from §6.1: a line
// over MaxLineSize or a field over MaxFieldSize is rejected as
// LineTooLong / FieldTooLong.
const (
	MaxLineSize  = 65512
	MaxFieldSize = 255
)

// Format describes one side (input or output) of the editor's CSV
// dialect.
type Format struct {
	Delim  byte
	Quote  byte
	Escape byte
	Null   string
	Fields []string
}

// DefaultFormat returns the conventional comma/doublequote/backslash CSV
// dialect with the NULL sentinel \N.
func DefaultFormat(fields []string) Format {
	return Format{Delim: ',', Quote: '"', Escape: '\\', Null: "\\N", Fields: fields}
}

// Config configures an Editor with independent input and output
// dialects, mirroring in.* / out.* settings.
type Config struct {
	In  Format
	Out Format
}

type field struct {
	data []byte
	null bool
}

// Editor parses and rewrites CSV records according to Config. It is not
// safe for concurrent use; callers running multiple map-reduce workers
// construct one Editor per worker.
type Editor struct {
	cfg      Config
	inIndex  map[string]int
	outIndex map[string]int
	fields   []field
	sets     map[int][]byte
	extra    map[string][]byte
}

// NewEditor resolves cfg's field lists once and returns a ready Editor.
func NewEditor(cfg Config) (*Editor, error) {
	if len(cfg.In.Fields) == 0 {
		return nil, fmt.Errorf("csvedit: in.fields must be non-empty: %w", qerr.ErrConfig)
	}
	e := &Editor{
		cfg:      cfg,
		inIndex:  indexOf(cfg.In.Fields),
		outIndex: indexOf(cfg.Out.Fields),
		fields:   make([]field, len(cfg.In.Fields)),
		sets:     make(map[int][]byte),
		extra:    make(map[string][]byte),
	}
	return e, nil
}

func indexOf(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// FieldIndex resolves a configured input field name to its slot index.
func (e *Editor) FieldIndex(name string) (int, bool) {
	i, ok := e.inIndex[name]
	return i, ok
}

// ReadRecord parses one CSV line (without its trailing newline) into
// field slots. Slots reference line directly; line's contents must not
// be mutated or reused until the caller is done with this record's
// fields, satisfying the zero-copy contract. Returns LineTooLong /
// FieldTooLong / a field-count mismatch as errors wrapping
// qerr.ErrInvalidFile.
func (e *Editor) ReadRecord(line []byte) error {
	if len(line) > MaxLineSize {
		return fmt.Errorf("csvedit: line of %d bytes exceeds max %d: %w", len(line), MaxLineSize, qerr.ErrInvalidFile)
	}
	clear(e.sets)
	clear(e.extra)

	idx := 0
	i := 0
	for i <= len(line) {
		if idx >= len(e.fields) {
			return fmt.Errorf("csvedit: line has more fields than configured (%d): %w", len(e.fields), qerr.ErrInvalidFile)
		}
		var raw []byte
		var isNull bool
		var next int
		if i < len(line) && line[i] == e.cfg.In.Quote {
			raw, next = e.readQuotedField(line, i)
		} else {
			raw, isNull, next = e.readPlainField(line, i)
		}
		if len(raw) > MaxFieldSize {
			return fmt.Errorf("csvedit: field %d of %d bytes exceeds max %d: %w", idx, len(raw), MaxFieldSize, qerr.ErrInvalidFile)
		}
		e.fields[idx] = field{data: raw, null: isNull}
		idx++
		i = next
		if i >= len(line) {
			break
		}
		if line[i] == e.cfg.In.Delim {
			i++
			if i == len(line) {
				// Trailing delimiter: one more, empty, field follows.
				if idx >= len(e.fields) {
					return fmt.Errorf("csvedit: line has more fields than configured (%d): %w", len(e.fields), qerr.ErrInvalidFile)
				}
				e.fields[idx] = field{data: line[len(line):], null: e.cfg.In.Null == ""}
				idx++
			}
			continue
		}
		break
	}
	if idx != len(e.fields) {
		return fmt.Errorf("csvedit: line has %d fields, want %d: %w", idx, len(e.fields), qerr.ErrInvalidFile)
	}
	return nil
}

// readPlainField scans an unquoted field starting at i, honoring the
// escape byte, and returns the field's bytes, whether it is the NULL
// sentinel, and the index following the field. The NULL sentinel (e.g.
// "\N") is matched against the field's literal on-the-wire bytes before
// escape processing, so an escape byte that is itself part of the
// sentinel (as in MySQL-style "\N") is never unescaped away.
func (e *Editor) readPlainField(line []byte, i int) ([]byte, bool, int) {
	start := i
	escaped := false
	for i < len(line) {
		c := line[i]
		if c == e.cfg.In.Escape {
			escaped = true
			i += 2
			continue
		}
		if c == e.cfg.In.Delim {
			break
		}
		i++
	}
	end := i
	if end > len(line) {
		end = len(line)
	}
	raw := line[start:end]
	if string(raw) == e.cfg.In.Null {
		return raw, true, end
	}
	if escaped {
		raw = unescape(raw, e.cfg.In.Escape)
	}
	return raw, false, end
}

// readQuotedField scans a quoted field starting at the opening quote at
// i, and returns the field's unquoted, unescaped content and the index
// following the closing quote.
func (e *Editor) readQuotedField(line []byte, i int) ([]byte, int) {
	start := i + 1
	j := start
	var buf []byte
	for j < len(line) {
		c := line[j]
		if c == e.cfg.In.Escape && j+1 < len(line) {
			buf = append(buf, line[j+1])
			j += 2
			continue
		}
		if c == e.cfg.In.Quote {
			if buf == nil {
				buf = append([]byte{}, line[start:j]...)
			}
			return buf, j + 1
		}
		if buf != nil {
			buf = append(buf, c)
		}
		j++
	}
	if buf == nil {
		buf = append([]byte{}, line[start:j]...)
	}
	return buf, j
}

func unescape(raw []byte, escape byte) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == escape && i+1 < len(raw) {
			i++
			out = append(out, raw[i])
			continue
		}
		out = append(out, raw[i])
	}
	return out
}

// NumFields returns the number of configured input fields.
func (e *Editor) NumFields() int { return len(e.fields) }

// Get returns field i's raw bytes, or the override value if field i has
// been overwritten by Set (nil after SetNull).
func (e *Editor) Get(i int) []byte {
	if v, ok := e.sets[i]; ok {
		return v
	}
	return e.fields[i].data
}

// GetString coerces field i to a string.
func (e *Editor) GetString(i int) string { return string(e.Get(i)) }

// GetInt coerces field i to an int64.
func (e *Editor) GetInt(i int) (int64, error) {
	return strconv.ParseInt(e.GetString(i), 10, 64)
}

// GetFloat coerces field i to a float64.
func (e *Editor) GetFloat(i int) (float64, error) {
	return strconv.ParseFloat(e.GetString(i), 64)
}

// IsNull reports whether field i currently holds the NULL sentinel.
func (e *Editor) IsNull(i int) bool {
	if v, ok := e.sets[i]; ok {
		return v == nil
	}
	return e.fields[i].null
}

// SetNull marks field i as NULL for the next WriteRecord.
func (e *Editor) SetNull(i int) { e.sets[i] = nil }

// Set schedules field i to be written as value on the next WriteRecord.
func (e *Editor) Set(i int, value string) { e.sets[i] = []byte(value) }

// SetExtra schedules an output-only field (one with no matching input
// column, e.g. a computed chunkId) to be written as value. name must
// appear in Out.Fields.
func (e *Editor) SetExtra(name, value string) { e.extra[name] = []byte(value) }

// WriteRecord writes the current record (fields as last read, with any
// Set/SetNull overrides applied) to w in the output dialect. Output field
// i, named by Out.Fields, is the SetExtra value of that name if one was
// set, else the input field of that name, else input field i.
func (e *Editor) WriteRecord(w *bufio.Writer) error {
	for i, name := range e.outFieldNames() {
		if i > 0 {
			if err := w.WriteByte(e.cfg.Out.Delim); err != nil {
				return err
			}
		}
		if name != "" {
			if v, ok := e.extra[name]; ok {
				if _, err := w.Write(v); err != nil {
					return err
				}
				continue
			}
		}
		srcIdx := i
		if name != "" {
			if j, ok := e.inIndex[name]; ok {
				srcIdx = j
			}
		}
		if err := e.writeField(w, srcIdx); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

func (e *Editor) outFieldNames() []string {
	if len(e.cfg.Out.Fields) > 0 {
		return e.cfg.Out.Fields
	}
	return e.cfg.In.Fields
}

func (e *Editor) writeField(w *bufio.Writer, i int) error {
	if i < 0 || i >= len(e.fields) {
		return fmt.Errorf("csvedit: output field index %d out of range: %w", i, qerr.ErrInvalidArg)
	}
	if e.IsNull(i) {
		_, err := w.WriteString(e.cfg.Out.Null)
		return err
	}
	v := e.Get(i)
	needsQuote := false
	for _, c := range v {
		if c == e.cfg.Out.Delim || c == e.cfg.Out.Quote || c == '\n' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		_, err := w.Write(v)
		return err
	}
	if err := w.WriteByte(e.cfg.Out.Quote); err != nil {
		return err
	}
	for _, c := range v {
		if c == e.cfg.Out.Quote || c == e.cfg.Out.Escape {
			if err := w.WriteByte(e.cfg.Out.Escape); err != nil {
				return err
			}
		}
		if err := w.WriteByte(c); err != nil {
			return err
		}
	}
	return w.WriteByte(e.cfg.Out.Quote)
}
