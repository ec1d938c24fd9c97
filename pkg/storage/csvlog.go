package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ericogr/fsr-logger/pkg/record"
)

// CSVLog keeps the record log as a comma separated text file.
type CSVLog struct {
	path string
	loc  *time.Location
}

func NewCSVLog(path string, loc *time.Location) *CSVLog {
	return &CSVLog{path: path, loc: loc}
}

func (l *CSVLog) Path() string { return l.path }

// Append writes the header (for a new or empty file) and the record line in a
// single write call.
func (l *CSVLog) Append(r record.Reading) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open record log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat record log: %w", err)
	}
	buf := make([]byte, 0, len(record.Header)+64)
	if st.Size() == 0 {
		buf = append(buf, record.Header...)
		buf = append(buf, '\n')
	}
	buf = append(buf, r.Line()...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write record: %w", err)
	}
	return f.Close()
}

// Tail reads the file backwards in blocks until it holds n complete rows,
// so the cost depends on n and the row length, not on the log size.
func (l *CSVLog) Tail(n int) ([]record.Reading, []*RowError, error) {
	if n <= 0 {
		return nil, nil, nil
	}
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open record log: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat record log: %w", err)
	}
	rows, err := lastRows(f, st.Size(), n)
	if err != nil {
		return nil, nil, fmt.Errorf("read record log: %w", err)
	}

	readings := make([]record.Reading, 0, len(rows))
	var skipped []*RowError
	for _, rw := range rows {
		r, err := record.Parse(string(rw.text), l.loc)
		if err != nil {
			skipped = append(skipped, &RowError{Pos: rw.pos, Text: clip(rw.text), Err: err})
			continue
		}
		readings = append(readings, r)
	}
	return readings, skipped, nil
}

const (
	tailBlock   = 4096
	maxRowShown = 80
)

type rawRow struct {
	pos  int64
	text []byte
}

// lastRows returns up to n rows from the end of f, never the header.
func lastRows(f io.ReaderAt, size int64, n int) ([]rawRow, error) {
	var blocks [][]byte
	pos := size
	newlines := 0
	// n+1 newlines guarantee the first of the n rows starts inside the window
	for pos > 0 && newlines <= n {
		step := int64(tailBlock)
		if pos < step {
			step = pos
		}
		pos -= step
		buf := make([]byte, step)
		if _, err := f.ReadAt(buf, pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		newlines += bytes.Count(buf, []byte{'\n'})
		blocks = append(blocks, buf)
	}

	window := make([]byte, 0, size-pos)
	for i := len(blocks) - 1; i >= 0; i-- {
		window = append(window, blocks[i]...)
	}
	// the first line is either the header or cut by the window start
	first := bytes.IndexByte(window, '\n')
	if first < 0 {
		return nil, nil
	}
	off := pos + int64(first) + 1
	body := window[first+1:]

	var rows []rawRow
	for len(body) > 0 {
		line := body
		i := bytes.IndexByte(body, '\n')
		if i >= 0 {
			line = body[:i]
			body = body[i+1:]
		} else {
			body = nil
		}
		rows = append(rows, rawRow{pos: off, text: line})
		off += int64(len(line)) + 1
	}
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows, nil
}

func clip(b []byte) string {
	if len(b) > maxRowShown {
		return string(b[:maxRowShown]) + "..."
	}
	return string(b)
}

type fileSnapshot struct {
	r io.Reader
	f *os.File
}

func (s *fileSnapshot) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *fileSnapshot) Close() error               { return s.f.Close() }

// Snapshot opens the log and bounds the reader at its current size. Appends
// only add bytes past that offset and a reset renames a new file into place,
// so the open file keeps the extent seen here.
func (l *CSVLog) Snapshot() (io.ReadCloser, error) {
	header := io.NopCloser(strings.NewReader(record.Header + "\n"))
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return header, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open record log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat record log: %w", err)
	}
	if st.Size() == 0 {
		f.Close()
		return header, nil
	}
	return &fileSnapshot{r: io.NewSectionReader(f, 0, st.Size()), f: f}, nil
}

// Reset replaces the file with a header-only one via rename.
func (l *CSVLog) Reset() error {
	if err := writeFileAtomic(l.path, []byte(record.Header+"\n")); err != nil {
		return fmt.Errorf("reset record log: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
