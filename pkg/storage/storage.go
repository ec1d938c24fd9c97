// Package storage holds the durable record log and identifier counter of the
// logger, together with the Store that serializes every access to them.
package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/ericogr/fsr-logger/pkg/record"
)

// ErrMalformedRow marks a stored line that is neither the header nor a
// complete reading.
var ErrMalformedRow = errors.New("malformed row")

// RowError reports a stored row that was skipped while reading the log.
type RowError struct {
	// Pos locates the row: its byte offset in a CSV log, its sequence
	// number in SQLite.
	Pos  int64
	Text string
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row at %d %q: %v", e.Pos, e.Text, e.Err)
}

func (e *RowError) Unwrap() []error { return []error{ErrMalformedRow, e.Err} }

// Log is an append-only sequence of readings behind a fixed header.
type Log interface {
	Append(r record.Reading) error
	// Tail returns up to n of the most recent readings in log order. Rows
	// that fail to parse are returned in skipped instead of aborting.
	Tail(n int) (readings []record.Reading, skipped []*RowError, err error)
	// Snapshot fixes the extent of the log, header included, and returns a
	// reader over it. Readings appended afterwards are not part of it, and
	// reading it does not need the Store lock.
	Snapshot() (io.ReadCloser, error)
	// Reset clears the log back to header only.
	Reset() error
}

// Counter issues reading identifiers and persists the next one to issue.
type Counter interface {
	// Next returns the current value and stores value+1. The returned id is
	// always usable; a non-nil error reports a degraded counter.
	Next() (uint64, error)
	Reset() error
}
