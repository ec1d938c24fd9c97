package storage

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ericogr/fsr-logger/pkg/record"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
	seq   INTEGER PRIMARY KEY AUTOINCREMENT,
	id    INTEGER NOT NULL,
	ts    TEXT NOT NULL,
	raw   INTEGER NOT NULL,
	force TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS id_counter (
	k     INTEGER PRIMARY KEY CHECK (k = 0),
	value INTEGER NOT NULL
);`

// SQLite keeps both the record log and the identifier counter in one
// database file. Readings are stored in their text form so that export and
// parsing match the CSV backend byte for byte.
type SQLite struct {
	db  *sql.DB
	loc *time.Location
}

func OpenSQLite(path string, loc *time.Location) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db, loc: loc}, nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Append(r record.Reading) error {
	_, err := s.db.Exec(`INSERT INTO readings (id, ts, raw, force) VALUES (?, ?, ?, ?)`,
		r.ID, r.Timestamp.Format(record.TimeLayout), r.Raw, record.FormatForce(r.Force))
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *SQLite) Tail(n int) ([]record.Reading, []*RowError, error) {
	if n <= 0 {
		return nil, nil, nil
	}
	rows, err := s.db.Query(`
		SELECT seq, id, ts, raw, force FROM (
			SELECT seq, id, ts, raw, force FROM readings ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, n)
	if err != nil {
		return nil, nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []record.Reading
	var skipped []*RowError
	for rows.Next() {
		var seq int64
		var id, ts, raw, force string
		if err := rows.Scan(&seq, &id, &ts, &raw, &force); err != nil {
			return nil, nil, fmt.Errorf("scan reading: %w", err)
		}
		line := strings.Join([]string{id, ts, raw, force}, ",")
		r, err := record.Parse(line, s.loc)
		if err != nil {
			skipped = append(skipped, &RowError{Pos: seq, Text: line, Err: err})
			continue
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate readings: %w", err)
	}
	return readings, skipped, nil
}

const snapshotPage = 256

// Snapshot fixes the highest sequence number and pages through the rows up
// to it as the reader is drained. A reset while the snapshot is being read
// ends it early; rows written after the reset have higher sequence numbers
// and never appear.
func (s *SQLite) Snapshot() (io.ReadCloser, error) {
	var last int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM readings`).Scan(&last); err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	snap := &sqliteSnapshot{db: s.db, last: last}
	snap.buf.WriteString(record.Header + "\n")
	return snap, nil
}

type sqliteSnapshot struct {
	db   *sql.DB
	seq  int64
	last int64
	buf  bytes.Buffer
}

func (r *sqliteSnapshot) Read(p []byte) (int, error) {
	for r.buf.Len() == 0 {
		if r.seq >= r.last {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	return r.buf.Read(p)
}

func (r *sqliteSnapshot) fill() error {
	rows, err := r.db.Query(`SELECT seq, id, ts, raw, force FROM readings
		WHERE seq > ? AND seq <= ? ORDER BY seq ASC LIMIT ?`, r.seq, r.last, snapshotPage)
	if err != nil {
		return fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var seq int64
		var id, ts, raw, force string
		if err := rows.Scan(&seq, &id, &ts, &raw, &force); err != nil {
			return fmt.Errorf("scan reading: %w", err)
		}
		r.buf.WriteString(strings.Join([]string{id, ts, raw, force}, ","))
		r.buf.WriteByte('\n')
		r.seq = seq
		n++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate readings: %w", err)
	}
	if n == 0 {
		r.seq = r.last
	}
	return nil
}

func (r *sqliteSnapshot) Close() error { return nil }

func (s *SQLite) Reset() error {
	if _, err := s.db.Exec(`DELETE FROM readings`); err != nil {
		return fmt.Errorf("delete readings: %w", err)
	}
	return nil
}

// Counter exposes the identifier counter kept in the same database.
func (s *SQLite) Counter() Counter { return sqliteCounter{s.db} }

type sqliteCounter struct {
	db *sql.DB
}

func (c sqliteCounter) Next() (uint64, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin id counter: %w", err)
	}
	defer tx.Rollback()

	var cur uint64
	var rerr error
	err = tx.QueryRow(`SELECT value FROM id_counter WHERE k = 0`).Scan(&cur)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		rerr = fmt.Errorf("read id counter: %w", err)
		cur = 0
	}
	if _, err := tx.Exec(`INSERT INTO id_counter (k, value) VALUES (0, ?)
		ON CONFLICT(k) DO UPDATE SET value = excluded.value`, cur+1); err != nil {
		return cur, errors.Join(rerr, fmt.Errorf("write id counter: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return cur, errors.Join(rerr, fmt.Errorf("commit id counter: %w", err))
	}
	return cur, rerr
}

func (c sqliteCounter) Reset() error {
	if _, err := c.db.Exec(`INSERT INTO id_counter (k, value) VALUES (0, 0)
		ON CONFLICT(k) DO UPDATE SET value = 0`); err != nil {
		return fmt.Errorf("reset id counter: %w", err)
	}
	return nil
}
