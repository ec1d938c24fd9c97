package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ericogr/fsr-logger/pkg/config"
	"github.com/ericogr/fsr-logger/pkg/record"
)

// Store is the single mutual-exclusion domain around the record log and the
// identifier counter. The acquisition loop and the request dispatcher share
// one Store; at most one log or counter operation runs at any instant. With
// a lock file the domain extends to every process opening the same files.
type Store struct {
	mu      sync.Mutex
	file    *flock.Flock
	log     Log
	ids     Counter
	closers []io.Closer
}

func NewStore(log Log, ids Counter) *Store {
	return &Store{log: log, ids: ids}
}

// WithLockFile makes every operation also hold an exclusive lock on path.
func (s *Store) WithLockFile(path string) *Store {
	s.file = flock.New(path)
	return s
}

func (s *Store) lock() error {
	s.mu.Lock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Lock(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("lock storage: %w", err)
	}
	return nil
}

func (s *Store) unlock() {
	if s.file != nil {
		if err := s.file.Unlock(); err != nil {
			slog.Warn("unlock storage", "path", s.file.Path(), "err", err)
		}
	}
	s.mu.Unlock()
}

// Open builds the Store for the configured backend, creating the storage
// directory when needed.
func Open(cfg config.StorageConfig, loc *time.Location) (*Store, error) {
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	var s *Store
	switch cfg.Backend {
	case config.BackendCSV, "":
		log := NewCSVLog(filepath.Join(cfg.Dir, cfg.DataFile), loc)
		ids := NewFileCounter(filepath.Join(cfg.Dir, cfg.CounterFile))
		s = NewStore(log, ids)
	case config.BackendSQLite:
		db, err := OpenSQLite(filepath.Join(cfg.Dir, cfg.SQLiteFile), loc)
		if err != nil {
			return nil, err
		}
		s = NewStore(db, db.Counter())
		s.closers = append(s.closers, db)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if cfg.LockFile != "" {
		s.WithLockFile(filepath.Join(cfg.Dir, cfg.LockFile))
	}
	return s, nil
}

func (s *Store) NextID() (uint64, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.unlock()
	return s.ids.Next()
}

func (s *Store) Append(r record.Reading) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()
	return s.log.Append(r)
}

// Record issues the next identifier and appends the assembled reading
// without releasing the lock in between, so a concurrent Reset can never
// separate an identifier from the log generation it was issued for.
// saved reports whether the reading reached the log; err may be non-nil
// even when saved is true if the counter is degraded.
func (s *Store) Record(ts time.Time, raw int, force float64) (r record.Reading, saved bool, err error) {
	if err := s.lock(); err != nil {
		return record.Reading{Timestamp: ts, Raw: raw, Force: force}, false, err
	}
	defer s.unlock()

	id, idErr := s.ids.Next()
	r = record.Reading{ID: id, Timestamp: ts, Raw: raw, Force: force}
	if err := s.log.Append(r); err != nil {
		return r, false, errors.Join(idErr, err)
	}
	return r, true, idErr
}

func (s *Store) Tail(n int) ([]record.Reading, []*RowError, error) {
	if err := s.lock(); err != nil {
		return nil, nil, err
	}
	defer s.unlock()
	return s.log.Tail(n)
}

// Snapshot fixes the extent of the log under the lock; the returned reader
// is drained after the lock is released.
func (s *Store) Snapshot() (io.ReadCloser, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.unlock()
	return s.log.Snapshot()
}

// Reset clears the log and sets the counter back to zero as one step.
func (s *Store) Reset() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()
	return errors.Join(s.log.Reset(), s.ids.Reset())
}

func (s *Store) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
