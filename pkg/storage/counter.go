package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// FileCounter stores the next identifier as a bare decimal integer.
type FileCounter struct {
	path string
}

func NewFileCounter(path string) *FileCounter {
	return &FileCounter{path: path}
}

func (c *FileCounter) Path() string { return c.path }

// Value reads the stored value. A missing file is 0.
func (c *FileCounter) Value() (uint64, error) {
	b, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read id counter: %w", err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id counter: %w", err)
	}
	return v, nil
}

func (c *FileCounter) Next() (uint64, error) {
	cur, rerr := c.Value()
	if rerr != nil {
		cur = 0
	}
	var werr error
	if err := writeFileAtomic(c.path, []byte(strconv.FormatUint(cur+1, 10))); err != nil {
		werr = fmt.Errorf("write id counter: %w", err)
	}
	return cur, errors.Join(rerr, werr)
}

func (c *FileCounter) Reset() error {
	if err := writeFileAtomic(c.path, []byte("0")); err != nil {
		return fmt.Errorf("reset id counter: %w", err)
	}
	return nil
}
