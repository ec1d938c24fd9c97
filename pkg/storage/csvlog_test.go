package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/fsr-logger/pkg/record"
)

func reading(id uint64, raw int) record.Reading {
	return record.Reading{
		ID:        id,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, int(id)*1000, time.UTC),
		Raw:       raw,
		Force:     float64(raw) / 7,
	}
}

type snapshotter interface {
	Snapshot() (io.ReadCloser, error)
}

func snapshot(t *testing.T, s snapshotter) string {
	t.Helper()
	rc, err := s.Snapshot()
	require.NoError(t, err)
	return drain(t, rc)
}

func drain(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestCSVLogAppendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_data.txt")
	l := NewCSVLog(path, time.UTC)

	require.NoError(t, l.Append(reading(0, 100)))
	require.NoError(t, l.Append(reading(1, 200)))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, record.Header, lines[0])
	assert.Equal(t, reading(0, 100).Line(), lines[1])
	assert.Equal(t, reading(1, 200).Line(), lines[2])
}

func TestCSVLogTail(t *testing.T) {
	l := NewCSVLog(filepath.Join(t.TempDir(), "log.txt"), time.UTC)

	got, skipped, err := l.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, skipped)

	for i := 0; i < 15; i++ {
		require.NoError(t, l.Append(reading(uint64(i), 40+i)))
	}

	got, skipped, err = l.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, got, 10)
	assert.Equal(t, uint64(5), got[0].ID)
	assert.Equal(t, uint64(14), got[9].ID)

	got, _, err = l.Tail(100)
	require.NoError(t, err)
	assert.Len(t, got, 15)

	got, _, err = l.Tail(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCSVLogTailSkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	content := record.Header + "\n" +
		reading(0, 100).Line() + "\n" +
		"1,2024-03-01 12:00:00.000001\n" +
		reading(2, 300).Line() + "\n" +
		"3,2024-03-01 12:00:00.000003,abc,1.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l := NewCSVLog(path, time.UTC)
	got, skipped, err := l.Tail(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].ID)
	assert.Equal(t, uint64(2), got[1].ID)

	require.Len(t, skipped, 2)
	assert.Equal(t, int64(strings.Index(content, "1,2024")), skipped[0].Pos)
	assert.Equal(t, "1,2024-03-01 12:00:00.000001", skipped[0].Text)
	assert.Equal(t, int64(strings.Index(content, "3,2024")), skipped[1].Pos)
	assert.ErrorIs(t, skipped[0], ErrMalformedRow)
}

func TestCSVLogTailSkipsOversizedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	content := record.Header + "\n" +
		reading(0, 100).Line() + "\n" +
		strings.Repeat("x", 70000) + "\n" +
		reading(1, 200).Line() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l := NewCSVLog(path, time.UTC)
	got, skipped, err := l.Tail(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].ID)
	assert.Equal(t, uint64(1), got[1].ID)

	require.Len(t, skipped, 1)
	assert.ErrorIs(t, skipped[0], ErrMalformedRow)
	assert.Less(t, len(skipped[0].Text), 100)
}

func TestCSVLogTailAcrossBlocks(t *testing.T) {
	l := NewCSVLog(filepath.Join(t.TempDir(), "log.txt"), time.UTC)
	for i := 0; i < 500; i++ {
		require.NoError(t, l.Append(reading(uint64(i), 40+i)))
	}

	for _, n := range []int{1, 10, 99, 100, 499, 500, 600} {
		got, skipped, err := l.Tail(n)
		require.NoError(t, err)
		assert.Empty(t, skipped)
		want := n
		if want > 500 {
			want = 500
		}
		require.Len(t, got, want, "n=%d", n)
		for i, r := range got {
			assert.Equal(t, uint64(500-want+i), r.ID, "n=%d", n)
		}
	}
}

func TestCSVLogTailWithoutTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	content := record.Header + "\n" + reading(0, 100).Line() + "\n" + reading(1, 200).Line()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, skipped, err := NewCSVLog(path, time.UTC).Tail(1)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].ID)
}

func TestCSVLogSnapshotIsBoundedAtOpen(t *testing.T) {
	l := NewCSVLog(filepath.Join(t.TempDir(), "log.txt"), time.UTC)
	require.NoError(t, l.Append(reading(0, 100)))

	rc, err := l.Snapshot()
	require.NoError(t, err)
	require.NoError(t, l.Append(reading(1, 200)))
	require.NoError(t, l.Reset())
	require.NoError(t, l.Append(reading(0, 300)))

	assert.Equal(t, record.Header+"\n"+reading(0, 100).Line()+"\n", drain(t, rc))
}

func TestCSVLogResetThenAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	l := NewCSVLog(path, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Append(reading(uint64(i), 50)))
	}

	require.NoError(t, l.Reset())
	got, _, err := l.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Equal(t, record.Header+"\n", snapshot(t, l))

	r := reading(0, 999)
	require.NoError(t, l.Append(r))
	got, _, err = l.Tail(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].ID)
	assert.Equal(t, r.Raw, got[0].Raw)
	assert.True(t, r.Timestamp.Equal(got[0].Timestamp))
	assert.InDelta(t, r.Force, got[0].Force, 1e-9)

	assert.Equal(t, record.Header+"\n"+r.Line()+"\n", snapshot(t, l))
}

func TestCSVLogSnapshotMissingFile(t *testing.T) {
	l := NewCSVLog(filepath.Join(t.TempDir(), "missing.txt"), time.UTC)
	assert.Equal(t, record.Header+"\n", snapshot(t, l))
}

func TestCSVLogAppendFailure(t *testing.T) {
	l := NewCSVLog(filepath.Join(t.TempDir(), "no", "such", "dir", "log.txt"), time.UTC)
	assert.Error(t, l.Append(reading(0, 100)))
}
