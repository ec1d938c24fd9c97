package acquire

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/fsr-logger/pkg/calibration"
	"github.com/ericogr/fsr-logger/pkg/config"
	"github.com/ericogr/fsr-logger/pkg/record"
	"github.com/ericogr/fsr-logger/pkg/storage"
)

type scriptedSampler struct {
	mu     sync.Mutex
	values []int
	errs   map[int]error
	i      int
}

func (s *scriptedSampler) Sample() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.i
	s.i++
	if err, ok := s.errs[i]; ok {
		return 0, err
	}
	if len(s.values) == 0 {
		return 0, nil
	}
	return s.values[i%len(s.values)], nil
}

func (s *scriptedSampler) Close() error { return nil }

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time  { return c.t }
func (c *fixedClock) Set(t time.Time) { c.t = t }

type displayRecorder struct {
	mu      sync.Mutex
	status  [][]string
	maxSeen []float64
}

func (d *displayRecorder) Status(lines ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = append(d.status, lines)
	return nil
}

func (d *displayRecorder) Publish(r record.Reading, max float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxSeen = append(d.maxSeen, max)
	return nil
}

func (d *displayRecorder) Close() error { return nil }

func newLoop(t *testing.T, s *scriptedSampler) (*Loop, *storage.Store, *displayRecorder) {
	t.Helper()
	cfg := config.DefaultConfig().Storage
	cfg.Dir = t.TempDir()
	st, err := storage.Open(cfg, time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	out := &displayRecorder{}
	l := New(Config{
		Sampler:   s,
		Curve:     calibration.DefaultCurve(),
		Store:     st,
		Clock:     &fixedClock{t: time.Date(2024, 5, 1, 8, 0, 0, 250000000, time.UTC)},
		Output:    out,
		Threshold: 31,
		Period:    time.Millisecond,
	})
	return l, st, out
}

func TestBelowThresholdRecordsNothing(t *testing.T) {
	l, st, out := newLoop(t, &scriptedSampler{values: []int{0, 5, 30, 31}})
	for i := 0; i < 8; i++ {
		c := l.Step()
		assert.Nil(t, c.Reading)
		assert.Equal(t, BelowThreshold, c.State)
	}
	got, _, err := st.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0.0, l.Max())
	assert.Empty(t, out.maxSeen)
}

func TestAboveThresholdRecordsEveryCycle(t *testing.T) {
	curve := calibration.DefaultCurve()
	l, st, out := newLoop(t, &scriptedSampler{values: []int{10, 40, 31, 2048, 32, 0}})

	var cycles []Cycle
	for i := 0; i < 6; i++ {
		cycles = append(cycles, l.Step())
	}

	states := []State{BelowThreshold, Sampling, BelowThreshold, Sampling, Sampling, BelowThreshold}
	for i, c := range cycles {
		assert.Equal(t, states[i], c.State, "cycle %d", i)
	}

	got, skipped, err := st.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, got, 3)
	for i, raw := range []int{40, 2048, 32} {
		assert.Equal(t, uint64(i), got[i].ID)
		assert.Equal(t, raw, got[i].Raw)
		assert.InDelta(t, curve.Force(raw), got[i].Force, 1e-9)
		assert.Equal(t, 250000000, got[i].Timestamp.Nanosecond())
	}

	assert.Equal(t, curve.Force(2048), l.Max())
	assert.Equal(t, []float64{curve.Force(40), curve.Force(2048), curve.Force(2048)}, out.maxSeen)
	assert.Equal(t, BelowThreshold, l.State())
}

func TestSampleErrorSkipsCycle(t *testing.T) {
	s := &scriptedSampler{values: []int{100}, errs: map[int]error{1: errors.New("i2c nack")}}
	l, st, _ := newLoop(t, s)

	assert.NoError(t, l.Step().Err)
	assert.Error(t, l.Step().Err)
	assert.NoError(t, l.Step().Err)

	got, _, err := st.Tail(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[1].ID)
}

func TestStoreFailureIsReportedAndLoopContinues(t *testing.T) {
	dir := t.TempDir()
	bad := storage.NewStore(
		storage.NewCSVLog(dir+"/missing/log.txt", time.UTC),
		storage.NewFileCounter(dir+"/id.txt"),
	)
	out := &displayRecorder{}
	l := New(Config{
		Sampler:   &scriptedSampler{values: []int{500}},
		Curve:     calibration.DefaultCurve(),
		Store:     bad,
		Clock:     &fixedClock{t: time.Now()},
		Output:    out,
		Threshold: 31,
		Period:    time.Millisecond,
	})

	c := l.Step()
	assert.False(t, c.Saved)
	assert.Error(t, c.Err)
	c = l.Step()
	assert.False(t, c.Saved)

	require.Len(t, out.status, 2)
	assert.Equal(t, "Error writing record", out.status[0][0])
	assert.Greater(t, l.Max(), 0.0)
}

func TestRunStopsOnCancel(t *testing.T) {
	l, st, _ := newLoop(t, &scriptedSampler{values: []int{100}})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, _, err := st.Tail(1000)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	for i, r := range got {
		assert.Equal(t, uint64(i), r.ID)
	}
}

func TestSessionID(t *testing.T) {
	l, _, _ := newLoop(t, &scriptedSampler{})
	assert.Len(t, l.Session(), 36)
}

func TestSessionIDFromConfig(t *testing.T) {
	l := New(Config{Session: "bench-1"})
	assert.Equal(t, "bench-1", l.Session())
}
