package output

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericogr/fsr-logger/pkg/record"
)

type recorder struct {
	status  [][]string
	publish []float64
	err     error
	closed  bool
}

func (r *recorder) Status(lines ...string) error {
	r.status = append(r.status, lines)
	return r.err
}

func (r *recorder) Publish(rd record.Reading, max float64) error {
	r.publish = append(r.publish, max)
	return r.err
}

func (r *recorder) Close() error {
	r.closed = true
	return r.err
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("broker down")}
	m := Multi(a, b)

	assert.Error(t, m.Status("Starting..."))
	assert.Error(t, m.Publish(record.Reading{Timestamp: time.Now()}, 4.5))
	assert.Error(t, m.Close())

	for _, r := range []*recorder{a, b} {
		assert.Equal(t, [][]string{{"Starting..."}}, r.status)
		assert.Equal(t, []float64{4.5}, r.publish)
		assert.True(t, r.closed)
	}
}

func TestMultiEmpty(t *testing.T) {
	m := Multi()
	assert.NoError(t, m.Status("x"))
	assert.NoError(t, m.Close())
}
