// Package acquire runs the sampling loop: threshold gating, calibration,
// record assembly and persistence of every accepted reading.
package acquire

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericogr/fsr-logger/pkg/calibration"
	"github.com/ericogr/fsr-logger/pkg/clock"
	"github.com/ericogr/fsr-logger/pkg/output"
	"github.com/ericogr/fsr-logger/pkg/record"
	"github.com/ericogr/fsr-logger/pkg/sensor"
	"github.com/ericogr/fsr-logger/pkg/storage"
)

type State int

const (
	BelowThreshold State = iota
	Sampling
)

func (s State) String() string {
	switch s {
	case BelowThreshold:
		return "below-threshold"
	case Sampling:
		return "sampling"
	default:
		return "unknown"
	}
}

type Config struct {
	Sampler   sensor.Sampler
	Curve     calibration.Curve
	Store     *storage.Store
	Clock     clock.Clock
	Output    output.Output
	Threshold int
	Period    time.Duration
	// Session identifies this run; a fresh one is generated when empty.
	Session string
}

// Loop is the sole writer of new readings. Its state belongs to the
// goroutine that runs it.
type Loop struct {
	cfg     Config
	session string

	state     State
	max       float64
	outFailed bool
}

// Cycle is the outcome of one acquisition cycle.
type Cycle struct {
	Raw     int
	State   State
	Reading *record.Reading
	Saved   bool
	Err     error
}

func New(cfg Config) *Loop {
	session := cfg.Session
	if session == "" {
		session = uuid.NewString()
	}
	return &Loop{cfg: cfg, session: session}
}

func (l *Loop) Session() string { return l.session }
func (l *Loop) State() State    { return l.state }

// Max is the highest force recorded in this session.
func (l *Loop) Max() float64 { return l.max }

// Run samples every period until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("acquisition started",
		"session", l.session,
		"threshold", l.cfg.Threshold,
		"period", l.cfg.Period)
	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("acquisition stopped", "session", l.session, "max", l.max)
			return ctx.Err()
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step runs one acquisition cycle.
func (l *Loop) Step() Cycle {
	raw, err := l.cfg.Sampler.Sample()
	if err != nil {
		slog.Warn("sample failed", "err", err)
		return Cycle{State: l.state, Err: err}
	}
	if raw < 0 {
		raw = 0
	}

	if raw <= l.cfg.Threshold {
		if l.state != BelowThreshold {
			slog.Debug("acquisition idle", "raw", raw)
		}
		l.state = BelowThreshold
		return Cycle{Raw: raw, State: l.state}
	}
	if l.state != Sampling {
		slog.Debug("acquisition sampling", "raw", raw)
	}
	l.state = Sampling

	force := l.cfg.Curve.Force(raw)
	r, saved, err := l.cfg.Store.Record(l.cfg.Clock.Now(), raw, force)
	if err != nil {
		if saved {
			slog.Warn("id counter degraded", "id", r.ID, "err", err)
			l.status("Error with ID counter", err.Error())
		} else {
			slog.Error("reading not saved", "id", r.ID, "raw", raw, "err", err)
			l.status("Error writing record", err.Error())
		}
	}
	if force > l.max {
		l.max = force
	}
	l.publish(r)
	return Cycle{Raw: raw, State: l.state, Reading: &r, Saved: saved, Err: err}
}

func (l *Loop) status(lines ...string) {
	if l.cfg.Output == nil {
		return
	}
	if err := l.cfg.Output.Status(lines...); err != nil {
		slog.Debug("status output failed", "err", err)
	}
}

// publish logs an output failure once until the output recovers.
func (l *Loop) publish(r record.Reading) {
	if l.cfg.Output == nil {
		return
	}
	err := l.cfg.Output.Publish(r, l.max)
	switch {
	case err != nil && !l.outFailed:
		slog.Warn("display output failed", "err", err)
		l.outFailed = true
	case err == nil && l.outFailed:
		slog.Info("display output recovered")
		l.outFailed = false
	}
}
