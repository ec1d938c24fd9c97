// Package clock is the device calendar clock: a software real-time clock
// that can be set by hand and restored from a small snapshot file.
package clock

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrFieldRange reports a calendar field outside its valid range.
var ErrFieldRange = errors.New("field out of range")

type Clock interface {
	Now() time.Time
	Set(t time.Time)
}

// RTC keeps an offset from the host clock. It is safe for concurrent use.
type RTC struct {
	mu     sync.Mutex
	offset time.Duration
	loc    *time.Location
	now    func() time.Time
}

func NewRTC(loc *time.Location) *RTC {
	if loc == nil {
		loc = time.Local
	}
	return &RTC{loc: loc, now: time.Now}
}

func (c *RTC) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Add(c.offset).In(c.loc)
}

func (c *RTC) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = t.Sub(c.now())
}

func (c *RTC) Location() *time.Location { return c.loc }

// Fields are the calendar components that can be set by hand and that are
// kept in the snapshot file.
type Fields struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

func FieldsOf(t time.Time) Fields {
	return Fields{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

func (f Fields) Validate() error {
	check := func(name string, v, lo, hi int) error {
		if v < lo || v > hi {
			return fmt.Errorf("%s %d: %w", name, v, ErrFieldRange)
		}
		return nil
	}
	if err := check("year", f.Year, 1, 9999); err != nil {
		return err
	}
	if err := check("month", f.Month, 1, 12); err != nil {
		return err
	}
	days := time.Date(f.Year, time.Month(f.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if err := check("day", f.Day, 1, days); err != nil {
		return err
	}
	if err := check("hour", f.Hour, 0, 23); err != nil {
		return err
	}
	if err := check("minute", f.Minute, 0, 59); err != nil {
		return err
	}
	return check("second", f.Second, 0, 59)
}

// Time combines the fields with the sub-second part and location of base.
func (f Fields) Time(base time.Time) time.Time {
	return time.Date(f.Year, time.Month(f.Month), f.Day, f.Hour, f.Minute, f.Second, base.Nanosecond(), base.Location())
}

// Apply validates f and sets the clock to it, keeping the current
// sub-second part.
func Apply(c Clock, f Fields) (time.Time, error) {
	if err := f.Validate(); err != nil {
		return time.Time{}, err
	}
	t := f.Time(c.Now())
	c.Set(t)
	return t, nil
}
