// Package output is the display surface: short status lines and the latest
// force with its session maximum, fanned out to every configured sink.
package output

import (
	"errors"

	"github.com/ericogr/fsr-logger/pkg/record"
)

type Output interface {
	Status(lines ...string) error
	Publish(r record.Reading, max float64) error
	Close() error
}

type multi []Output

// Multi fans every call out to outs and joins their errors.
func Multi(outs ...Output) Output { return multi(outs) }

func (m multi) Status(lines ...string) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.Status(lines...))
	}
	return errors.Join(errs...)
}

func (m multi) Publish(r record.Reading, max float64) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.Publish(r, max))
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.Close())
	}
	return errors.Join(errs...)
}
