package web

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ericogr/fsr-logger/pkg/clock"
)

var (
	ErrMalformedField = errors.New("malformed field")
	ErrUnknownField   = errors.New("unknown field")
)

// parseClockForm reads a key=value&... body over current. Every field is
// checked and all failures are reported together; an empty value keeps the
// current one. Nothing is applied by this function.
func parseClockForm(body string, current clock.Fields) (clock.Fields, error) {
	out := current
	targets := map[string]*int{
		"year":   &out.Year,
		"month":  &out.Month,
		"day":    &out.Day,
		"hour":   &out.Hour,
		"minute": &out.Minute,
		"second": &out.Second,
	}

	var errs []error
	for _, pair := range strings.Split(strings.TrimSpace(body), "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.Contains(value, "=") {
			errs = append(errs, fmt.Errorf("%w: %q", ErrMalformedField, pair))
			continue
		}
		key, kerr := url.QueryUnescape(key)
		value, verr := url.QueryUnescape(value)
		if kerr != nil || verr != nil {
			errs = append(errs, fmt.Errorf("%w: %q", ErrMalformedField, pair))
			continue
		}
		dst, ok := targets[key]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownField, key))
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrMalformedField, key, err))
			continue
		}
		*dst = n
	}
	if err := errors.Join(errs...); err != nil {
		return current, err
	}
	return out, nil
}
