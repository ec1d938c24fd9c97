package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the first line of every record log.
const Header = "ID,Date,Analog Data,Force (g)"

// TimeLayout is the stored timestamp format (microsecond precision).
const TimeLayout = "2006-01-02 15:04:05.000000"

// Reading is one accepted sensor sample.
type Reading struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Raw       int       `json:"raw"`
	Force     float64   `json:"force"`
}

// FormatForce renders a force value the way it is persisted and displayed.
func FormatForce(f float64) string {
	return strconv.FormatFloat(f, 'f', 9, 64)
}

// Line serializes the reading as id,timestamp,raw,force without a newline.
func (r Reading) Line() string {
	return strings.Join([]string{
		strconv.FormatUint(r.ID, 10),
		r.Timestamp.Format(TimeLayout),
		strconv.Itoa(r.Raw),
		FormatForce(r.Force),
	}, ",")
}

// Parse reads a reading back from its stored line. Timestamps are
// interpreted in loc (UTC when nil).
func Parse(line string, loc *time.Location) (Reading, error) {
	if loc == nil {
		loc = time.UTC
	}
	parts := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(parts) != 4 {
		return Reading{}, fmt.Errorf("expected 4 fields, got %d", len(parts))
	}
	id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("id: %w", err)
	}
	ts, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(parts[1]), loc)
	if err != nil {
		return Reading{}, fmt.Errorf("date: %w", err)
	}
	raw, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Reading{}, fmt.Errorf("analog data: %w", err)
	}
	force, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return Reading{}, fmt.Errorf("force: %w", err)
	}
	return Reading{ID: id, Timestamp: ts, Raw: raw, Force: force}, nil
}
