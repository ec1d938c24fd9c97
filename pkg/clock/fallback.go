package clock

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SaveFallback writes year, month, day, hour, minute and second, one per line.
func SaveFallback(path string, f Fields) error {
	data := fmt.Sprintf("%d\n%d\n%d\n%d\n%d\n%d", f.Year, f.Month, f.Day, f.Hour, f.Minute, f.Second)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write clock snapshot: %w", err)
	}
	return nil
}

func LoadFallback(path string) (Fields, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fields{}, fmt.Errorf("open clock snapshot: %w", err)
	}
	defer file.Close()

	vals := make([]int, 0, 6)
	sc := bufio.NewScanner(file)
	for sc.Scan() && len(vals) < 6 {
		v, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err != nil {
			return Fields{}, fmt.Errorf("clock snapshot line %d: %w", len(vals)+1, err)
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return Fields{}, fmt.Errorf("read clock snapshot: %w", err)
	}
	if len(vals) != 6 {
		return Fields{}, fmt.Errorf("clock snapshot has %d values, want 6", len(vals))
	}
	return Fields{Year: vals[0], Month: vals[1], Day: vals[2], Hour: vals[3], Minute: vals[4], Second: vals[5]}, nil
}

// Restore sets c from the snapshot at path.
func Restore(c Clock, path string) (Fields, error) {
	f, err := LoadFallback(path)
	if err != nil {
		return Fields{}, err
	}
	if _, err := Apply(c, f); err != nil {
		return Fields{}, fmt.Errorf("clock snapshot: %w", err)
	}
	return f, nil
}
