package sensor

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ericogr/fsr-logger/pkg/config"
	"github.com/tarm/serial"
)

// SerialSampler polls a microcontroller that answers "v\n" with a line
// holding the raw reading, e.g. "v 1234".
type SerialSampler struct {
	mu     sync.Mutex
	port   *serial.Port
	reader *bufio.Reader
}

func NewSerialSampler(cfg config.SensorConfig) (Sampler, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.SerialPort,
		Baud:        cfg.Baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial: %w", err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush serial: %w", err)
	}
	return &SerialSampler{port: port, reader: bufio.NewReader(port)}, nil
}

func (s *SerialSampler) Sample() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write([]byte("v\n")); err != nil {
		return 0, fmt.Errorf("write serial: %w", err)
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("read serial: %w", err)
	}
	return parseSampleLine(line)
}

func (s *SerialSampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// parseSampleLine accepts "1234" or "v 1234"; the last field is the reading.
func parseSampleLine(line string) (int, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return 0, fmt.Errorf("empty sample line")
	}
	if len(parts) > 1 && parts[0] != "v" {
		return 0, fmt.Errorf("unexpected sample line %q", strings.TrimSpace(line))
	}
	v, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("sample value: %w", err)
	}
	return clampRaw(v), nil
}
