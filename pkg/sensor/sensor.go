package sensor

import (
	"fmt"

	"github.com/ericogr/fsr-logger/pkg/config"
)

// MaxRaw is the full-scale count of a 12-bit sample.
const MaxRaw = 4095

// Sampler is the analog sampling primitive. Sample returns one raw reading
// in [0, MaxRaw].
type Sampler interface {
	Sample() (int, error)
	Close() error
}

func New(cfg config.SensorConfig) (Sampler, error) {
	switch cfg.Type {
	case config.SensorADS1115:
		return NewADS1115Sampler(cfg)
	case config.SensorSerial:
		return NewSerialSampler(cfg)
	case config.SensorSimulated:
		return NewSimulatedSampler(), nil
	default:
		return nil, fmt.Errorf("unknown sensor type %q", cfg.Type)
	}
}
