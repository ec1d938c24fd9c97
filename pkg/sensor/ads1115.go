package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/fsr-logger/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
)

// ADS1115Sampler reads one single-ended channel of an ADS1115 over I2C.
type ADS1115Sampler struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	channel    int
	sampleRate int
	msb, lsb   byte
}

func NewADS1115Sampler(cfg config.SensorConfig) (Sampler, error) {
	s := &ADS1115Sampler{channel: cfg.Channel, sampleRate: cfg.SampleRate}
	msb, lsb, err := s.configForChannel(cfg.Channel, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	s.msb, s.lsb = msb, lsb

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	s.bus = bus
	s.dev = &i2c.Dev{Addr: uint16(cfg.I2CAddress), Bus: bus}
	return s, nil
}

func (s *ADS1115Sampler) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *ADS1115Sampler) Sample() (int, error) {
	// write config (starts a single-shot conversion)
	if err := s.dev.Tx([]byte{pointerConfig, s.msb, s.lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	time.Sleep(ConversionDelay(s.sampleRate))
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	return toTwelveBit(raw), nil
}

// ConversionDelay is the wait between starting a single-shot conversion and
// reading its result.
func ConversionDelay(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = 128
	}
	delayMs := int(1000.0/float64(sampleRate)) + 2
	return time.Duration(delayMs) * time.Millisecond
}

func (s *ADS1115Sampler) configForChannel(channel, sampleRate int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	// PGA: use ±4.096V -> bits 001
	pga := byte(0x1)
	// data rate bits
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var config uint16 = 0x8000 // OS = 1 (start single conversion)
	config |= uint16(mux) << 12
	config |= uint16(pga) << 9
	config |= 1 << 8 // single-shot mode
	config |= uint16(dr) << 5
	// comparator default: disabled (bits 1:0 = 11)
	config |= 0x3
	return byte(config >> 8), byte(config & 0xFF), nil
}
