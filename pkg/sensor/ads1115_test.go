package sensor

import (
	"testing"
	"time"
)

func TestConfigForChannelBytes(t *testing.T) {
	s := &ADS1115Sampler{}

	// channel 0, sample rate 128 -> expect msb 0xC3 lsb 0x83 (see implementation)
	msb, lsb, err := s.configForChannel(0, 128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msb != 0xC3 || lsb != 0x83 {
		t.Fatalf("channel0@128 => got %02X %02X; want C3 83", msb, lsb)
	}

	// channel 1, sample rate 128 -> D3 83
	msb, lsb, err = s.configForChannel(1, 128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msb != 0xD3 || lsb != 0x83 {
		t.Fatalf("channel1@128 => got %02X %02X; want D3 83", msb, lsb)
	}

	// sample rate 8 for channel 0 -> msb C3 lsb 03 (dr=0)
	msb, lsb, err = s.configForChannel(0, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msb != 0xC3 || lsb != 0x03 {
		t.Fatalf("channel0@8 => got %02X %02X; want C3 03", msb, lsb)
	}

	// sample rate 860 for channel 0 -> lsb E3 (dr=7)
	msb, lsb, err = s.configForChannel(0, 860)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msb != 0xC3 || lsb != 0xE3 {
		t.Fatalf("channel0@860 => got %02X %02X; want C3 E3", msb, lsb)
	}

	// invalid channel
	_, _, err = s.configForChannel(9, 128)
	if err == nil {
		t.Fatalf("expected error for invalid channel")
	}
}

func TestToTwelveBit(t *testing.T) {
	tests := []struct {
		raw  int16
		want int
	}{
		{-40, 0},
		{0, 0},
		{7, 0},
		{8, 1},
		{16384, 2048},
		{32767, 4095},
	}
	for _, tt := range tests {
		if got := toTwelveBit(tt.raw); got != tt.want {
			t.Fatalf("toTwelveBit(%d) = %d; want %d", tt.raw, got, tt.want)
		}
	}
}

func TestConversionDelay(t *testing.T) {
	if got := ConversionDelay(128); got != 9*time.Millisecond {
		t.Fatalf("ConversionDelay(128) = %v", got)
	}
	if got := ConversionDelay(860); got != 3*time.Millisecond {
		t.Fatalf("ConversionDelay(860) = %v", got)
	}
	if got := ConversionDelay(0); got != 9*time.Millisecond {
		t.Fatalf("ConversionDelay(0) = %v", got)
	}
}
