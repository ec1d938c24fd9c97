package sensor

import "testing"

func TestParseSampleLine(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1234\n", 1234, true},
		{"v 2048\r\n", 2048, true},
		{"v 9000\n", MaxRaw, true},
		{"-3\n", 0, true},
		{"\n", 0, false},
		{"t 1 2 3\n", 0, false},
		{"v abc\n", 0, false},
	}
	for _, tt := range tests {
		got, err := parseSampleLine(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseSampleLine(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && got != tt.want {
			t.Fatalf("parseSampleLine(%q) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestSimulatedSamplerRange(t *testing.T) {
	s := NewSimulatedSampler()
	defer s.Close()
	above := 0
	for i := 0; i < pressEvery; i++ {
		v, err := s.Sample()
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if v < 0 || v > MaxRaw {
			t.Fatalf("sample %d out of range", v)
		}
		if v > 31 {
			above++
		}
	}
	if above == 0 {
		t.Fatalf("expected a simulated press above the noise floor")
	}
}
