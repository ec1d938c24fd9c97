package sensor

import (
	"math"
	"math/rand"
	"sync"
)

// SimulatedSampler produces idle noise below the default noise floor with
// periodic presses that ramp up and back down.
type SimulatedSampler struct {
	mu   sync.Mutex
	tick int
	rng  *rand.Rand
}

const (
	pressEvery  = 500
	pressLength = 120
)

func NewSimulatedSampler() Sampler {
	return &SimulatedSampler{rng: rand.New(rand.NewSource(rand.Int63()))}
}

func (f *SimulatedSampler) Sample() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tick++
	phase := f.tick % pressEvery
	noise := f.rng.Intn(20)
	if phase >= pressLength {
		return noise, nil
	}
	peak := 1500 + f.rng.Intn(2000)
	v := int(float64(peak)*math.Sin(math.Pi*float64(phase)/pressLength)) + noise
	return clampRaw(v), nil
}

func (f *SimulatedSampler) Close() error { return nil }
