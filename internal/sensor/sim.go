package sensor

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Simulated produces plausible biometric signals for runs without hardware.
// ECG and pulse are 12-bit counts of a 72 bpm rhythm; temperature wanders
// around 36.6°C.
type Simulated struct {
	mu    sync.Mutex
	now   func() time.Time
	start time.Time
	rng   *rand.Rand
	temp  float64
}

const (
	simBeat     = 60 * time.Second / 72
	simBaseline = 2048.0
	simBodyTemp = 36.6
)

func NewSimulated(seed uint64) *Simulated {
	return newSimulated(seed, time.Now)
}

func newSimulated(seed uint64, now func() time.Time) *Simulated {
	return &Simulated{
		now:   now,
		start: now(),
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		temp:  simBodyTemp,
	}
}

// ECG returns the ECG channel.
func (s *Simulated) ECG() AnalogInput { return simInput(s.ecg) }

// Pulse returns the pulse channel.
func (s *Simulated) Pulse() AnalogInput { return simInput(s.pulse) }

func (s *Simulated) Celsius() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temp += (s.rng.Float64() - 0.5) * 0.04
	// Pull back towards body temperature so the walk stays bounded.
	s.temp += (simBodyTemp - s.temp) * 0.1
	return s.temp, nil
}

// phase is the position in the current beat, 0 <= phase < 1.
func (s *Simulated) phase() float64 {
	elapsed := s.now().Sub(s.start)
	return float64(elapsed%simBeat) / float64(simBeat)
}

func (s *Simulated) noise(amplitude float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.rng.Float64()*2 - 1) * amplitude
}

func (s *Simulated) ecg() int {
	p := s.phase()
	v := simBaseline +
		120*bump(p, 0.18, 0.025) - // P wave
		150*bump(p, 0.29, 0.008) + // Q
		1400*bump(p, 0.31, 0.010) - // R
		300*bump(p, 0.33, 0.010) + // S
		280*bump(p, 0.55, 0.045) // T wave
	return clamp12(v + s.noise(15))
}

func (s *Simulated) pulse() int {
	p := s.phase()
	v := simBaseline + 900*bump(p, 0.35, 0.07) + 300*bump(p, 0.55, 0.06)
	return clamp12(v + s.noise(20))
}

func bump(x, center, width float64) float64 {
	d := (x - center) / width
	return math.Exp(-d * d / 2)
}

func clamp12(v float64) int {
	return int(math.Max(0, math.Min(4095, math.Round(v))))
}

type simInput func() int

func (f simInput) Sample() (int, error) { return f(), nil }
