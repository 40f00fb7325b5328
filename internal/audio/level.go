package audio

import "math"

// MinLevel is the floor reported for digital silence, in dBFS.
const MinLevel = -350.0

// PeakDB returns the peak amplitude of samples in dBFS, clamped to [MinLevel, 0].
func PeakDB(samples []int16) float64 {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return MinLevel
	}
	db := 20 * math.Log10(float64(peak)/32768.0)
	if db > 0 {
		return 0
	}
	if db < MinLevel {
		return MinLevel
	}
	return db
}

// Meter slices a continuous PCM stream into fixed windows and reports
// the peak of each completed window.
type Meter struct {
	window  int
	pending []int16
}

// NewMeter returns a meter reporting once every window samples.
func NewMeter(window int) *Meter {
	if window <= 0 {
		window = 1
	}
	return &Meter{window: window, pending: make([]int16, 0, window)}
}

// Push feeds samples and returns the levels of every window they completed.
func (m *Meter) Push(samples []int16) []float64 {
	var levels []float64
	for len(samples) > 0 {
		n := m.window - len(m.pending)
		if n > len(samples) {
			n = len(samples)
		}
		m.pending = append(m.pending, samples[:n]...)
		samples = samples[n:]
		if len(m.pending) == m.window {
			levels = append(levels, PeakDB(m.pending))
			m.pending = m.pending[:0]
		}
	}
	return levels
}

// Flush reports the peak of a partial trailing window, if any.
func (m *Meter) Flush() (float64, bool) {
	if len(m.pending) == 0 {
		return 0, false
	}
	level := PeakDB(m.pending)
	m.pending = m.pending[:0]
	return level, true
}
