package dsp

import (
	"fmt"
	"math"

	"github.com/haivivi/lesynth/pkg/fixed"
)

// Modulation multiplies a block by a sine LFO.
type Modulation struct {
	sampleRate int
	magnitude  uint16
	increment  uint32
	phase      uint32
}

// NewModulation returns a full-depth modulation with a zero rate. It panics
// if sampleRate is not positive.
func NewModulation(sampleRate int) *Modulation {
	if sampleRate <= 0 {
		panic("dsp: modulation sample rate must be positive")
	}
	return &Modulation{sampleRate: sampleRate, magnitude: fixed.UOne}
}

// SetAmplitude sets the LFO depth from a real value in [0, 1]. Zero disables
// the effect.
func (m *Modulation) SetAmplitude(a float64) {
	m.magnitude = fixed.UFromFloat(a)
}

// SetFrequency sets the LFO rate in Hz.
func (m *Modulation) SetFrequency(hz float64) error {
	if hz < 0 || hz >= float64(m.sampleRate)/2 {
		return fmt.Errorf("dsp: modulation frequency %.2f Hz out of range", hz)
	}
	m.increment = uint32(hz / float64(m.sampleRate) / 2 * math.MaxUint32)
	return nil
}

// Process applies the LFO. A zero depth leaves block untouched.
func (m *Modulation) Process(block []int16) bool {
	if m.magnitude == 0 {
		return true
	}
	mag := int16(m.magnitude >> 1)
	for i, s := range block {
		idx := m.phase >> 24
		pos := uint16(m.phase >> 8)
		lfo := fixed.InterpolateScale(sineTable[idx], sineTable[idx+1], pos, mag)
		block[i] = fixed.Mul(s, lfo)
		m.phase += m.increment
	}
	return true
}
