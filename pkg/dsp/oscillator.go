package dsp

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/haivivi/lesynth/pkg/fixed"
)

// Waveform selects the shape an Oscillator renders.
type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Sawtooth
	// SineCrush reads the sine table with swapped interpolation points,
	// which yields a stepped, bit-crushed sine.
	SineCrush
)

// String returns the string representation of the waveform.
func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Triangle:
		return "triangle"
	case Sawtooth:
		return "sawtooth"
	case SineCrush:
		return "sinecrush"
	default:
		return "unknown"
	}
}

// ParseWaveform parses the string form produced by Waveform.String.
func ParseWaveform(s string) (Waveform, error) {
	switch s {
	case "sine":
		return Sine, nil
	case "triangle":
		return Triangle, nil
	case "sawtooth", "saw":
		return Sawtooth, nil
	case "sinecrush":
		return SineCrush, nil
	}
	return 0, fmt.Errorf("dsp: unknown waveform %q", s)
}

// MarshalJSON implements json.Marshaler.
func (w Waveform) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *Waveform) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParseWaveform(name)
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// MarshalText implements encoding.TextMarshaler so waveforms read well in
// YAML presets.
func (w Waveform) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Waveform) UnmarshalText(b []byte) error {
	v, err := ParseWaveform(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// Oscillator is a 32-bit phase accumulator driving a waveform.
type Oscillator struct {
	Waveform Waveform

	sampleRate int
	magnitude  int16
	increment  uint32
	phase      uint32
}

// NewOscillator returns a full-scale oscillator for the given sample rate.
// It panics if sampleRate is not positive.
func NewOscillator(sampleRate int, w Waveform) *Oscillator {
	if sampleRate <= 0 {
		panic("dsp: oscillator sample rate must be positive")
	}
	return &Oscillator{
		Waveform:   w,
		sampleRate: sampleRate,
		magnitude:  fixed.One,
	}
}

// SetAmplitude sets the output magnitude from a real value in [0, 1].
func (o *Oscillator) SetAmplitude(a float64) {
	o.magnitude = fixed.FromFloat(a)
}

// SetMagnitude sets the output magnitude directly.
func (o *Oscillator) SetMagnitude(m int16) {
	o.magnitude = m
}

// Magnitude returns the output magnitude.
func (o *Oscillator) Magnitude() int16 {
	return o.magnitude
}

// SetFrequency sets the oscillation frequency in Hz. Frequencies at or above
// the Nyquist limit are rejected.
func (o *Oscillator) SetFrequency(hz float64) error {
	if hz < 0 || hz >= float64(o.sampleRate)/2 {
		return fmt.Errorf("dsp: oscillator frequency %.2f Hz out of range", hz)
	}
	o.increment = uint32(hz / float64(o.sampleRate) / 2 * math.MaxUint32)
	return nil
}

// Reset rewinds the phase accumulator.
func (o *Oscillator) Reset() {
	o.phase = 0
}

// Process overwrites block with the waveform. It returns false and leaves
// block untouched when the magnitude is zero.
func (o *Oscillator) Process(block []int16) bool {
	if o.magnitude == 0 {
		return false
	}
	switch o.Waveform {
	case Triangle:
		o.triangle(block)
	case Sawtooth:
		o.sawtooth(block)
	case SineCrush:
		o.sine(block, true)
	default:
		o.sine(block, false)
	}
	return true
}

func (o *Oscillator) sine(block []int16, crush bool) {
	for i := range block {
		idx := o.phase >> 24
		pos := uint16(o.phase >> 8)
		a, b := sineTable[idx], sineTable[idx+1]
		if crush {
			a, b = b, a
		}
		block[i] = fixed.InterpolateScale(a, b, pos, o.magnitude)
		o.phase += o.increment
	}
}

func (o *Oscillator) triangle(block []int16) {
	mag := uint16(o.magnitude)
	for i := range block {
		top := o.phase >> 30
		ramp := int32(o.phase) >> 15
		if top == 1 || top == 2 {
			block[i] = fixed.UMul(int16(0xFFFF-ramp), mag)
		} else {
			block[i] = fixed.UMul(int16(ramp), mag)
		}
		o.phase += o.increment
	}
}

func (o *Oscillator) sawtooth(block []int16) {
	for i := range block {
		block[i] = fixed.MulWT(int32(o.magnitude), o.phase)
		o.phase += o.increment
	}
}
