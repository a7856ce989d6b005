package dsp

import (
	"encoding/json"
	"fmt"
	"math"
)

// FadeOutThreshold is the magnitude at or below which a fading envelope is
// considered silent.
const FadeOutThreshold = 1

// EnvelopeState is the lifecycle state of an Envelope.
type EnvelopeState int

const (
	EnvelopeSilent EnvelopeState = iota
	EnvelopeLoop
	EnvelopeHold
	EnvelopeFadeOut
)

// String returns the string representation of the state.
func (s EnvelopeState) String() string {
	switch s {
	case EnvelopeSilent:
		return "silent"
	case EnvelopeLoop:
		return "loop"
	case EnvelopeHold:
		return "hold"
	case EnvelopeFadeOut:
		return "fade_out"
	default:
		return "unknown"
	}
}

// EnvelopeMode selects what happens when the envelope period elapses.
type EnvelopeMode int

const (
	// ModeLoop restarts the curve every period.
	ModeLoop EnvelopeMode = iota
	// ModeOneShot runs the curve once and fades out.
	ModeOneShot
	// ModeOneShotHold runs the curve once and holds the last magnitude
	// until End is called.
	ModeOneShotHold
)

// String returns the string representation of the mode.
func (m EnvelopeMode) String() string {
	switch m {
	case ModeLoop:
		return "loop"
	case ModeOneShot:
		return "one_shot"
	case ModeOneShotHold:
		return "one_shot_hold"
	default:
		return "unknown"
	}
}

// ParseEnvelopeMode parses the string form produced by EnvelopeMode.String.
func ParseEnvelopeMode(s string) (EnvelopeMode, error) {
	switch s {
	case "loop":
		return ModeLoop, nil
	case "one_shot":
		return ModeOneShot, nil
	case "one_shot_hold":
		return ModeOneShotHold, nil
	}
	return 0, fmt.Errorf("dsp: unknown envelope mode %q", s)
}

// MarshalJSON implements json.Marshaler.
func (m EnvelopeMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *EnvelopeMode) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParseEnvelopeMode(name)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m EnvelopeMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *EnvelopeMode) UnmarshalText(b []byte) error {
	v, err := ParseEnvelopeMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Envelope is a periodic gain curve. Within one period the magnitude rises
// from the floor level to full scale over the duty-cycle fraction, then
// falls back to the floor. Rising and falling edges are exponential with
// independent steepness.
//
// Magnitude is computed once per block at the block boundary and ramped
// linearly across the block.
type Envelope struct {
	sampleRate int

	phase     uint32
	increment int32

	floor       float64
	duty        float64
	rising      float64
	falling     float64
	attenuation float64

	mode      EnvelopeMode
	state     EnvelopeState
	entered   bool
	magnitude int32
}

// NewEnvelope returns a silent envelope with default curve parameters. It
// panics if sampleRate is not positive.
func NewEnvelope(sampleRate int) *Envelope {
	if sampleRate <= 0 {
		panic("dsp: envelope sample rate must be positive")
	}
	return &Envelope{
		sampleRate:  sampleRate,
		rising:      0.1,
		falling:     0.1,
		attenuation: 0.05,
		floor:       0,
		duty:        0.05,
		mode:        ModeLoop,
		state:       EnvelopeSilent,
	}
}

// Start enters the Loop state.
func (e *Envelope) Start() {
	e.setState(EnvelopeLoop)
}

// End enters the FadeOut state.
func (e *Envelope) End() {
	e.setState(EnvelopeFadeOut)
}

// SetPeriod sets the length of one envelope cycle in milliseconds.
func (e *Envelope) SetPeriod(ms float64) {
	if ms <= 0 || ms > float64(e.sampleRate) {
		panic(fmt.Sprintf("dsp: envelope period %.2f ms out of range", ms))
	}
	e.increment = int32(1000 * (2 * float64(math.MaxInt32) / float64(e.sampleRate)) / ms)
}

// SetDutyCycle sets the fraction of the period spent rising.
func (e *Envelope) SetDutyCycle(d float64) {
	if d < 0 || d > 1 {
		panic("dsp: envelope duty cycle out of range")
	}
	e.duty = d
}

// SetFloor sets the magnitude at the start and end of the curve.
func (e *Envelope) SetFloor(l float64) {
	if l < 0 || l > 1 {
		panic("dsp: envelope floor out of range")
	}
	e.floor = l
}

// SetRisingCurve sets the steepness of the rising edge. Values close to 0
// give an almost instant attack.
func (e *Envelope) SetRisingCurve(c float64) {
	e.rising = clampCurve(c, 0.00001)
}

// SetFallingCurve sets the steepness of the falling edge.
func (e *Envelope) SetFallingCurve(c float64) {
	e.falling = clampCurve(c, 0.0001)
}

// clampCurve keeps the curve off 1, where the formula divides by zero, and
// above a small minimum.
func clampCurve(c, minimum float64) float64 {
	if c == 1 {
		return 0.99
	}
	if c <= minimum {
		return minimum
	}
	return c
}

// SetFadeOutAttenuation sets the fraction of magnitude removed per block
// while fading out, clamped to [0.001, 1].
func (e *Envelope) SetFadeOutAttenuation(a float64) {
	switch {
	case a > 1:
		a = 1
	case a < 0.001:
		a = 0.001
	}
	e.attenuation = a
}

// SetMode sets the envelope mode.
func (e *Envelope) SetMode(m EnvelopeMode) {
	e.mode = m
}

// Mode returns the envelope mode.
func (e *Envelope) Mode() EnvelopeMode {
	return e.mode
}

// State returns the lifecycle state.
func (e *Envelope) State() EnvelopeState {
	return e.state
}

// Active reports whether the envelope is producing signal.
func (e *Envelope) Active() bool {
	return e.state != EnvelopeSilent
}

// Magnitude returns the magnitude reached at the end of the last block.
func (e *Envelope) Magnitude() int32 {
	return e.magnitude
}

// Process applies the envelope to block. It returns false when silent.
func (e *Envelope) Process(block []int16) bool {
	switch e.state {
	case EnvelopeLoop:
		if e.entered {
			e.phase = 0
			e.entered = false
		}
		start := e.magnitude
		upper := e.phase + uint32(e.increment)*uint32(len(block))
		var end int32
		if e.phase < upper || e.mode == ModeLoop {
			end = int32(e.at(float64(upper) / math.MaxUint32))
		} else {
			end = int32(math.MaxInt16 * e.floor)
			switch e.mode {
			case ModeOneShotHold:
				e.setState(EnvelopeHold)
			case ModeOneShot:
				e.setState(EnvelopeFadeOut)
			}
		}
		ramp(block, start, end)
		e.phase = upper
		e.magnitude = end

	case EnvelopeFadeOut:
		start := e.magnitude
		end := int32(float64(start) * (1 - e.attenuation))
		ramp(block, start, end)
		if end > FadeOutThreshold {
			e.magnitude = end
		} else {
			e.magnitude = 0
			e.setState(EnvelopeSilent)
		}

	case EnvelopeHold:
		mag := e.magnitude
		for i, s := range block {
			block[i] = int16((int32(s) * mag) >> 15)
		}

	default:
		return false
	}
	return true
}

// ramp scales block by a magnitude moving linearly from start to end.
func ramp(block []int16, start, end int32) {
	n := uint32(len(block))
	for i, s := range block {
		scale := uint32(i) * math.MaxUint16 / n
		mag := (int64(start)*int64(0x10000-scale) + int64(end)*int64(scale)) >> 16
		block[i] = int16((int64(s) * mag) >> 15)
	}
}

// at returns the curve magnitude at pos in [0, 1] of the period.
func (e *Envelope) at(pos float64) int16 {
	l, d := e.floor, e.duty
	if pos <= d {
		if pos == 0 {
			return level(l)
		}
		c := e.rising
		return level(l + (1-math.Pow(c, pos/d))*(1-l)/(1-c))
	}
	if pos == 1 {
		return level(l)
	}
	c := e.falling
	return level(l + (math.Pow(c, (pos-d)/(1-d))-c)*(1-l)/(1-c))
}

// level converts a real gain to a fixed16 magnitude, clamped to [0, 1].
func level(v float64) int16 {
	return int16(math.MaxInt16 * max(0, min(1, v)))
}

func (e *Envelope) setState(s EnvelopeState) {
	e.state = s
	e.entered = true
}
