package dsp

import (
	"fmt"

	"github.com/haivivi/lesynth/pkg/fixed"
)

// Allpass is a Schroeder allpass filter over a caller-sized delay line.
type Allpass struct {
	sampleRate int
	buf        []int16
	head       int
	tail       int
	gain       int16
	gain2      int16
}

// NewAllpass returns an allpass with gain 0.6 and a delay line of size
// samples. It panics on a non-positive size or sample rate.
func NewAllpass(sampleRate, size int) *Allpass {
	if sampleRate <= 0 || size <= 0 {
		panic("dsp: allpass needs a positive sample rate and buffer size")
	}
	a := &Allpass{sampleRate: sampleRate, buf: make([]int16, size)}
	a.SetGain(fixed.FromFloat(0.6))
	return a
}

// SetGain sets the feedback/feedforward gain g. The delayed path is scaled
// by 1-g².
func (a *Allpass) SetGain(g int16) {
	a.gain = g
	a.gain2 = fixed.One - fixed.Mul(g, g)
}

// SetDelay sets the delay in milliseconds.
func (a *Allpass) SetDelay(ms int) error {
	samples := a.sampleRate / 1000 * ms
	if ms < 0 || samples > len(a.buf) {
		return fmt.Errorf("dsp: allpass delay %d ms out of range", ms)
	}
	a.tail = (a.head - samples + len(a.buf)) % len(a.buf)
	return nil
}

// Process filters block.
func (a *Allpass) Process(block []int16) bool {
	n := len(a.buf)
	for i, x := range block {
		delayed := a.buf[a.tail]
		forward := fixed.Mul(x, -a.gain)
		out := fixed.AddSat(forward, fixed.Mul(delayed, a.gain2))
		a.buf[a.head] = fixed.AddSat(x, fixed.Mul(delayed, a.gain))
		a.tail = (a.tail + 1) % n
		a.head = (a.head + 1) % n
		block[i] = out
	}
	return true
}
