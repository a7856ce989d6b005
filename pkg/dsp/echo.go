package dsp

import (
	"fmt"
	"math"

	"github.com/haivivi/lesynth/pkg/fixed"
)

// EchoMaxDelay is the length of the echo delay line in samples.
const EchoMaxDelay = 44100

// Echo is a feedback delay: every output sample is written back to the line
// and returns, attenuated, after the configured delay.
type Echo struct {
	line     []int16
	head     int
	tail     int
	feedback int16
}

// NewEcho returns an echo with a one-line delay and half feedback.
func NewEcho() *Echo {
	return &Echo{
		line:     make([]int16, EchoMaxDelay),
		head:     0,
		tail:     1,
		feedback: math.MaxInt16 / 2,
	}
}

// SetDelay sets the echo delay in samples.
func (e *Echo) SetDelay(samples int) error {
	if samples < 0 || samples > len(e.line) {
		return fmt.Errorf("dsp: echo delay %d out of range", samples)
	}
	e.tail = (e.head - samples + len(e.line)) % len(e.line)
	return nil
}

// SetFeedback sets the feedback gain. Zero bypasses the effect.
func (e *Echo) SetFeedback(g int16) {
	e.feedback = g
}

// Process mixes the delayed signal into block.
func (e *Echo) Process(block []int16) bool {
	if e.feedback == 0 {
		return true
	}
	n := len(e.line)
	for i, in := range block {
		fb := int16((int32(e.line[e.tail]) * int32(e.feedback)) >> 15)
		out := fixed.AddSat(in, fb)
		e.line[e.head] = out
		e.tail = (e.tail + 1) % n
		e.head = (e.head + 1) % n
		block[i] = out
	}
	return true
}
