// Package dsp contains the fixed-point signal processors that make up a
// synthesizer voice and the global effect chain.
//
// Every processor works on blocks of fixed16 samples in place and reports
// through its boolean result whether the block carries signal. Processors
// are not safe for concurrent use; the owner serializes access.
//
// Key types:
//   - Oscillator: phase-accumulating sine, triangle and sawtooth generator
//   - Envelope: looping or one-shot gain curve with a fade-out tail
//   - Modulation: sine LFO amplitude modulation
//   - Echo, Allpass: delay-line effects for the master block
//   - Chain: an ordered list of block processors
package dsp

// Processor transforms a block of fixed16 samples in place. It returns false
// when it produced no signal.
type Processor interface {
	Process(block []int16) bool
}

// Chain applies processors in order.
type Chain []Processor

// Process runs every processor on block. It returns true if at least one
// processor reported signal.
func (c Chain) Process(block []int16) bool {
	active := false
	for _, p := range c {
		if p.Process(block) {
			active = true
		}
	}
	return active
}
