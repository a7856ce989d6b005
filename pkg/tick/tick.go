// Package tick derives musical clock pulses from the audio block cadence.
//
// A Provider accumulates a 32-bit phase once per rendered block. Every time
// the phase wraps, all subscribers are notified, which yields
// PulsesPerQuarterNote pulses per beat at the configured tempo.
package tick

import (
	"fmt"
	"math"
)

// PulsesPerQuarterNote is the MIDI clock resolution.
const PulsesPerQuarterNote = 24

// DefaultBPM is the tempo a new Provider starts with.
const DefaultBPM = 128

// Subscriber receives tick notifications. A Subscriber may be registered
// with at most one Provider at a time.
type Subscriber struct {
	Notify func()

	next       *Subscriber
	subscribed bool
}

// Provider is a phase-accumulator tick source. It is not safe for
// concurrent use; it is driven from the block-processing goroutine.
type Provider struct {
	sampleRate int
	blockSize  int
	bpm        int
	phase      uint32
	increment  uint32
	head       *Subscriber
}

// New returns a provider for blocks of blockSize samples at sampleRate,
// running at DefaultBPM.
func New(sampleRate, blockSize int) *Provider {
	if sampleRate <= 0 || blockSize <= 0 {
		panic("tick: sample rate and block size must be positive")
	}
	p := &Provider{sampleRate: sampleRate, blockSize: blockSize}
	if err := p.SetBPM(DefaultBPM); err != nil {
		panic(err)
	}
	return p
}

// SetBPM sets the tempo. It fails when the tempo would require more than
// one pulse per block.
func (p *Provider) SetBPM(bpm int) error {
	if bpm <= 0 {
		return fmt.Errorf("tick: bpm %d must be positive", bpm)
	}
	inc := float64(bpm*PulsesPerQuarterNote*p.blockSize) / float64(60*p.sampleRate) * math.MaxUint32
	if inc >= math.MaxUint32 {
		return fmt.Errorf("tick: bpm %d exceeds one pulse per block", bpm)
	}
	p.bpm = bpm
	p.increment = uint32(inc)
	return nil
}

// BPM returns the current tempo.
func (p *Provider) BPM() int {
	return p.bpm
}

// Increment advances the phase by one block and notifies the subscribers
// when it wraps. It reports whether a pulse fired.
func (p *Provider) Increment() bool {
	last := p.phase
	p.phase += p.increment
	if p.phase >= last {
		return false
	}
	for s := p.head; s != nil; s = s.next {
		s.Notify()
	}
	return true
}

// Subscribe registers s. The most recent subscriber is notified first.
// It panics if s is already subscribed or has no Notify function.
func (p *Provider) Subscribe(s *Subscriber) {
	if s == nil || s.Notify == nil {
		panic("tick: subscriber without notify function")
	}
	if s.subscribed {
		panic("tick: subscriber is already subscribed")
	}
	s.next = p.head
	s.subscribed = true
	p.head = s
}

// Unsubscribe removes s. It panics if s is not subscribed to p.
func (p *Provider) Unsubscribe(s *Subscriber) {
	cur := &p.head
	for *cur != s {
		if *cur == nil {
			panic("tick: unsubscribe of unknown subscriber")
		}
		cur = &(*cur).next
	}
	*cur = s.next
	s.next = nil
	s.subscribed = false
}
