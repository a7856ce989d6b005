package synth

import (
	"fmt"
	"math"
	"sync"

	"github.com/haivivi/lesynth/pkg/dsp"
	"github.com/haivivi/lesynth/pkg/fixed"
	"github.com/haivivi/lesynth/pkg/preset"
)

type voiceDSP struct {
	osc *dsp.Oscillator
	mod *dsp.Modulation
	env *dsp.Envelope
}

// Instrument renders a fixed pool of voices. Each voice is an oscillator
// shaped by an envelope and, optionally, an LFO.
//
// PlayNote and StopNote match voice.PlayFunc and voice.StopFunc.
type Instrument struct {
	sampleRate int

	mu       sync.Mutex
	voices   []voiceDSP
	modulate bool
	scratch  []int16
}

// NewInstrument returns an instrument with n voices of sawtooth, a 1 s
// looping envelope and a 2 Hz modulation that is off until enabled.
func NewInstrument(sampleRate, n int) *Instrument {
	if n <= 0 {
		panic("synth: instrument needs at least one voice")
	}
	inst := &Instrument{
		sampleRate: sampleRate,
		voices:     make([]voiceDSP, n),
	}
	for i := range inst.voices {
		v := &inst.voices[i]
		v.osc = dsp.NewOscillator(sampleRate, dsp.Sawtooth)
		v.osc.SetAmplitude(0)
		v.mod = dsp.NewModulation(sampleRate)
		v.mod.SetAmplitude(0.7)
		if err := v.mod.SetFrequency(2); err != nil {
			panic(err)
		}
		v.env = dsp.NewEnvelope(sampleRate)
		v.env.SetPeriod(1000)
	}
	return inst
}

// NoteFrequency returns the equal-tempered frequency of a MIDI note.
func NoteFrequency(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// PlayNote starts note on voice index. It panics if index is out of range.
func (inst *Instrument) PlayNote(index, note int) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	v := inst.voice(index)
	if err := v.osc.SetFrequency(NoteFrequency(note)); err != nil {
		// Notes above Nyquist are silenced rather than aliased.
		v.osc.SetAmplitude(0)
		return
	}
	v.osc.SetAmplitude(1 / float64(len(inst.voices)))
	v.env.Start()
}

// StopNote releases voice index. The voice fades out over the next blocks.
func (inst *Instrument) StopNote(index int) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.voice(index).env.End()
}

func (inst *Instrument) voice(index int) *voiceDSP {
	if index < 0 || index >= len(inst.voices) {
		panic(fmt.Sprintf("synth: voice index %d out of range", index))
	}
	return &inst.voices[index]
}

// Process mixes every sounding voice into block with saturating addition.
// It returns false when no voice contributed.
func (inst *Instrument) Process(block []int16) bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if cap(inst.scratch) < len(block) {
		inst.scratch = make([]int16, len(block))
	}
	scratch := inst.scratch[:len(block)]

	processed := false
	for i := range inst.voices {
		v := &inst.voices[i]
		if !v.env.Active() {
			continue
		}
		clear(scratch)
		if !v.osc.Process(scratch) {
			continue
		}
		if inst.modulate {
			v.mod.Process(scratch)
		}
		if v.env.Process(scratch) {
			fixed.AddBlock(block, scratch)
			processed = true
		}
	}
	return processed
}

// ActiveVoices returns the number of voices with a running envelope.
func (inst *Instrument) ActiveVoices() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	n := 0
	for i := range inst.voices {
		if inst.voices[i].env.Active() {
			n++
		}
	}
	return n
}

// Configure applies the per-voice part of p: waveform, envelope and
// modulation.
func (inst *Instrument) Configure(p preset.Preset) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	for i := range inst.voices {
		v := &inst.voices[i]
		v.osc.Waveform = p.Waveform

		e := p.Envelope
		v.env.SetMode(e.Mode)
		v.env.SetPeriod(e.PeriodMs)
		v.env.SetDutyCycle(e.Duty)
		v.env.SetFloor(e.Floor)
		v.env.SetRisingCurve(e.Rising)
		v.env.SetFallingCurve(e.Falling)
		v.env.SetFadeOutAttenuation(e.FadeOut)

		v.mod.SetAmplitude(p.Modulation.Depth)
		if err := v.mod.SetFrequency(p.Modulation.RateHz); err != nil {
			return fmt.Errorf("synth: %w", err)
		}
	}
	inst.modulate = p.Modulation.Enabled
	return nil
}
