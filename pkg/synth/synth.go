// Package synth assembles the voice DSP, the key allocator and the
// arpeggiator into the synthesizer that renders one block per frame.
//
// Button presses add notes to the arpeggiator chord. The arpeggiator, driven
// by tick pulses, plays one chord note at a time through the voice
// allocator, which starts and releases instrument voices.
package synth

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/lesynth/pkg/arpeggio"
	"github.com/haivivi/lesynth/pkg/dsp"
	"github.com/haivivi/lesynth/pkg/fixed"
	"github.com/haivivi/lesynth/pkg/input"
	"github.com/haivivi/lesynth/pkg/logging"
	"github.com/haivivi/lesynth/pkg/preset"
	"github.com/haivivi/lesynth/pkg/voice"
)

// NoteBase is the MIDI note the key map is built on.
const NoteBase = 40

// DefaultKeyMap maps button indices to MIDI notes.
var DefaultKeyMap = []int{NoteBase + 12, NoteBase + 14, NoteBase + 18, NoteBase + 19, NoteBase + 21}

// DefaultVoices is the size of the voice pool.
const DefaultVoices = 5

// Config configures a Synthesizer.
type Config struct {
	SampleRate int
	// Voices is the voice pool size. Defaults to DefaultVoices.
	Voices int
	// KeyMap maps button indices to notes. Defaults to DefaultKeyMap.
	KeyMap []int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Synthesizer owns the instrument, the voice allocator, the arpeggiator and
// the master effect chain.
type Synthesizer struct {
	inst   *Instrument
	keys   *voice.Allocator
	arp    *arpeggio.Arpeggiator
	keyMap []int
	logger logging.Logger

	mu      sync.Mutex
	echo    *dsp.Echo
	allpass *dsp.Allpass
	effects dsp.Chain
	preset  preset.Preset
}

// New returns a synthesizer with the default preset applied.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("synth: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.Voices == 0 {
		cfg.Voices = DefaultVoices
	}
	if len(cfg.KeyMap) == 0 {
		cfg.KeyMap = DefaultKeyMap
	}

	inst := NewInstrument(cfg.SampleRate, cfg.Voices)
	keys := voice.New(cfg.Voices, inst.PlayNote, inst.StopNote, voice.WithLogger(cfg.Logger))
	s := &Synthesizer{
		inst:    inst,
		keys:    keys,
		arp:     arpeggio.New(keys, arpeggio.WithLogger(cfg.Logger)),
		keyMap:  cfg.KeyMap,
		logger:  logging.New("synth", cfg.Logger),
		echo:    dsp.NewEcho(),
		allpass: dsp.NewAllpass(cfg.SampleRate, cfg.SampleRate/1000*preset.MaxAllpassDelay),
	}
	if err := s.ApplyPreset(preset.Default()); err != nil {
		return nil, err
	}
	return s, nil
}

// KeyEvent adds the mapped note to the chord on press and removes it on
// release.
func (s *Synthesizer) KeyEvent(ev input.Event) error {
	if ev.Index < 0 || ev.Index >= len(s.keyMap) {
		s.logger.WarnPrintf("button index %d out of range", ev.Index)
		return fmt.Errorf("synth: button index %d out of range", ev.Index)
	}
	note := s.keyMap[ev.Index]
	switch ev.State {
	case input.Pressed:
		s.arp.NoteAdd(note)
	case input.Released:
		s.arp.NoteRemove(note)
	default:
		return fmt.Errorf("synth: unknown button state %d", int(ev.State))
	}
	return nil
}

// Tick forwards a tempo pulse to the arpeggiator.
func (s *Synthesizer) Tick() {
	s.arp.Tick()
}

// Process renders one block. The master effects run on every block so
// their tails ring out after the voices stop. It returns false when the
// block is silent.
func (s *Synthesizer) Process(block []int16) bool {
	active := s.inst.Process(block)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.effects) == 0 {
		return active
	}
	s.effects.Process(block)
	return active || !silent(block)
}

func silent(block []int16) bool {
	for _, v := range block {
		if v != 0 {
			return false
		}
	}
	return true
}

// ApplyPreset reconfigures voices, arpeggiator and effects. The tempo is
// owned by the tick provider and applied by the caller.
func (s *Synthesizer) ApplyPreset(p preset.Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.inst.Configure(p); err != nil {
		return err
	}
	s.arp.SetDivider(p.Divider)

	s.mu.Lock()
	defer s.mu.Unlock()
	var chain dsp.Chain
	if p.Echo.Enabled {
		if err := s.echo.SetDelay(s.inst.sampleRate / 1000 * p.Echo.DelayMs); err != nil {
			return fmt.Errorf("synth: %w", err)
		}
		s.echo.SetFeedback(fixed.FromFloat(p.Echo.Feedback))
		chain = append(chain, s.echo)
	}
	if p.Allpass.Enabled {
		if err := s.allpass.SetDelay(p.Allpass.DelayMs); err != nil {
			return fmt.Errorf("synth: %w", err)
		}
		s.allpass.SetGain(fixed.FromFloat(p.Allpass.Gain))
		chain = append(chain, s.allpass)
	}
	s.effects = chain
	s.preset = p
	s.logger.InfoPrintf("preset %q applied", p.Name)
	return nil
}

// Preset returns the preset in effect.
func (s *Synthesizer) Preset() preset.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

// Chord returns the held notes, oldest first.
func (s *Synthesizer) Chord() []int {
	return s.arp.Notes()
}

// ActiveNotes returns the notes assigned to voices, most recent first.
func (s *Synthesizer) ActiveNotes() []int {
	return s.keys.Active()
}

// ActiveVoices returns the number of voices still producing sound,
// including those fading out.
func (s *Synthesizer) ActiveVoices() int {
	return s.inst.ActiveVoices()
}
