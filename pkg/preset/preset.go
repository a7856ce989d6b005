// Package preset describes synthesizer sound settings and stores them.
//
// A Preset is a plain value with JSON, YAML and msgpack tags. Presets are
// persisted in a Badger database by [Store] and can be exported to YAML by
// the CLI.
package preset

import (
	"errors"
	"fmt"

	"github.com/haivivi/lesynth/pkg/dsp"
)

// Limits enforced by Validate.
const (
	MaxBPM          = 240
	MaxPeriodMs     = 10000
	MaxEchoDelayMs  = 900
	MaxAllpassDelay = 100
	MaxDivider      = 96
)

// DefaultName is the name of the power-on preset.
const DefaultName = "default"

// Envelope holds the per-voice gain curve settings.
type Envelope struct {
	Mode     dsp.EnvelopeMode `json:"mode" yaml:"mode" msgpack:"mode"`
	PeriodMs float64          `json:"period_ms" yaml:"period_ms" msgpack:"period_ms"`
	Duty     float64          `json:"duty" yaml:"duty" msgpack:"duty"`
	Floor    float64          `json:"floor" yaml:"floor" msgpack:"floor"`
	Rising   float64          `json:"rising" yaml:"rising" msgpack:"rising"`
	Falling  float64          `json:"falling" yaml:"falling" msgpack:"falling"`
	FadeOut  float64          `json:"fade_out" yaml:"fade_out" msgpack:"fade_out"`
}

// Modulation holds the per-voice LFO settings.
type Modulation struct {
	Enabled bool    `json:"enabled" yaml:"enabled" msgpack:"enabled"`
	Depth   float64 `json:"depth" yaml:"depth" msgpack:"depth"`
	RateHz  float64 `json:"rate_hz" yaml:"rate_hz" msgpack:"rate_hz"`
}

// Echo holds the master echo settings.
type Echo struct {
	Enabled  bool    `json:"enabled" yaml:"enabled" msgpack:"enabled"`
	DelayMs  int     `json:"delay_ms" yaml:"delay_ms" msgpack:"delay_ms"`
	Feedback float64 `json:"feedback" yaml:"feedback" msgpack:"feedback"`
}

// Allpass holds the master allpass settings.
type Allpass struct {
	Enabled bool    `json:"enabled" yaml:"enabled" msgpack:"enabled"`
	DelayMs int     `json:"delay_ms" yaml:"delay_ms" msgpack:"delay_ms"`
	Gain    float64 `json:"gain" yaml:"gain" msgpack:"gain"`
}

// Preset is a complete sound setting.
type Preset struct {
	Name       string       `json:"name" yaml:"name" msgpack:"name"`
	Waveform   dsp.Waveform `json:"waveform" yaml:"waveform" msgpack:"waveform"`
	BPM        int          `json:"bpm" yaml:"bpm" msgpack:"bpm"`
	Divider    int          `json:"divider" yaml:"divider" msgpack:"divider"`
	Envelope   Envelope     `json:"envelope" yaml:"envelope" msgpack:"envelope"`
	Modulation Modulation   `json:"modulation" yaml:"modulation" msgpack:"modulation"`
	Echo       Echo         `json:"echo" yaml:"echo" msgpack:"echo"`
	Allpass    Allpass      `json:"allpass" yaml:"allpass" msgpack:"allpass"`
}

// ErrInvalid is wrapped by every Validate error.
var ErrInvalid = errors.New("preset: invalid")

// Validate checks every field against the ranges the DSP accepts.
func (p Preset) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}
	check(p.Name != "", "empty name")
	check(p.Waveform >= dsp.Sine && p.Waveform <= dsp.SineCrush, "waveform %d", int(p.Waveform))
	check(p.BPM > 0 && p.BPM <= MaxBPM, "bpm %d", p.BPM)
	check(p.Divider > 0 && p.Divider <= MaxDivider, "divider %d", p.Divider)

	e := p.Envelope
	check(e.PeriodMs > 0 && e.PeriodMs <= MaxPeriodMs, "envelope period %.1f ms", e.PeriodMs)
	check(e.Duty >= 0 && e.Duty <= 1, "envelope duty %.3f", e.Duty)
	check(e.Floor >= 0 && e.Floor <= 1, "envelope floor %.3f", e.Floor)
	check(e.Rising >= 0 && e.Rising <= 1, "envelope rising curve %.3f", e.Rising)
	check(e.Falling >= 0 && e.Falling <= 1, "envelope falling curve %.3f", e.Falling)
	check(e.FadeOut >= 0 && e.FadeOut <= 1, "envelope fade out %.3f", e.FadeOut)

	check(p.Modulation.Depth >= 0 && p.Modulation.Depth <= 1, "modulation depth %.3f", p.Modulation.Depth)
	check(p.Modulation.RateHz >= 0 && p.Modulation.RateHz <= 100, "modulation rate %.2f Hz", p.Modulation.RateHz)

	check(p.Echo.DelayMs >= 0 && p.Echo.DelayMs <= MaxEchoDelayMs, "echo delay %d ms", p.Echo.DelayMs)
	check(p.Echo.Feedback >= 0 && p.Echo.Feedback < 1, "echo feedback %.3f", p.Echo.Feedback)

	check(p.Allpass.DelayMs >= 0 && p.Allpass.DelayMs <= MaxAllpassDelay, "allpass delay %d ms", p.Allpass.DelayMs)
	check(p.Allpass.Gain > -1 && p.Allpass.Gain < 1, "allpass gain %.3f", p.Allpass.Gain)
	return errors.Join(errs...)
}

// Default returns the power-on sound: a looping sawtooth arpeggio at one
// note per quarter.
func Default() Preset {
	return Preset{
		Name:     DefaultName,
		Waveform: dsp.Sawtooth,
		BPM:      128,
		Divider:  24,
		Envelope: Envelope{
			Mode:     dsp.ModeLoop,
			PeriodMs: 1000,
			Duty:     0.05,
			Rising:   0.1,
			Falling:  0.1,
			FadeOut:  0.05,
		},
		Modulation: Modulation{Depth: 0.7, RateHz: 2},
		Echo:       Echo{DelayMs: 250, Feedback: 0.5},
		Allpass:    Allpass{DelayMs: 20, Gain: 0.6},
	}
}

// Builtins returns the presets shipped with the program, keyed by name.
func Builtins() map[string]Preset {
	pluck := Default()
	pluck.Name = "pluck"
	pluck.Waveform = dsp.Triangle
	pluck.Divider = 12
	pluck.Envelope.Mode = dsp.ModeOneShot
	pluck.Envelope.PeriodMs = 200
	pluck.Envelope.Falling = 0.02
	pluck.Echo.Enabled = true

	pad := Default()
	pad.Name = "pad"
	pad.Waveform = dsp.Sine
	pad.BPM = 90
	pad.Divider = 48
	pad.Envelope.Mode = dsp.ModeOneShotHold
	pad.Envelope.Duty = 0.4
	pad.Envelope.Floor = 0.6
	pad.Modulation.Enabled = true
	pad.Allpass.Enabled = true

	d := Default()
	return map[string]Preset{d.Name: d, pluck.Name: pluck, pad.Name: pad}
}
