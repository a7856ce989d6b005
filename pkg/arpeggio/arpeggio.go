// Package arpeggio sequences a held chord into one note at a time.
package arpeggio

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/haivivi/lesynth/pkg/logging"
	"github.com/haivivi/lesynth/pkg/tick"
)

const (
	// MaxNotes is the chord capacity. Adding to a full chord evicts the
	// oldest note.
	MaxNotes = 5

	// MaxOctaves is the number of octave transpositions cycled through.
	MaxOctaves = 3
)

// Keys plays and stops notes. A *voice.Allocator satisfies it.
type Keys interface {
	Play(note int) int
	Stop(note int) (int, bool)
}

// Option configures an Arpeggiator.
type Option interface {
	apply(*Arpeggiator)
}

type loggerOption struct{ l *slog.Logger }

func (o loggerOption) apply(a *Arpeggiator) { a.logger = logging.New("arpeggio", o.l) }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return loggerOption{l: l}
}

type dividerOption int

func (o dividerOption) apply(a *Arpeggiator) { a.SetDivider(int(o)) }

// WithDivider sets the number of ticks each note sounds for.
func WithDivider(d int) Option {
	return dividerOption(d)
}

// Arpeggiator plays the held chord round-robin, one note per divider ticks,
// moving up an octave each time the chord wraps.
type Arpeggiator struct {
	keys   Keys
	logger logging.Logger

	mu        sync.Mutex
	notes     []int
	next      int
	octave    int
	tickCount int
	divider   int
	enabled   bool
	current   int
	playing   bool
}

// New returns an arpeggiator driving keys. The default divider is one
// quarter note.
func New(keys Keys, opts ...Option) *Arpeggiator {
	if keys == nil {
		panic("arpeggio: nil keys")
	}
	a := &Arpeggiator{
		keys:    keys,
		logger:  logging.New("arpeggio", nil),
		notes:   make([]int, 0, MaxNotes),
		divider: tick.PulsesPerQuarterNote,
	}
	for _, opt := range opts {
		opt.apply(a)
	}
	return a
}

// NoteAdd adds note to the chord. A note already held is ignored. The
// first note after the chord emptied restarts the sequence.
func (a *Arpeggiator) NoteAdd(note int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if slices.Contains(a.notes, note) {
		return
	}
	if len(a.notes) == MaxNotes {
		a.removeAt(0)
	}
	a.notes = append(a.notes, note)

	if !a.enabled {
		a.enabled = true
		a.tickCount = 0
		a.octave = 0
		a.next = 0
	}
}

// NoteRemove removes note from the chord. Unknown notes are ignored.
func (a *Arpeggiator) NoteRemove(note int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i := slices.Index(a.notes, note); i >= 0 {
		a.removeAt(i)
	}
}

func (a *Arpeggiator) removeAt(i int) {
	a.notes = slices.Delete(a.notes, i, i+1)
	if i < a.next {
		a.next--
	}
	if a.next >= len(a.notes) {
		a.next = 0
	}
}

// Tick advances the sequence by one pulse. Every divider pulses the
// sounding note is stopped and the next one started. The Keys calls are
// made after the chord lock is released.
func (a *Arpeggiator) Tick() {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return
	}
	if a.tickCount != 0 {
		a.tickCount = (a.tickCount + 1) % a.divider
		a.mu.Unlock()
		return
	}

	stop, hadNote := a.current, a.playing
	var play int
	if len(a.notes) == 0 {
		a.enabled = false
		a.playing = false
	} else {
		if a.next >= len(a.notes) {
			a.next = 0
			a.octave = (a.octave + 1) % MaxOctaves
		}
		play = a.notes[a.next] + 12*a.octave
		a.next++
		a.current = play
		a.playing = true
	}
	playing := a.playing
	a.tickCount = (a.tickCount + 1) % a.divider
	a.mu.Unlock()

	if hadNote {
		a.keys.Stop(stop)
	}
	if playing {
		a.logger.DebugPrintf("play note %d", play)
		a.keys.Play(play)
	}
}

// SetDivider sets the number of ticks per note and restarts the tick count.
// It panics if d is not positive.
func (a *Arpeggiator) SetDivider(d int) {
	if d <= 0 {
		panic("arpeggio: divider must be positive")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.divider = d
	a.tickCount = 0
}

// Divider returns the number of ticks per note.
func (a *Arpeggiator) Divider() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.divider
}

// Notes returns the held chord, oldest first.
func (a *Arpeggiator) Notes() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.notes)
}

// Enabled reports whether the sequence is running.
func (a *Arpeggiator) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}
