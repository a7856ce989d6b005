// Package voice assigns notes to a fixed pool of synthesizer voices.
//
// The pool is kept as a single list over a fixed arena: active voices first,
// most recently played at the head, followed by the inactive voices. Playing
// a note takes the list tail, which is an inactive voice when one exists and
// the longest-active voice otherwise, and moves it to the head.
package voice

import (
	"log/slog"
	"sync"

	"github.com/haivivi/lesynth/pkg/logging"
)

// PlayFunc is called after a voice has been assigned a note.
type PlayFunc func(index, note int)

// StopFunc is called after a voice has been released.
type StopFunc func(index int)

// Option configures an Allocator.
type Option interface {
	apply(*Allocator)
}

type loggerOption struct{ l *slog.Logger }

func (o loggerOption) apply(a *Allocator) { a.logger = logging.New("voice", o.l) }

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option {
	return loggerOption{l: l}
}

const none = -1

type slot struct {
	note   int
	active bool
	next   int
}

// Allocator maps notes to voices with least-recently-played stealing.
//
// Play and Stop are safe for concurrent use. The callbacks run after the
// allocator lock is released, so they may call back into the allocator.
type Allocator struct {
	mu     sync.Mutex
	slots  []slot
	head   int
	play   PlayFunc
	stop   StopFunc
	logger logging.Logger
}

// New returns an allocator with n voices. It panics if n is not positive or
// a callback is nil.
func New(n int, play PlayFunc, stop StopFunc, opts ...Option) *Allocator {
	if n <= 0 {
		panic("voice: allocator needs at least one voice")
	}
	if play == nil || stop == nil {
		panic("voice: nil callback")
	}
	a := &Allocator{
		slots:  make([]slot, n),
		play:   play,
		stop:   stop,
		logger: logging.New("voice", nil),
	}
	for i := range a.slots {
		a.slots[i].next = i + 1
	}
	a.slots[n-1].next = none
	a.head = 0
	for _, opt := range opts {
		opt.apply(a)
	}
	return a
}

// Len returns the number of voices.
func (a *Allocator) Len() int {
	return len(a.slots)
}

// Play assigns note to a voice and returns the voice index.
func (a *Allocator) Play(note int) int {
	a.mu.Lock()
	prev, idx := none, a.head
	for a.slots[idx].next != none {
		prev, idx = idx, a.slots[idx].next
	}
	if prev != none {
		a.slots[prev].next = none
		a.slots[idx].next = a.head
		a.head = idx
	}
	a.slots[idx].note = note
	a.slots[idx].active = true
	a.mu.Unlock()

	a.play(idx, note)
	return idx
}

// Stop releases the voice playing note. It returns the voice index and
// whether the note was found; a missing note is logged and ignored.
func (a *Allocator) Stop(note int) (int, bool) {
	a.mu.Lock()
	prev, idx := none, a.head
	for idx != none && !(a.slots[idx].active && a.slots[idx].note == note) {
		prev, idx = idx, a.slots[idx].next
	}
	if idx == none {
		a.mu.Unlock()
		a.logger.WarnPrintf("stop: note %d is not playing", note)
		return none, false
	}

	a.unlink(prev, idx)
	a.slots[idx].active = false

	// Re-insert directly after the last active voice.
	after := none
	for cur := a.head; cur != none && a.slots[cur].active; cur = a.slots[cur].next {
		after = cur
	}
	if after == none {
		a.slots[idx].next = a.head
		a.head = idx
	} else {
		a.slots[idx].next = a.slots[after].next
		a.slots[after].next = idx
	}
	a.mu.Unlock()

	a.stop(idx)
	return idx, true
}

func (a *Allocator) unlink(prev, idx int) {
	if prev == none {
		a.head = a.slots[idx].next
	} else {
		a.slots[prev].next = a.slots[idx].next
	}
	a.slots[idx].next = none
}

// Active returns the notes currently assigned, most recently played first.
func (a *Allocator) Active() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var notes []int
	for cur := a.head; cur != none && a.slots[cur].active; cur = a.slots[cur].next {
		notes = append(notes, a.slots[cur].note)
	}
	return notes
}

// Order returns the voice indices in list order, for diagnostics.
func (a *Allocator) Order() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	order := make([]int, 0, len(a.slots))
	for cur := a.head; cur != none; cur = a.slots[cur].next {
		order = append(order, cur)
	}
	return order
}
