package input

import (
	"bufio"
	"context"
	"errors"
	"io"
)

// ErrQuit is returned by Keyboard.Run when the quit key is read.
var ErrQuit = errors.New("input: quit")

// DefaultKeys maps the number row to button indices.
var DefaultKeys = []byte{'1', '2', '3', '4', '5'}

// Keyboard emulates push buttons on a terminal. A terminal delivers no key
// release, so each key toggles its button between pressed and released.
// The keys 'q' and Ctrl-C quit.
type Keyboard struct {
	r       io.Reader
	q       *Queue
	keys    []byte
	pressed []bool
}

// NewKeyboard reads keys from r and posts button events to q. With no keys,
// DefaultKeys is used.
func NewKeyboard(r io.Reader, q *Queue, keys ...byte) *Keyboard {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	return &Keyboard{r: r, q: q, keys: keys, pressed: make([]bool, len(keys))}
}

// Run reads keys until the reader ends, the context is cancelled or the
// quit key is read. Reads are not interruptible, so cancellation is
// noticed on the next key.
func (k *Keyboard) Run(ctx context.Context) error {
	br := bufio.NewReader(k.r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if c == 'q' || c == 0x03 {
			return ErrQuit
		}
		if ev, ok := k.Translate(c); ok {
			k.q.Post(ev)
		}
	}
}

// Translate maps a key to the next edge of its button.
func (k *Keyboard) Translate(c byte) (Event, bool) {
	for i, key := range k.keys {
		if key != c {
			continue
		}
		k.pressed[i] = !k.pressed[i]
		ev := Event{Index: i, State: Released}
		if k.pressed[i] {
			ev.State = Pressed
		}
		return ev, true
	}
	return Event{}, false
}
