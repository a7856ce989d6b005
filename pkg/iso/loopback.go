package iso

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Loopback is an in-process Link. A pair of loopbacks forms one channel:
// what one end sends, the other end receives.
//
// Completions are reported as soon as a payload is delivered unless Hold is
// set, in which case they wait for Release. Connect fails while
// FailConnects is positive.
type Loopback struct {
	mu        sync.Mutex
	peer      *Loopback
	ch        Channel
	h         Handler
	connected bool
	anchor    time.Time
	seq       uint32
	hold      bool
	held      int
	failures  int
}

// NewLoopbackPair returns two connected ends.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a, b := &Loopback{}, &Loopback{}
	a.peer, b.peer = b, a
	return a, b
}

// Peer returns the other end.
func (l *Loopback) Peer() *Loopback {
	return l.peer
}

// FailConnects makes the next n Connect calls fail.
func (l *Loopback) FailConnects(n int) {
	l.mu.Lock()
	l.failures = n
	l.mu.Unlock()
}

// Hold defers OnSent callbacks until Release.
func (l *Loopback) Hold(hold bool) {
	l.mu.Lock()
	l.hold = hold
	l.mu.Unlock()
}

// Release reports every held completion.
func (l *Loopback) Release() {
	l.mu.Lock()
	n, h, ch := l.held, l.h, l.ch
	l.held = 0
	l.mu.Unlock()
	for range n {
		h.OnSent(ch)
	}
}

// Connect implements Link.
func (l *Loopback) Connect(ctx context.Context, ch Channel, h Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return errors.New("iso: loopback connect refused")
	}
	l.ch, l.h, l.connected = ch, h, true
	l.mu.Unlock()

	h.OnConnected(ch)
	return nil
}

// Send implements Link.
func (l *Loopback) Send(data []byte) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return ErrNotConnected
	}
	l.anchor = time.Now()
	l.seq++
	seq := l.seq
	h, ch, hold := l.h, l.ch, l.hold
	if hold {
		l.held++
	}
	l.mu.Unlock()

	l.peer.deliver(append([]byte(nil), data...), seq)
	if !hold {
		h.OnSent(ch)
	}
	return nil
}

func (l *Loopback) deliver(data []byte, seq uint32) {
	l.mu.Lock()
	h, ch, ok := l.h, l.ch, l.connected
	l.mu.Unlock()
	if ok {
		h.OnReceive(ch, data, true, seq)
	}
}

// Anchor implements Link.
func (l *Loopback) Anchor() (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.anchor.IsZero() {
		return time.Time{}, ErrNoAnchor
	}
	return l.anchor, nil
}

// DisconnectACL implements Link. Both ends report the disconnection.
func (l *Loopback) DisconnectACL() error {
	l.disconnect(ErrLinkClosed)
	l.peer.disconnect(ErrLinkClosed)
	return nil
}

func (l *Loopback) disconnect(reason error) {
	l.mu.Lock()
	h, ch, was := l.h, l.ch, l.connected
	l.connected = false
	l.held = 0
	l.mu.Unlock()
	if was {
		h.OnDisconnected(ch, reason)
	}
}

// Close implements Link.
func (l *Loopback) Close() error {
	return l.DisconnectACL()
}

var _ Link = (*Loopback)(nil)
