// Package iso manages the isochronous audio channels of a link.
//
// A Manager owns one Link per channel. Each channel has a small send window
// of outstanding buffers: a send takes a credit and the link's completion
// callback returns it. Stereo frames are split across the left and right
// channels and only sent when both have a free credit, so the two halves
// stay in the same connection interval.
//
// Links are the radio abstraction. Loopback connects two endpoints in
// process, RTPLink carries frames as RTP over UDP and WSLink carries them
// as msgpack envelopes over a WebSocket.
package iso

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWouldBlock is returned when a channel has no free send credit.
	ErrWouldBlock = errors.New("iso: would block")

	// ErrNotConnected is returned when sending on a channel that is not
	// connected.
	ErrNotConnected = errors.New("iso: not connected")

	// ErrNoAnchor is returned by Link.Anchor before the first transmission.
	ErrNoAnchor = errors.New("iso: no anchor yet")

	// ErrLinkClosed is reported to OnDisconnected when a link is torn down
	// locally.
	ErrLinkClosed = errors.New("iso: link closed")
)

// Channel indexes an ISO channel.
type Channel int

const (
	Left Channel = iota
	Right
)

// String returns the string representation of the channel.
func (c Channel) String() string {
	switch c {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("channel %d", int(c))
	}
}

// Handler receives link callbacks. Callbacks may run on any goroutine and
// must not block.
type Handler interface {
	// OnSent reports that one submitted buffer has been released.
	OnSent(ch Channel)
	// OnConnected reports that the channel is up.
	OnConnected(ch Channel)
	// OnDisconnected reports that the channel went down.
	OnDisconnected(ch Channel, reason error)
	// OnReceive delivers an inbound payload. valid is false for a frame the
	// link flagged as lost or corrupt.
	OnReceive(ch Channel, data []byte, valid bool, sduRef uint32)
}

// Link is one isochronous channel.
type Link interface {
	// Connect establishes the channel and binds its callbacks to h.
	// OnConnected is reported when the channel is up.
	Connect(ctx context.Context, ch Channel, h Handler) error
	// Send submits one payload. Every successful Send is followed by one
	// OnSent callback.
	Send(data []byte) error
	// Anchor returns the time of the most recent transmission anchor
	// point, or ErrNoAnchor before the first one.
	Anchor() (time.Time, error)
	// DisconnectACL tears down the underlying connection.
	DisconnectACL() error
	Close() error
}
