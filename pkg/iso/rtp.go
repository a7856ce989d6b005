package iso

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"

	"github.com/haivivi/lesynth/pkg/logging"
)

// RTPPayloadType is the dynamic payload type used for audio frames.
const RTPPayloadType = 96

// RTPConfig configures an RTPLink.
type RTPConfig struct {
	// Local is the UDP address to listen on, e.g. "127.0.0.1:0".
	Local string
	// Remote is the peer address. When empty, the link answers the source
	// of the first packet it receives.
	Remote string
	// SamplesPerFrame advances the RTP timestamp per frame.
	SamplesPerFrame uint32
	Logger          *slog.Logger
}

// RTPLink carries frames as RTP packets over UDP. Packet loss shows up as
// a sequence gap and is reported as one invalid frame.
type RTPLink struct {
	cfg    RTPConfig
	ssrc   uint32
	logger logging.Logger

	mu        sync.Mutex
	conn      *net.UDPConn
	remote    *net.UDPAddr
	ch        Channel
	h         Handler
	seq       uint16
	timestamp uint32
	anchor    time.Time
	lastSeq   uint16
	seenSeq   bool
	closed    bool
	done      chan struct{}
}

// NewRTPLink returns an unconnected RTP link. The SSRC is derived from a
// random UUID.
func NewRTPLink(cfg RTPConfig) *RTPLink {
	id := uuid.New()
	return &RTPLink{
		cfg:    cfg,
		ssrc:   binary.BigEndian.Uint32(id[:4]),
		logger: logging.New("iso", cfg.Logger),
	}
}

// Connect implements Link. It binds the local socket and starts reading.
func (l *RTPLink) Connect(ctx context.Context, ch Channel, h Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	laddr, err := net.ResolveUDPAddr("udp", l.cfg.Local)
	if err != nil {
		return fmt.Errorf("iso: rtp local address: %w", err)
	}
	var raddr *net.UDPAddr
	if l.cfg.Remote != "" {
		if raddr, err = net.ResolveUDPAddr("udp", l.cfg.Remote); err != nil {
			return fmt.Errorf("iso: rtp remote address: %w", err)
		}
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("iso: rtp listen: %w", err)
	}

	l.mu.Lock()
	if l.conn != nil {
		l.mu.Unlock()
		conn.Close()
		return fmt.Errorf("iso: rtp link already connected")
	}
	l.conn, l.remote, l.ch, l.h = conn, raddr, ch, h
	l.closed = false
	l.seenSeq = false
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go l.readLoop(conn, done)
	h.OnConnected(ch)
	return nil
}

// LocalAddr returns the bound address, or nil before Connect.
func (l *RTPLink) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *RTPLink) readLoop(conn *net.UDPConn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 1500)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.logger.WarnPrintf("rtp read: %v", err)
			}
			return
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			l.logger.DebugPrintf("rtp: dropping malformed packet from %v: %v", from, err)
			continue
		}

		l.mu.Lock()
		if l.remote == nil {
			l.remote = from
		}
		lost := l.seenSeq && pkt.SequenceNumber != l.lastSeq+1
		l.lastSeq, l.seenSeq = pkt.SequenceNumber, true
		h, ch := l.h, l.ch
		l.mu.Unlock()

		if lost {
			h.OnReceive(ch, nil, false, pkt.Timestamp)
		}
		h.OnReceive(ch, append([]byte(nil), pkt.Payload...), true, pkt.Timestamp)
	}
}

// Send implements Link. The write completes synchronously, so OnSent is
// reported before Send returns.
func (l *RTPLink) Send(data []byte) error {
	l.mu.Lock()
	if l.conn == nil || l.closed {
		l.mu.Unlock()
		return ErrNotConnected
	}
	if l.remote == nil {
		l.mu.Unlock()
		return fmt.Errorf("iso: rtp peer address unknown")
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    RTPPayloadType,
			SequenceNumber: l.seq,
			Timestamp:      l.timestamp,
			SSRC:           l.ssrc,
		},
		Payload: data,
	}
	conn, remote, h, ch := l.conn, l.remote, l.h, l.ch
	l.seq++
	l.timestamp += l.cfg.SamplesPerFrame
	l.anchor = time.Now()
	l.mu.Unlock()

	b, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("iso: rtp marshal: %w", err)
	}
	if _, err := conn.WriteToUDP(b, remote); err != nil {
		return fmt.Errorf("iso: rtp write: %w", err)
	}
	h.OnSent(ch)
	return nil
}

// Anchor implements Link.
func (l *RTPLink) Anchor() (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.anchor.IsZero() {
		return time.Time{}, ErrNoAnchor
	}
	return l.anchor, nil
}

// DisconnectACL implements Link. It closes the socket and reports the
// disconnection.
func (l *RTPLink) DisconnectACL() error {
	l.mu.Lock()
	if l.conn == nil || l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn, done, h, ch := l.conn, l.done, l.h, l.ch
	l.conn = nil
	l.mu.Unlock()

	err := conn.Close()
	<-done
	h.OnDisconnected(ch, ErrLinkClosed)
	return err
}

// Close implements Link.
func (l *RTPLink) Close() error {
	return l.DisconnectACL()
}

var _ Link = (*RTPLink)(nil)
