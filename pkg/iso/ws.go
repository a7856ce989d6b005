package iso

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/lesynth/pkg/logging"
)

// wsFrame is the msgpack envelope of one payload.
type wsFrame struct {
	Seq  uint32 `msgpack:"seq"`
	Ref  uint32 `msgpack:"ref"`
	Bad  bool   `msgpack:"bad,omitempty"`
	Data []byte `msgpack:"data"`
}

// WSConfig configures a dialing WSLink.
type WSConfig struct {
	// URL is the ws:// or wss:// endpoint.
	URL         string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// WSLink carries frames as msgpack envelopes in binary WebSocket messages.
type WSLink struct {
	cfg    WSConfig
	logger logging.Logger
	start  time.Time

	mu     sync.Mutex
	conn   *websocket.Conn
	ch     Channel
	h      Handler
	seq    uint32
	anchor time.Time
	closed bool
	done   chan struct{}

	// writeMu serializes writers; gorilla connections allow one at a time.
	writeMu sync.Mutex
}

// NewWSLink returns a link that dials cfg.URL on Connect.
func NewWSLink(cfg WSConfig) *WSLink {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &WSLink{cfg: cfg, logger: logging.New("iso", cfg.Logger)}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// AcceptWS upgrades an HTTP request to a WebSocket and wraps it as a link.
// Connect on the returned link binds the handler without dialing.
func AcceptWS(w http.ResponseWriter, r *http.Request, l *slog.Logger) (*WSLink, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("iso: ws upgrade: %w", err)
	}
	return &WSLink{conn: conn, logger: logging.New("iso", l)}, nil
}

// Connect implements Link.
func (l *WSLink) Connect(ctx context.Context, ch Channel, h Handler) error {
	l.mu.Lock()
	conn := l.conn
	if conn != nil && l.done != nil {
		l.mu.Unlock()
		return fmt.Errorf("iso: ws link already connected")
	}
	l.mu.Unlock()

	if conn == nil {
		if l.cfg.URL == "" {
			return fmt.Errorf("iso: ws link has no URL")
		}
		dialer := websocket.Dialer{HandshakeTimeout: l.cfg.DialTimeout}
		c, _, err := dialer.DialContext(ctx, l.cfg.URL, nil)
		if err != nil {
			return fmt.Errorf("iso: ws dial: %w", err)
		}
		conn = c
	}

	l.mu.Lock()
	l.conn, l.ch, l.h = conn, ch, h
	l.closed = false
	l.start = time.Now()
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go l.readLoop(conn, done)
	h.OnConnected(ch)
	return nil
}

func (l *WSLink) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			local := l.closed
			l.closed = true
			if !local {
				l.conn, l.done = nil, nil
			}
			h, ch := l.h, l.ch
			l.mu.Unlock()
			if local {
				return
			}
			conn.Close()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.WarnPrintf("ws read: %v", err)
			}
			h.OnDisconnected(ch, err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		var f wsFrame
		if err := msgpack.Unmarshal(data, &f); err != nil {
			l.logger.DebugPrintf("ws: dropping malformed frame: %v", err)
			continue
		}
		l.mu.Lock()
		h, ch := l.h, l.ch
		l.mu.Unlock()
		h.OnReceive(ch, f.Data, !f.Bad, f.Ref)
	}
}

// Send implements Link. OnSent is reported once the message is written.
func (l *WSLink) Send(data []byte) error {
	l.mu.Lock()
	if l.conn == nil || l.closed {
		l.mu.Unlock()
		return ErrNotConnected
	}
	conn, h, ch := l.conn, l.h, l.ch
	now := time.Now()
	f := wsFrame{
		Seq:  l.seq,
		Ref:  uint32(now.Sub(l.start).Microseconds()),
		Data: data,
	}
	l.seq++
	l.anchor = now
	l.mu.Unlock()

	b, err := msgpack.Marshal(&f)
	if err != nil {
		return fmt.Errorf("iso: ws marshal: %w", err)
	}
	l.writeMu.Lock()
	err = conn.WriteMessage(websocket.BinaryMessage, b)
	l.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("iso: ws write: %w", err)
	}
	h.OnSent(ch)
	return nil
}

// Anchor implements Link.
func (l *WSLink) Anchor() (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.anchor.IsZero() {
		return time.Time{}, ErrNoAnchor
	}
	return l.anchor, nil
}

// DisconnectACL implements Link. It sends a close message, closes the
// connection and reports the disconnection.
func (l *WSLink) DisconnectACL() error {
	l.mu.Lock()
	if l.conn == nil || l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn, done, h, ch := l.conn, l.done, l.h, l.ch
	l.conn, l.done = nil, nil
	l.mu.Unlock()

	l.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	l.writeMu.Unlock()
	err := conn.Close()
	if done != nil {
		<-done
	}
	if h != nil {
		h.OnDisconnected(ch, ErrLinkClosed)
	}
	return err
}

// Close implements Link.
func (l *WSLink) Close() error {
	return l.DisconnectACL()
}

var _ Link = (*WSLink)(nil)
