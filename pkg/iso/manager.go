package iso

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/haivivi/lesynth/pkg/logging"
	"github.com/haivivi/lesynth/pkg/stream"
)

const (
	// DefaultCredits is the number of outstanding buffers per channel.
	DefaultCredits = 2

	// DefaultConnInterval is the ISO connection interval.
	DefaultConnInterval = 10 * time.Millisecond

	// DefaultConnectAttempts is the number of connect attempts per channel.
	DefaultConnectAttempts = 5

	// DefaultConnectBackoff is the backoff unit between connect attempts;
	// attempt n waits n units.
	DefaultConnectBackoff = 500 * time.Millisecond

	// DefaultStatsInterval is the receive statistics report period.
	DefaultStatsInterval = 10 * time.Second

	// skewThreshold is how close to the anchor point a stereo send may
	// start before it is delayed.
	skewThreshold = 1600 * time.Microsecond
)

// Config configures a Manager.
type Config struct {
	Transport stream.Transport
	// Credits caps the outstanding buffers per channel.
	Credits int
	// ConnInterval is the link's connection interval.
	ConnInterval time.Duration
	// ConnectAttempts and ConnectBackoff drive ConnectAll and Reconnect.
	ConnectAttempts int
	ConnectBackoff  time.Duration
	// TestPattern replaces outgoing payloads with a counting byte pattern
	// and checks incoming payloads against it.
	TestPattern   bool
	StatsInterval time.Duration
	// Post delivers link events to the stream controller.
	Post func(stream.Event) error
	// Receive gets every inbound payload outside test pattern mode.
	Receive func(data []byte, badFrame bool, sduRef uint32)
	Logger  *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Credits <= 0 {
		c.Credits = DefaultCredits
	}
	if c.ConnInterval <= 0 {
		c.ConnInterval = DefaultConnInterval
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = DefaultConnectAttempts
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = DefaultConnectBackoff
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = DefaultStatsInterval
	}
}

type channel struct {
	link      Link
	connected atomic.Bool
	credits   atomic.Int32
	warned    atomic.Bool

	// pattern is the next test pattern byte to send; expect is the next
	// one to receive.
	pattern atomic.Uint32
	expect  atomic.Uint32
}

// acquire takes a credit unless the window is full.
func (c *channel) acquire(limit int32) bool {
	for {
		n := c.credits.Load()
		if n >= limit {
			return false
		}
		if c.credits.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release returns a credit. The count never goes negative.
func (c *channel) release() {
	for {
		n := c.credits.Load()
		if n <= 0 {
			return
		}
		if c.credits.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// ChannelStatus is a snapshot of one channel.
type ChannelStatus struct {
	Channel   string `json:"channel"`
	Connected bool   `json:"connected"`
	Credits   int    `json:"credits"`
}

// RXStats counts received frames.
type RXStats struct {
	Total         uint64 `json:"total"`
	Bad           uint64 `json:"bad"`
	PatternErrors uint64 `json:"pattern_errors,omitempty"`
}

// Manager owns the ISO channels.
type Manager struct {
	cfg      Config
	channels []*channel
	logger   logging.Logger

	// flush counts pending buffer drains: while positive, stereo frames
	// are dropped until both channels have no outstanding buffers.
	flush atomic.Int32

	mu     sync.Mutex
	prevTX time.Time

	// down carries channels that lost their link to Reconnect.
	down chan Channel

	rxTotal, rxBad       atomic.Uint64
	rxWinTotal, rxWinBad atomic.Uint64
	patternErrors        atomic.Uint64

	now   func() time.Time
	sleep func(time.Duration)
}

// NewManager returns a manager for links, indexed by Channel. A broadcast
// transport uses exactly one link; connected channels use one or two.
func NewManager(cfg Config, links ...Link) (*Manager, error) {
	cfg.setDefaults()
	switch {
	case len(links) == 0 || len(links) > 2:
		return nil, fmt.Errorf("iso: need one or two links, got %d", len(links))
	case cfg.Transport == stream.TransportBIS && len(links) != 1:
		return nil, fmt.Errorf("iso: broadcast needs exactly one link, got %d", len(links))
	}
	m := &Manager{
		cfg:    cfg,
		logger: logging.New("iso", cfg.Logger),
		down:   make(chan Channel, len(links)),
		now:    time.Now,
		sleep:  time.Sleep,
	}
	for _, l := range links {
		if l == nil {
			panic("iso: nil link")
		}
		m.channels = append(m.channels, &channel{link: l})
	}
	return m, nil
}

func (m *Manager) channel(ch Channel) (*channel, error) {
	if ch < 0 || int(ch) >= len(m.channels) {
		return nil, fmt.Errorf("iso: unknown %s", ch)
	}
	return m.channels[ch], nil
}

// Connected returns the number of connected channels.
func (m *Manager) Connected() int {
	n := 0
	for _, c := range m.channels {
		if c.connected.Load() {
			n++
		}
	}
	return n
}

func (m *Manager) full(c *channel) bool {
	return c.credits.Load() >= int32(m.cfg.Credits)
}

func (m *Manager) empty(c *channel) bool {
	return c.credits.Load() == 0
}

// Send submits data on one channel.
func (m *Manager) Send(ch Channel, data []byte) error {
	c, err := m.channel(ch)
	if err != nil {
		return err
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return m.transmit(ch, c, data)
}

// transmit sends on a connected channel, replacing the payload with the test
// pattern when enabled.
func (m *Manager) transmit(ch Channel, c *channel, data []byte) error {
	if !c.acquire(int32(m.cfg.Credits)) {
		if c.warned.CompareAndSwap(false, true) {
			m.logger.WarnPrintf("TX overrun on %s, single print", ch)
		}
		return ErrWouldBlock
	}
	c.warned.Store(false)

	var value byte
	if m.cfg.TestPattern {
		value = byte(c.pattern.Load())
		pattern := make([]byte, len(data))
		for i := range pattern {
			pattern[i] = value
		}
		data = pattern
	}
	if err := c.link.Send(data); err != nil {
		c.release()
		return fmt.Errorf("iso: send on %s: %w", ch, err)
	}
	if m.cfg.TestPattern {
		c.pattern.Store(uint32(value + 1))
	}
	return nil
}

// sendIfConnected is the stereo and broadcast send: an unconnected channel
// is skipped silently.
func (m *Manager) sendIfConnected(ch Channel, data []byte) error {
	c := m.channels[ch]
	if !c.connected.Load() {
		return nil
	}
	return m.transmit(ch, c, data)
}

// SendStereo sends the first half of data on Left and the second half on
// Right. Both channels must have a free credit. On a broadcast transport
// the whole frame goes to the single channel.
func (m *Manager) SendStereo(data []byte) error {
	if m.cfg.Transport == stream.TransportBIS {
		return m.sendIfConnected(Left, data)
	}
	if len(m.channels) < 2 {
		return fmt.Errorf("iso: stereo needs two channels")
	}
	left, right := m.channels[Left], m.channels[Right]
	if m.full(left) || m.full(right) {
		return ErrWouldBlock
	}

	if m.flush.Load() > 0 {
		// Let buffers queued for the old channel set drain before the newly
		// connected channel gets data.
		if m.empty(left) && m.empty(right) {
			m.flush.Add(-1)
		}
		return nil
	}

	if m.Connected() > 1 {
		m.avoidSkew()
	}

	half := len(data) / 2
	if err := m.sendIfConnected(Left, data[:half]); err != nil {
		return err
	}
	return m.sendIfConnected(Right, data[half:2*half])
}

// avoidSkew delays the first frame of a burst when it would start too close
// to the anchor point, where the left half could land in one connection
// interval and the right half in the next.
func (m *Manager) avoidSkew() {
	m.mu.Lock()
	now := m.now()
	idle := now.Sub(m.prevTX)
	m.prevTX = now
	if idle <= 3*m.cfg.ConnInterval {
		m.mu.Unlock()
		return
	}

	anchor, err := m.channels[Left].link.Anchor()
	if err != nil {
		if errors.Is(err, ErrNoAnchor) {
			// Streaming has not started; check again on the next frame.
			m.flush.Add(1)
			m.prevTX = time.Time{}
		} else {
			m.logger.WarnPrintf("anchor: %v", err)
		}
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	diff := now.Sub(anchor) - m.cfg.ConnInterval
	if diff.Abs() < skewThreshold {
		m.logger.DebugPrintf("anchor too close, diff=%v, sleep=%v", diff, skewThreshold-diff)
		m.sleep(skewThreshold - diff)
	}
}

// SendMono sends data on the first channel, the broadcast channel or the
// return channel.
func (m *Manager) SendMono(data []byte) error {
	return m.sendIfConnected(Left, data)
}

// OnSent implements Handler.
func (m *Manager) OnSent(ch Channel) {
	if c, err := m.channel(ch); err == nil {
		c.release()
	}
}

// OnConnected implements Handler. The first connected channel starts the
// stream; a later one makes the outstanding buffers drain first.
func (m *Manager) OnConnected(ch Channel) {
	c, err := m.channel(ch)
	if err != nil {
		m.logger.ErrorPrintf("connected: %v", err)
		return
	}
	c.connected.Store(true)
	m.logger.InfoPrintf("%s connected", ch)

	if m.cfg.Transport == stream.TransportCIS && m.Connected() > 1 {
		m.flush.Add(1)
		return
	}
	m.post(stream.EventConnected)
	m.post(stream.EventLinkReady)
}

// OnDisconnected implements Handler.
func (m *Manager) OnDisconnected(ch Channel, reason error) {
	c, err := m.channel(ch)
	if err != nil {
		m.logger.ErrorPrintf("disconnected: %v", err)
		return
	}
	c.credits.Store(0)
	c.connected.Store(false)
	m.logger.InfoPrintf("%s disconnected: %v", ch, reason)

	if m.Connected() == 0 {
		m.post(stream.EventDisconnected)
	}
	m.markDown(ch)
}

func (m *Manager) markDown(ch Channel) {
	select {
	case m.down <- ch:
	default:
	}
}

// OnReceive implements Handler.
func (m *Manager) OnReceive(ch Channel, data []byte, valid bool, sduRef uint32) {
	m.rxTotal.Add(1)
	m.rxWinTotal.Add(1)
	if !valid {
		m.rxBad.Add(1)
		m.rxWinBad.Add(1)
	}

	if m.cfg.TestPattern {
		if valid {
			m.checkPattern(ch, data)
		}
		return
	}
	if m.cfg.Receive == nil {
		m.logger.ErrorPrintf("receive callback is not set")
		return
	}
	m.cfg.Receive(data, !valid, sduRef)
}

func (m *Manager) checkPattern(ch Channel, data []byte) {
	c, err := m.channel(ch)
	if err != nil || len(data) == 0 {
		return
	}
	want := byte(c.expect.Load())
	got := data[0]
	for _, b := range data[1:] {
		if b != got {
			m.patternErrors.Add(1)
			m.logger.WarnPrintf("%s: inconsistent test pattern frame", ch)
			c.expect.Store(uint32(got + 1))
			return
		}
	}
	if got != want {
		m.patternErrors.Add(1)
		m.logger.WarnPrintf("%s: test pattern got=%d, want=%d", ch, got, want)
	}
	c.expect.Store(uint32(got + 1))
}

func (m *Manager) post(ev stream.Event) {
	if m.cfg.Post == nil {
		return
	}
	if err := m.cfg.Post(ev); err != nil {
		m.logger.ErrorPrintf("unable to post %s: %v", ev, err)
	}
}

// ConnectAll connects every channel in order. A failed connect is retried
// with a linearly growing backoff; after the last attempt the channel's
// underlying connection is torn down and the next channel is tried. It
// returns the joined errors of the channels that could not connect.
func (m *Manager) ConnectAll(ctx context.Context) error {
	var errs []error
	for i, c := range m.channels {
		ch := Channel(i)
		if err := m.connect(ctx, ch, c); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.ErrorPrintf("could not connect %s after %d attempts: %v", ch, m.cfg.ConnectAttempts, err)
			if derr := c.link.DisconnectACL(); derr != nil {
				m.logger.WarnPrintf("disconnect %s: %v", ch, derr)
			}
			errs = append(errs, fmt.Errorf("iso: connect %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) connect(ctx context.Context, ch Channel, c *channel) error {
	attempt := 0
	return retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		attempt++
		err := c.link.Connect(ctx, ch, m)
		if err == nil {
			return nil
		}
		if attempt < m.cfg.ConnectAttempts {
			m.logger.WarnPrintf("connect %s failed, retrying, attempt %d: %v", ch, attempt, err)
		}
		return retry.RetryableError(err)
	})
}

// backoff waits ConnectBackoff times the attempt number between attempts.
func (m *Manager) backoff() retry.Backoff {
	var n int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return time.Duration(n) * m.cfg.ConnectBackoff, false
	})
	return retry.WithMaxRetries(uint64(m.cfg.ConnectAttempts-1), linear)
}

// Reconnect connects channels again after they drop, until ctx ends. Each
// drop gets the ConnectAll retry policy. A channel that still cannot
// connect is torn down and tried again after one more backoff unit.
// Channels that never connected in ConnectAll are left alone.
func (m *Manager) Reconnect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch := <-m.down:
			m.reconnect(ctx, ch)
		}
	}
}

func (m *Manager) reconnect(ctx context.Context, ch Channel) {
	c := m.channels[ch]
	if c.connected.Load() {
		return
	}
	m.logger.InfoPrintf("reconnecting %s", ch)
	err := m.connect(ctx, ch, c)
	if err == nil || ctx.Err() != nil {
		return
	}
	m.logger.ErrorPrintf("could not reconnect %s after %d attempts: %v", ch, m.cfg.ConnectAttempts, err)
	if derr := c.link.DisconnectACL(); derr != nil {
		m.logger.WarnPrintf("disconnect %s: %v", ch, derr)
	}

	t := time.NewTimer(m.cfg.ConnectBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
		m.markDown(ch)
	}
}

// RunStats logs the receive statistics every StatsInterval until ctx ends.
func (m *Manager) RunStats(ctx context.Context) {
	t := time.NewTicker(m.cfg.StatsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.reportStats()
		}
	}
}

func (m *Manager) reportStats() {
	total := m.rxWinTotal.Swap(0)
	bad := m.rxWinBad.Swap(0)
	if total == 0 {
		return
	}
	pct := 100 * float64(bad) / float64(total)
	m.logger.InfoPrintf("RX total: %d bad: %d, percent %.1f", total, bad, pct)
}

// RXStats returns the receive counters since construction.
func (m *Manager) RXStats() RXStats {
	return RXStats{
		Total:         m.rxTotal.Load(),
		Bad:           m.rxBad.Load(),
		PatternErrors: m.patternErrors.Load(),
	}
}

// Status returns a snapshot of every channel.
func (m *Manager) Status() []ChannelStatus {
	out := make([]ChannelStatus, len(m.channels))
	for i, c := range m.channels {
		out[i] = ChannelStatus{
			Channel:   Channel(i).String(),
			Connected: c.connected.Load(),
			Credits:   int(c.credits.Load()),
		}
	}
	return out
}

// Close closes every link.
func (m *Manager) Close() error {
	var errs []error
	for _, c := range m.channels {
		if err := c.link.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Handler       = (*Manager)(nil)
	_ stream.Sender = (*Manager)(nil)
)
