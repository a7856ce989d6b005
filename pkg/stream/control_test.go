package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakePipeline struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	onStart  func()
}

func (p *fakePipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onStart != nil {
		p.onStart()
	}
	if p.startErr != nil {
		return p.startErr
	}
	p.starts++
	return nil
}

func (p *fakePipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

type fakeSender struct {
	mu     sync.Mutex
	stereo [][]byte
	mono   [][]byte
	err    error
}

func (s *fakeSender) SendStereo(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stereo = append(s.stereo, data)
	return s.err
}

func (s *fakeSender) SendMono(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mono = append(s.mono, data)
	return s.err
}

func newController(t *testing.T, cfg Config) (*Controller, *fakePipeline, *fakeSender) {
	t.Helper()
	p := &fakePipeline{}
	s := &fakeSender{}
	c := New(cfg, p, s)
	t.Cleanup(c.Close)
	return c, p, s
}

// apply posts and handles events one by one.
func apply(t *testing.T, c *Controller, events ...Event) {
	t.Helper()
	for _, ev := range events {
		if err := c.PostEvent(ev); err != nil {
			t.Fatalf("PostEvent(%s): %v", ev, err)
		}
		if err := c.HandleNext(context.Background()); err != nil {
			t.Fatalf("HandleNext(%s): %v", ev, err)
		}
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		events []Event
		want   State
		starts int
		stops  int
	}{
		{"initial", Config{}, nil, StateConnecting, 0, 0},
		{"connect", Config{}, []Event{EventConnected}, StateConnected, 0, 0},
		{"stream", Config{}, []Event{EventConnected, EventLinkReady}, StateStreaming, 1, 0},
		{"link ready before connect", Config{}, []Event{EventLinkReady}, StateConnecting, 0, 0},
		{"streaming event is informational", Config{}, []Event{EventConnected, EventStreaming}, StateConnected, 0, 0},
		{"gateway cis disconnect stops", Config{}, []Event{EventConnected, EventLinkReady, EventDisconnected}, StateDisconnected, 1, 1},
		{"headset keeps streaming", Config{Role: RoleHeadset}, []Event{EventConnected, EventLinkReady, EventDisconnected}, StateStreaming, 1, 0},
		{"bis keeps streaming", Config{Transport: TransportBIS}, []Event{EventConnected, EventLinkReady, EventDisconnected}, StateStreaming, 1, 0},
		{"disconnect from connected", Config{}, []Event{EventConnected, EventDisconnected}, StateDisconnected, 0, 0},
		{"disconnected only advances on connect", Config{}, []Event{EventConnected, EventDisconnected, EventLinkReady, EventDisconnected, EventStreaming}, StateDisconnected, 0, 0},
		{"reconnect", Config{}, []Event{EventConnected, EventDisconnected, EventConnected, EventLinkReady}, StateStreaming, 1, 0},
		{"pause", Config{}, []Event{EventConnected, EventLinkReady, EventPause}, StatePaused, 1, 1},
		{"resume", Config{}, []Event{EventConnected, EventLinkReady, EventPause, EventLinkReady}, StateStreaming, 2, 1},
		{"disconnect while paused", Config{}, []Event{EventConnected, EventLinkReady, EventPause, EventDisconnected}, StateDisconnected, 1, 1},
		{"pause when not streaming", Config{}, []Event{EventConnected, EventPause}, StateConnected, 0, 0},
		{"unknown event", Config{}, []Event{Event(42)}, StateConnecting, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p, _ := newController(t, tt.cfg)
			apply(t, c, tt.events...)
			if got := c.State(); got != tt.want {
				t.Errorf("State got=%s, want=%s", got, tt.want)
			}
			if p.starts != tt.starts || p.stops != tt.stops {
				t.Errorf("pipeline start/stop got=%d/%d, want=%d/%d", p.starts, p.stops, tt.starts, tt.stops)
			}
		})
	}
}

func TestStartFailure(t *testing.T) {
	c, p, _ := newController(t, Config{})
	startErr := errors.New("codec init failed")
	p.startErr = startErr
	apply(t, c, EventConnected)

	c.PostEvent(EventLinkReady)
	if err := c.HandleNext(context.Background()); !errors.Is(err, startErr) {
		t.Errorf("HandleNext got=%v, want=%v", err, startErr)
	}
	if got := c.State(); got != StateConnected {
		t.Errorf("State got=%s, want=%s", got, StateConnected)
	}
}

func TestFirstFrameIsSent(t *testing.T) {
	c, p, s := newController(t, Config{})
	// A pipeline sends its first frame from inside Start.
	p.onStart = func() { c.SendEncoded([]byte{1}) }
	apply(t, c, EventConnected, EventLinkReady)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stereo) != 1 {
		t.Errorf("frames sent during Start got=%d, want=1", len(s.stereo))
	}
}

func TestPostEventQueueFull(t *testing.T) {
	var logs bytes.Buffer
	c, _, _ := newController(t, Config{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	for range EventQueueCapacity {
		if err := c.PostEvent(EventStreaming); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.PostEvent(EventConnected); !errors.Is(err, ErrQueueFull) {
		t.Errorf("PostEvent got=%v, want=%v", err, ErrQueueFull)
	}
	if !strings.Contains(logs.String(), "full queue") {
		t.Errorf("log got=%q, want a full queue warning", logs.String())
	}
	if got := c.Stats().DroppedEvts; got != 1 {
		t.Errorf("DroppedEvts got=%d, want=1", got)
	}
}

func TestRun(t *testing.T) {
	c, p, _ := newController(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	c.PostEvent(EventConnected)
	c.PostEvent(EventLinkReady)
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateStreaming {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for streaming")
		}
		time.Sleep(time.Millisecond)
	}
	if c.SessionID() == "" {
		t.Error("SessionID is empty while streaming")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run got=%v, want=nil", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.starts != 1 {
		t.Errorf("starts got=%d, want=1", p.starts)
	}
}

func TestSessionIDChangesPerSession(t *testing.T) {
	c, _, _ := newController(t, Config{})
	apply(t, c, EventConnected, EventLinkReady)
	first := c.SessionID()
	apply(t, c, EventPause, EventLinkReady)
	if second := c.SessionID(); second == first || second == "" {
		t.Errorf("SessionID got=%q after resume, first=%q", second, first)
	}
}

func TestSendEncodedGate(t *testing.T) {
	c, _, s := newController(t, Config{})
	c.SendEncoded([]byte{1})
	if len(s.stereo) != 0 {
		t.Fatalf("sent %d frames before streaming", len(s.stereo))
	}

	apply(t, c, EventConnected, EventLinkReady)
	c.SendEncoded([]byte{2})
	if len(s.stereo) != 1 {
		t.Fatalf("sent got=%d, want=1", len(s.stereo))
	}

	apply(t, c, EventDisconnected)
	c.SendEncoded([]byte{3})
	if len(s.stereo) != 1 {
		t.Errorf("sent got=%d after disconnect, want=1", len(s.stereo))
	}
}

func TestSendEncodedBIS(t *testing.T) {
	c, _, s := newController(t, Config{Transport: TransportBIS})
	apply(t, c, EventConnected, EventLinkReady)
	c.SendEncoded([]byte{1, 2})
	if len(s.mono) != 1 || len(s.stereo) != 0 {
		t.Errorf("mono/stereo got=%d/%d, want=1/0", len(s.mono), len(s.stereo))
	}
}

func TestSendErrorLoggedOnChange(t *testing.T) {
	var logs bytes.Buffer
	c, _, s := newController(t, Config{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	apply(t, c, EventConnected, EventLinkReady)

	s.err = errors.New("would block")
	for range 5 {
		c.SendEncoded([]byte{1})
	}
	if got := strings.Count(logs.String(), "problem sending data"); got != 1 {
		t.Errorf("warnings got=%d, want=1", got)
	}
	s.err = nil
	c.SendEncoded([]byte{1})
	s.err = errors.New("would block")
	c.SendEncoded([]byte{1})
	if got := strings.Count(logs.String(), "problem sending data"); got != 2 {
		t.Errorf("warnings got=%d, want=2", got)
	}
	if st := c.Stats(); st.SendErrors != 6 || st.Sent != 1 {
		t.Errorf("Stats got=%+v, want 6 errors and 1 sent", st)
	}
}

func TestReceiveISO(t *testing.T) {
	c, _, _ := newController(t, Config{RXSlots: 3})

	c.ReceiveISO([]byte{9}, false, 0)
	if n := c.Drain(func(*Frame) {}); n != 0 {
		t.Errorf("drained %d frames received before streaming", n)
	}
	if got := c.Stats().Discarded; got != 1 {
		t.Errorf("Discarded got=%d, want=1", got)
	}

	apply(t, c, EventConnected, EventLinkReady)
	for i := range 4 {
		c.ReceiveISO([]byte{byte(i + 1), 0xaa}, i == 3, uint32(i))
	}
	var got []byte
	var bad []bool
	c.Drain(func(f *Frame) {
		got = append(got, f.Bytes()[0])
		bad = append(bad, f.BadFrame)
	})
	if string(got) != string([]byte{2, 3, 4}) {
		t.Errorf("drained got=%v, want=[2 3 4]", got)
	}
	if !bad[2] || bad[0] {
		t.Errorf("bad flags got=%v", bad)
	}
	if st := c.Stats(); st.Overruns != 1 || st.Received != 4 {
		t.Errorf("Stats got=%+v, want 1 overrun and 4 received", st)
	}

	c.ReceiveISO(make([]byte, MaxFrameSize+1), false, 0)
	if got := c.Stats().Oversized; got != 1 {
		t.Errorf("Oversized got=%d, want=1", got)
	}
}

func TestStateJSON(t *testing.T) {
	b, err := json.Marshal(StateLinkReady)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"link_ready"` {
		t.Errorf("Marshal got=%s, want=%q", b, "link_ready")
	}
	var s State
	if err := json.Unmarshal([]byte(`"paused"`), &s); err != nil || s != StatePaused {
		t.Errorf("Unmarshal got=(%s, %v), want=%s", s, err, StatePaused)
	}
	var e Event
	if err := json.Unmarshal([]byte(`"bogus"`), &e); err == nil {
		t.Error("Unmarshal of unknown event expected error")
	}
	if r, err := ParseRole("headset"); err != nil || r != RoleHeadset {
		t.Errorf("ParseRole got=(%s, %v)", r, err)
	}
	if tr, err := ParseTransport("bis"); err != nil || tr != TransportBIS {
		t.Errorf("ParseTransport got=(%s, %v)", tr, err)
	}
}
