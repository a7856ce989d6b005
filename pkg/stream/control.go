// Package stream reconciles link events with the frame pipeline.
//
// Link events are posted to a small bounded queue from any context and
// handled one at a time by a single loop, which is the only writer of the
// stream state. The send path and the receive path read the state to decide
// whether frames flow: outside StateStreaming encoded frames are dropped
// and received frames are discarded.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/lesynth/pkg/buffer"
	"github.com/haivivi/lesynth/pkg/logging"
)

// EventQueueCapacity is the number of events that may wait for the handler.
const EventQueueCapacity = 3

// MaxFrameSize is the largest received frame payload.
const MaxFrameSize = 1024

// DefaultRXSlots is the receive FIFO capacity.
const DefaultRXSlots = 4

var (
	// ErrQueueFull is returned by PostEvent when the event was dropped.
	ErrQueueFull = errors.New("stream: event queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("stream: closed")
)

// Pipeline is the frame pipeline started and stopped by the controller.
type Pipeline interface {
	Start() error
	Stop() error
}

// Sender transmits encoded frames.
type Sender interface {
	// SendStereo splits data into a left and a right half.
	SendStereo(data []byte) error
	// SendMono sends data on the single broadcast or return channel.
	SendMono(data []byte) error
}

// Frame is one received ISO payload.
type Frame struct {
	Data     [MaxFrameSize]byte
	Len      int
	BadFrame bool
	SDURef   uint32
	Received time.Time
}

// Bytes returns the payload.
func (f *Frame) Bytes() []byte {
	return f.Data[:f.Len]
}

// Config configures a Controller.
type Config struct {
	Role      Role
	Transport Transport
	// RXSlots is the receive FIFO capacity. Defaults to DefaultRXSlots.
	RXSlots int
	Logger  *slog.Logger
}

// Stats counts frames on both paths.
type Stats struct {
	Sent        uint64 `json:"sent"`
	SendErrors  uint64 `json:"send_errors"`
	Received    uint64 `json:"received"`
	Discarded   uint64 `json:"discarded"`
	Overruns    uint64 `json:"overruns"`
	Oversized   uint64 `json:"oversized"`
	DroppedEvts uint64 `json:"dropped_events"`
}

// Controller is the stream state machine.
type Controller struct {
	cfg      Config
	pipeline Pipeline
	sender   Sender
	logger   logging.Logger

	events *buffer.Queue[Event]
	rx     *buffer.FIFO[Frame]
	state  atomic.Int32

	mu      sync.Mutex
	session string
	sendErr error

	sent        atomic.Uint64
	sendErrors  atomic.Uint64
	received    atomic.Uint64
	discarded   atomic.Uint64
	overruns    atomic.Uint64
	oversized   atomic.Uint64
	droppedEvts atomic.Uint64
}

// New returns a controller in StateConnecting.
func New(cfg Config, p Pipeline, s Sender) *Controller {
	if p == nil || s == nil {
		panic("stream: nil dependency")
	}
	if cfg.RXSlots <= 0 {
		cfg.RXSlots = DefaultRXSlots
	}
	c := &Controller{
		cfg:      cfg,
		pipeline: p,
		sender:   s,
		logger:   logging.New("stream", cfg.Logger),
		events:   buffer.NewQueue[Event](EventQueueCapacity),
		rx:       buffer.NewFIFO[Frame](cfg.RXSlots),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.DebugPrintf("state %s -> %s", old, s)
	}
}

// SessionID returns the identifier of the current or last streaming
// session, or "" before the first one.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// PostEvent queues ev without blocking. A full queue drops the event with a
// warning and returns ErrQueueFull.
func (c *Controller) PostEvent(ev Event) error {
	err := c.events.TryPut(ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, buffer.ErrClosed):
		return ErrClosed
	default:
		c.droppedEvts.Add(1)
		c.logger.WarnPrintf("tried to insert %s in a full queue", ev)
		return ErrQueueFull
	}
}

// HandleNext waits for one event and applies it. It returns an error when
// ctx ends, after Close, or when starting or stopping the pipeline fails.
func (c *Controller) HandleNext(ctx context.Context) error {
	ev, err := c.events.Get(ctx)
	if err != nil {
		if errors.Is(err, buffer.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return c.handle(ev)
}

// Run handles events until ctx ends or a pipeline failure occurs. Context
// cancellation and Close return nil.
func (c *Controller) Run(ctx context.Context) error {
	for {
		err := c.HandleNext(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
			return nil
		default:
			return err
		}
	}
}

// Close stops accepting events and wakes Run.
func (c *Controller) Close() {
	c.events.Close()
}

func (c *Controller) handle(ev Event) error {
	state := c.State()
	c.logger.DebugPrintf("event %s in state %s", ev, state)

	switch ev {
	case EventConnected:
		c.logger.InfoPrintf("link connected")
		switch state {
		case StateDisconnected, StateConnecting:
			c.setState(StateConnected)
		default:
			c.logger.WarnPrintf("connected in state %s", state)
		}

	case EventDisconnected:
		c.logger.InfoPrintf("link disconnected")
		switch {
		case state == StateConnected || state == StateLinkReady || state == StatePaused:
			c.setState(StateDisconnected)
		case state == StateStreaming && c.stopsOnDisconnect():
			c.setState(StateDisconnected)
			if err := c.pipeline.Stop(); err != nil {
				return fmt.Errorf("stream: stop pipeline: %w", err)
			}
		default:
			c.logger.WarnPrintf("disconnected in state %s", state)
		}

	case EventLinkReady:
		c.logger.InfoPrintf("link ready")
		switch state {
		case StateConnected, StatePaused:
			// The pipeline sends its first frame from Start, so the state
			// has to be Streaming already.
			c.setState(StateStreaming)
			if err := c.pipeline.Start(); err != nil {
				c.setState(state)
				return fmt.Errorf("stream: start pipeline: %w", err)
			}
			c.mu.Lock()
			c.session = uuid.NewString()
			c.sendErr = nil
			session := c.session
			c.mu.Unlock()
			c.logger.InfoPrintf("streaming, session %s", session)
		default:
			c.logger.WarnPrintf("link ready in state %s", state)
		}

	case EventStreaming:
		c.logger.InfoPrintf("link streaming")

	case EventPause:
		if state != StateStreaming {
			c.logger.WarnPrintf("pause in state %s", state)
			break
		}
		c.setState(StatePaused)
		if err := c.pipeline.Stop(); err != nil {
			return fmt.Errorf("stream: stop pipeline: %w", err)
		}

	default:
		c.logger.WarnPrintf("unexpected event %s", ev)
	}
	return nil
}

// stopsOnDisconnect reports whether losing the link while streaming stops
// the pipeline. Only a gateway on connected channels owns the pipeline's
// lifetime; a broadcast source keeps sending.
func (c *Controller) stopsOnDisconnect() bool {
	return c.cfg.Role == RoleGateway && c.cfg.Transport == TransportCIS
}

// SendEncoded forwards an encoded frame to the sender. A broadcast source
// and a headset's return channel send mono; a gateway on connected channels
// sends stereo. Outside StateStreaming the frame is silently dropped. A send error is logged only
// when it differs from the previous one.
func (c *Controller) SendEncoded(data []byte) {
	if c.State() != StateStreaming {
		return
	}
	var err error
	if c.cfg.Transport == TransportBIS || c.cfg.Role == RoleHeadset {
		err = c.sender.SendMono(data)
	} else {
		err = c.sender.SendStereo(data)
	}
	if err == nil {
		c.sent.Add(1)
	} else {
		c.sendErrors.Add(1)
	}

	c.mu.Lock()
	changed := err != nil && (c.sendErr == nil || c.sendErr.Error() != err.Error())
	c.sendErr = err
	c.mu.Unlock()
	if changed {
		c.logger.WarnPrintf("problem sending data: %v", err)
	}
}

// ReceiveISO stores a received payload for Drain. It never blocks: when
// every slot is taken the oldest received frame is evicted.
func (c *Controller) ReceiveISO(data []byte, badFrame bool, sduRef uint32) {
	now := time.Now()
	if c.State() != StateStreaming {
		c.discarded.Add(1)
		return
	}
	if len(data) > MaxFrameSize {
		c.oversized.Add(1)
		c.logger.WarnPrintf("received %d bytes, larger than a frame", len(data))
		return
	}

	idx, f, evicted, err := c.rx.ClaimEvicting()
	if err != nil {
		c.overruns.Add(1)
		c.logger.WarnPrintf("no receive slot: %v", err)
		return
	}
	if evicted {
		c.overruns.Add(1)
		c.logger.WarnPrintf("ISO RX overrun")
	}
	f.Len = copy(f.Data[:], data)
	f.BadFrame = badFrame
	f.SDURef = sduRef
	f.Received = now
	if err := c.rx.Lock(idx); err != nil {
		c.logger.ErrorPrintf("lock receive slot %d: %v", idx, err)
		return
	}
	c.received.Add(1)
}

// Drain passes every received frame to fn, oldest first, and frees its
// slot. fn must not keep the frame. It returns the number of frames.
func (c *Controller) Drain(fn func(*Frame)) int {
	n := 0
	for {
		idx, f, err := c.rx.TakeOldest()
		if err != nil {
			return n
		}
		fn(f)
		if err := c.rx.Free(idx); err != nil {
			c.logger.ErrorPrintf("free receive slot %d: %v", idx, err)
			return n
		}
		n++
	}
}

// Stats returns the current counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Sent:        c.sent.Load(),
		SendErrors:  c.sendErrors.Load(),
		Received:    c.received.Load(),
		Discarded:   c.discarded.Load(),
		Overruns:    c.overruns.Load(),
		Oversized:   c.oversized.Load(),
		DroppedEvts: c.droppedEvts.Load(),
	}
}
