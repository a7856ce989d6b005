// Package device wires the synthesizer, the frame pipeline, the stream
// controller and the ISO channels into one running device.
//
// A Device owns every component; there is no package state. Run starts the
// event loop, the key loop, the receive drain and the channel connections,
// and returns when its context ends or a component fails.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/lesynth/pkg/audio/pcm"
	"github.com/haivivi/lesynth/pkg/codec"
	"github.com/haivivi/lesynth/pkg/input"
	"github.com/haivivi/lesynth/pkg/iso"
	"github.com/haivivi/lesynth/pkg/logging"
	"github.com/haivivi/lesynth/pkg/pipeline"
	"github.com/haivivi/lesynth/pkg/preset"
	"github.com/haivivi/lesynth/pkg/stream"
	"github.com/haivivi/lesynth/pkg/synth"
	"github.com/haivivi/lesynth/pkg/tick"
)

// Option configures a Device.
type Option interface {
	apply(*options)
}

type options struct {
	logger  *slog.Logger
	links   []iso.Link
	store   *preset.Store
	mic     io.Reader
	micFmt  pcm.Format
	speaker io.Writer
}

type withLogger struct{ l *slog.Logger }

func (o withLogger) apply(opts *options) { opts.logger = o.l }

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return withLogger{l}
}

type withLinks []iso.Link

func (o withLinks) apply(opts *options) { opts.links = o }

// WithLinks replaces the links NewLinks would build from the config.
func WithLinks(links ...iso.Link) Option {
	return withLinks(links)
}

type withStore struct{ s *preset.Store }

func (o withStore) apply(opts *options) { opts.store = o.s }

// WithPresetStore loads presets from s instead of the builtins.
func WithPresetStore(s *preset.Store) Option {
	return withStore{s}
}

type withMic struct {
	r   io.Reader
	fmt pcm.Format
}

func (o withMic) apply(opts *options) { opts.mic, opts.micFmt = o.r, o.fmt }

// WithMic makes the pipeline send PCM read from r instead of the
// synthesizer output.
func WithMic(r io.Reader, f pcm.Format) Option {
	return withMic{r, f}
}

type withSpeaker struct{ w io.Writer }

func (o withSpeaker) apply(opts *options) { opts.speaker = o.w }

// WithSpeaker writes decoded received audio to w as 16-bit little-endian
// mono PCM.
func WithSpeaker(w io.Writer) Option {
	return withSpeaker{w}
}

// clock serializes the tick provider between the frame worker and tempo
// changes.
type clock struct {
	mu sync.Mutex
	p  *tick.Provider
}

func (c *clock) Increment() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p.Increment()
}

func (c *clock) SetBPM(bpm int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p.SetBPM(bpm)
}

func (c *clock) BPM() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p.BPM()
}

type senderFunc func([]byte)

func (f senderFunc) SendEncoded(data []byte) { f(data) }

// PlaybackStats counts decoded received frames.
type PlaybackStats struct {
	Frames uint64 `json:"frames"`
	Bad    uint64 `json:"bad"`
	Errors uint64 `json:"errors"`
	// Peak is the largest absolute sample of the last decoded frame.
	Peak int `json:"peak"`
}

// Status is a snapshot of the device.
type Status struct {
	Role         string              `json:"role"`
	Transport    string              `json:"transport"`
	State        stream.State        `json:"state"`
	Session      string              `json:"session,omitempty"`
	Preset       string              `json:"preset"`
	BPM          int                 `json:"bpm"`
	Chord        []int               `json:"chord"`
	ActiveVoices int                 `json:"active_voices"`
	Channels     []iso.ChannelStatus `json:"channels"`
	Pipeline     pipeline.Stats      `json:"pipeline"`
	Stream       stream.Stats        `json:"stream"`
	RX           iso.RXStats         `json:"rx"`
	Playback     PlaybackStats       `json:"playback"`
	Uptime       time.Duration       `json:"uptime"`
}

// Device is the application context.
type Device struct {
	cfg    Config
	opts   options
	logger logging.Logger

	clock *clock
	synth *synth.Synthesizer
	keys  *input.Queue
	codec *codec.Software
	pipe  *pipeline.Pipeline
	ctrl  *stream.Controller
	iso   *iso.Manager
	mic   *pipeline.MicSource

	fatalMu sync.Mutex
	fatal   func(error)

	started atomic.Int64

	played   atomic.Uint64
	badPlays atomic.Uint64
	playErrs atomic.Uint64
	peak     atomic.Int32
	pcmBuf   []byte
}

// New builds a device from cfg. Links come from WithLinks or, without it,
// from NewLinks.
func New(cfg Config, opts ...Option) (*Device, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := &Device{cfg: cfg}
	for _, o := range opts {
		o.apply(&d.opts)
	}
	l := d.opts.logger
	d.logger = logging.New("device", l)

	links := d.opts.links
	if links == nil {
		var err error
		if links, err = NewLinks(cfg, l); err != nil {
			return nil, err
		}
	}
	if len(links) != cfg.Channels() {
		return nil, fmt.Errorf("device: %s %s needs %d links, got %d", cfg.Role, cfg.Transport, cfg.Channels(), len(links))
	}

	s, err := synth.New(synth.Config{SampleRate: cfg.SampleRate, Voices: cfg.Voices, Logger: l})
	if err != nil {
		return nil, err
	}
	d.synth = s

	pcfg := cfg.pipelineConfig(d.onFatal, l)
	d.clock = &clock{p: tick.New(cfg.SampleRate, pcfg.BlockSize())}
	d.clock.p.Subscribe(&tick.Subscriber{Notify: s.Tick})
	d.keys = input.NewQueue(input.WithLogger(l))
	d.codec = codec.NewSoftware(l)

	var source pipeline.Source = s
	if d.opts.mic != nil {
		if d.mic, err = pipeline.NewMicSource(d.opts.mic, d.opts.micFmt, pcfg, l); err != nil {
			return nil, err
		}
		source = d.mic
	}
	d.pipe, err = pipeline.New(pcfg, source, d.codec, senderFunc(d.sendEncoded), d.clock)
	if err != nil {
		return nil, err
	}

	d.iso, err = iso.NewManager(iso.Config{
		Transport:       cfg.Transport,
		ConnInterval:    cfg.ConnInterval,
		ConnectAttempts: cfg.ConnectAttempts,
		ConnectBackoff:  cfg.ConnectBackoff,
		TestPattern:     cfg.TestPattern,
		StatsInterval:   cfg.StatsInterval,
		Post:            d.postEvent,
		Receive:         d.receive,
		Logger:          l,
	}, links...)
	if err != nil {
		return nil, err
	}
	d.ctrl = stream.New(stream.Config{Role: cfg.Role, Transport: cfg.Transport, Logger: l}, d.pipe, d.iso)
	return d, nil
}

func (d *Device) sendEncoded(data []byte) { d.ctrl.SendEncoded(data) }

func (d *Device) postEvent(ev stream.Event) error { return d.ctrl.PostEvent(ev) }

func (d *Device) receive(data []byte, badFrame bool, sduRef uint32) {
	d.ctrl.ReceiveISO(data, badFrame, sduRef)
}

func (d *Device) onFatal(err error) {
	d.fatalMu.Lock()
	fn := d.fatal
	d.fatalMu.Unlock()
	if fn == nil {
		d.logger.ErrorPrintf("%v", err)
		return
	}
	fn(err)
}

// Keys returns the button event queue. Input drivers post to it.
func (d *Device) Keys() *input.Queue {
	return d.keys
}

// PostEvent injects a stream event, e.g. a pause request.
func (d *Device) PostEvent(ev stream.Event) error {
	return d.ctrl.PostEvent(ev)
}

// ApplyPreset applies p to the synthesizer and the tempo.
func (d *Device) ApplyPreset(p preset.Preset) error {
	if err := d.synth.ApplyPreset(p); err != nil {
		return err
	}
	if err := d.clock.SetBPM(p.BPM); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	return nil
}

// LoadPreset looks name up in the preset store, or among the builtins when
// there is no store, and applies it.
func (d *Device) LoadPreset(ctx context.Context, name string) error {
	var (
		p   preset.Preset
		err error
	)
	if d.opts.store != nil {
		p, err = d.opts.store.Load(ctx, name)
	} else {
		var ok bool
		if p, ok = preset.Builtins()[name]; !ok {
			err = fmt.Errorf("device: unknown preset %q", name)
		}
	}
	if err != nil {
		return err
	}
	return d.ApplyPreset(p)
}

// Run connects the channels and runs every loop until ctx ends or a
// component fails. It returns the first failure, or nil after ctx ends.
func (d *Device) Run(ctx context.Context) error {
	if d.cfg.Preset != "" {
		if err := d.LoadPreset(ctx, d.cfg.Preset); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	fail := func(err error) {
		select {
		case errc <- err:
		default:
		}
		cancel()
	}
	d.fatalMu.Lock()
	d.fatal = fail
	d.fatalMu.Unlock()
	defer func() {
		d.fatalMu.Lock()
		d.fatal = nil
		d.fatalMu.Unlock()
	}()

	d.started.Store(time.Now().UnixNano())
	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				d.logger.ErrorPrintf("%s: %v", name, err)
				fail(err)
			}
		}()
	}

	spawn("stream", d.ctrl.Run)
	spawn("keys", d.runKeys)
	spawn("playback", d.runPlayback)
	spawn("stats", func(ctx context.Context) error {
		d.iso.RunStats(ctx)
		return nil
	})
	if d.mic != nil {
		spawn("mic", d.mic.Run)
	}
	spawn("connect", d.connect)

	<-ctx.Done()
	wg.Wait()
	d.shutdown()

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

// connect brings the channels up and keeps them up. It fails only when no
// channel connects at startup.
func (d *Device) connect(ctx context.Context) error {
	err := d.iso.ConnectAll(ctx)
	switch {
	case ctx.Err() != nil:
		return nil
	case err == nil:
	case d.iso.Connected() == 0:
		return err
	default:
		d.logger.WarnPrintf("running with %d of %d channels: %v", d.iso.Connected(), d.cfg.Channels(), err)
	}
	d.iso.Reconnect(ctx)
	return nil
}

func (d *Device) runKeys(ctx context.Context) error {
	for {
		ev, err := d.keys.Get(ctx)
		if err != nil {
			return nil
		}
		if err := d.synth.KeyEvent(ev); err != nil {
			d.logger.DebugPrintf("key %s: %v", ev, err)
		}
	}
}

// runPlayback drains received frames once per frame period. The decoder
// only exists while streaming, so frames left over from a pause or a
// disconnect are dropped.
func (d *Device) runPlayback(ctx context.Context) error {
	t := time.NewTicker(d.cfg.FrameDuration)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if d.ctrl.State() != stream.StateStreaming {
				if n := d.ctrl.Drain(func(*stream.Frame) {}); n > 0 {
					d.logger.DebugPrintf("dropped %d received frames in state %s", n, d.ctrl.State())
				}
				continue
			}
			d.ctrl.Drain(d.play)
		}
	}
}

func (d *Device) play(f *stream.Frame) {
	if f.BadFrame {
		d.badPlays.Add(1)
	}
	samples, err := d.codec.Decode(f.Bytes(), f.BadFrame)
	if err != nil {
		if errors.Is(err, codec.ErrNotInitialized) {
			// The pipeline stopped or has not started yet around a state
			// change.
			return
		}
		d.playErrs.Add(1)
		d.logger.DebugPrintf("decode: %v", err)
		return
	}
	d.played.Add(1)

	var peak int32
	for _, v := range samples {
		a := int32(v)
		if a < 0 {
			a = -a
		}
		peak = max(peak, a)
	}
	d.peak.Store(peak)

	if d.opts.speaker == nil {
		return
	}
	d.pcmBuf = pcm.AppendEncode(d.pcmBuf[:0], samples)
	if _, err := d.opts.speaker.Write(d.pcmBuf); err != nil {
		d.playErrs.Add(1)
		d.logger.WarnPrintf("speaker: %v", err)
	}
}

func (d *Device) shutdown() {
	if d.pipe.Running() {
		if err := d.pipe.Stop(); err != nil {
			d.logger.ErrorPrintf("stop pipeline: %v", err)
		}
	}
	if err := d.iso.Close(); err != nil {
		d.logger.WarnPrintf("close links: %v", err)
	}
	if d.mic != nil {
		d.mic.Close()
	}
	d.ctrl.Close()
	d.keys.Close()
	d.logger.InfoPrintf("stopped")
}

// Status returns a snapshot for display.
func (d *Device) Status() Status {
	st := Status{
		Role:         d.cfg.Role.String(),
		Transport:    d.cfg.Transport.String(),
		State:        d.ctrl.State(),
		Session:      d.ctrl.SessionID(),
		Preset:       d.synth.Preset().Name,
		BPM:          d.clock.BPM(),
		Chord:        d.synth.Chord(),
		ActiveVoices: d.synth.ActiveVoices(),
		Channels:     d.iso.Status(),
		Pipeline:     d.pipe.Stats(),
		Stream:       d.ctrl.Stats(),
		RX:           d.iso.RXStats(),
		Playback: PlaybackStats{
			Frames: d.played.Load(),
			Bad:    d.badPlays.Load(),
			Errors: d.playErrs.Load(),
			Peak:   int(d.peak.Load()),
		},
	}
	if ns := d.started.Load(); ns != 0 {
		st.Uptime = time.Since(time.Unix(0, ns))
	}
	return st
}
