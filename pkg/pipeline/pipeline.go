// Package pipeline produces one encoded audio frame per frame period.
//
// A timer goroutine submits a job every FrameDuration. Submission never
// blocks: a job that is still pending is not queued a second time. A single
// worker goroutine runs each job: it renders a block from the Source,
// encodes it and hands the bytes to the Sender. The Ticker is advanced
// only after the block is complete, so tick subscribers never race the
// block in flight.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/lesynth/pkg/audio/pcm"
	"github.com/haivivi/lesynth/pkg/codec"
	"github.com/haivivi/lesynth/pkg/logging"
)

// Supported frame durations.
const (
	FrameDuration7500us = 7500 * time.Microsecond
	FrameDuration10ms   = 10 * time.Millisecond
)

// Source renders one block of samples. The block is zeroed before each
// call. Process reports whether it wrote any sound.
type Source interface {
	Process(block []int16) bool
}

// Sender receives each encoded frame.
type Sender interface {
	SendEncoded(data []byte)
}

// Ticker is advanced once per processed block.
type Ticker interface {
	Increment() bool
}

// FatalError is a codec failure. Init and Uninit failures are returned by
// Start and Stop; encode failures are reported to Config.OnFatal while the
// pipeline keeps its cadence.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Config configures a Pipeline.
type Config struct {
	SampleRate int
	// FrameDuration is FrameDuration7500us or FrameDuration10ms.
	FrameDuration time.Duration
	// Channels is the channel count of the blocks the Source renders, 1
	// or 2. Mono blocks are duplicated to both channels before encoding.
	Channels int
	// Codec selects the codec and its encoder and decoder settings.
	// SampleRate and FrameDuration are copied from this Config.
	Codec codec.Config
	// OnFatal receives encode failures. Defaults to logging them.
	OnFatal func(error)
	Logger  *slog.Logger
}

// BlockSize returns the number of frames in one block.
func (c Config) BlockSize() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("pipeline: invalid sample rate %d", c.SampleRate)
	}
	if c.FrameDuration != FrameDuration7500us && c.FrameDuration != FrameDuration10ms {
		return fmt.Errorf("pipeline: unsupported frame duration %v", c.FrameDuration)
	}
	if int64(c.SampleRate)*int64(c.FrameDuration)%int64(time.Second) != 0 {
		return fmt.Errorf("pipeline: %d Hz has no whole block in %v", c.SampleRate, c.FrameDuration)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("pipeline: unsupported channel count %d", c.Channels)
	}
	return nil
}

// Stats counts pipeline activity since construction.
type Stats struct {
	Frames       uint64 `json:"frames"`
	Silent       uint64 `json:"silent"`
	Overruns     uint64 `json:"overruns"`
	EncodeErrors uint64 `json:"encode_errors"`
}

// Pipeline drives the frame cadence.
type Pipeline struct {
	cfg    Config
	source Source
	codec  codec.Codec
	sender Sender
	ticker Ticker
	logger logging.Logger

	block  []int16
	stereo []int16

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	frames       atomic.Uint64
	silent       atomic.Uint64
	overruns     atomic.Uint64
	encodeErrors atomic.Uint64
}

// New returns a stopped pipeline. A zero Channels means mono.
func New(cfg Config, source Source, c codec.Codec, sender Sender, ticker Ticker) (*Pipeline, error) {
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if source == nil || c == nil || sender == nil || ticker == nil {
		panic("pipeline: nil dependency")
	}
	cfg.Codec.SampleRate = cfg.SampleRate
	cfg.Codec.FrameDuration = cfg.FrameDuration

	p := &Pipeline{
		cfg:    cfg,
		source: source,
		codec:  c,
		sender: sender,
		ticker: ticker,
		logger: logging.New("pipeline", cfg.Logger),
	}
	n := cfg.BlockSize()
	p.block = make([]int16, n*cfg.Channels)
	if cfg.Channels == 1 {
		p.stereo = make([]int16, 2*n)
	}
	if p.cfg.OnFatal == nil {
		p.cfg.OnFatal = func(err error) { p.logger.ErrorPrintf("%v", err) }
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Running reports whether the pipeline is started.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start initializes the codec and starts the frame cadence. The first job
// runs immediately. A codec failure is returned as a *FatalError.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.logger.WarnPrintf("already started")
		return nil
	}
	if err := p.codec.Init(p.cfg.Codec); err != nil {
		return &FatalError{Op: "codec init", Err: err}
	}

	p.stop = make(chan struct{})
	jobs := make(chan struct{}, 1)
	jobs <- struct{}{}

	p.wg.Add(2)
	go p.runTimer(p.stop, jobs)
	go p.runWorker(p.stop, jobs)
	p.running = true
	p.logger.InfoPrintf("started: %d Hz, %v frames, %s", p.cfg.SampleRate, p.cfg.FrameDuration, p.cfg.Codec.Kind)
	return nil
}

// Stop halts the timer, waits for the job in flight and uninitializes the
// codec. Stopping a pipeline that is not running logs a warning.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		p.logger.WarnPrintf("not started")
		return nil
	}
	p.running = false
	close(p.stop)
	p.wg.Wait()

	if err := p.codec.Uninit(p.cfg.Codec); err != nil {
		return &FatalError{Op: "codec uninit", Err: err}
	}
	p.logger.InfoPrintf("stopped after %d frames", p.frames.Load())
	return nil
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:       p.frames.Load(),
		Silent:       p.silent.Load(),
		Overruns:     p.overruns.Load(),
		EncodeErrors: p.encodeErrors.Load(),
	}
}

func (p *Pipeline) runTimer(stop <-chan struct{}, jobs chan<- struct{}) {
	defer p.wg.Done()
	t := time.NewTicker(p.cfg.FrameDuration)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			select {
			case jobs <- struct{}{}:
			default:
				p.overruns.Add(1)
			}
		}
	}
}

func (p *Pipeline) runWorker(stop <-chan struct{}, jobs <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-jobs:
			p.process()
		}
	}
}

// process renders, encodes and sends one frame.
func (p *Pipeline) process() {
	clear(p.block)
	if !p.source.Process(p.block) {
		p.silent.Add(1)
	}

	in := p.block
	if p.stereo != nil {
		pcm.MonoToStereo(p.stereo, p.block)
		in = p.stereo
	}

	data, err := p.codec.Encode(in)
	if err != nil {
		p.encodeErrors.Add(1)
		p.cfg.OnFatal(&FatalError{Op: "encode", Err: err})
	} else {
		p.frames.Add(1)
		p.sender.SendEncoded(data)
	}

	p.ticker.Increment()
}
