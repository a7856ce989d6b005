package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/haivivi/lesynth/pkg/audio/pcm"
	"github.com/haivivi/lesynth/pkg/audio/resampler"
	"github.com/haivivi/lesynth/pkg/buffer"
	"github.com/haivivi/lesynth/pkg/logging"
)

// MicQueueDepth is the number of blocks buffered between the microphone
// reader and the frame worker.
const MicQueueDepth = 4

// MicSource is a Source fed from a PCM stream instead of the synthesizer.
// Run reads and resamples the stream into whole blocks and waits while
// MicQueueDepth blocks are pending, so the stream is consumed at the frame
// rate. Process takes one block per frame without blocking and renders
// silence on underrun.
type MicSource struct {
	rs       *resampler.Resampler
	blockLen int
	blocks   *buffer.Queue[[]int16]
	logger   logging.Logger

	underruns atomic.Uint64
}

// NewMicSource returns a source reading little-endian PCM in format in from
// r. Blocks are converted to the pipeline's rate and channel count.
func NewMicSource(r io.Reader, in pcm.Format, cfg Config, l *slog.Logger) (*MicSource, error) {
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	out := pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	rs, err := resampler.New(r, in, out)
	if err != nil {
		return nil, fmt.Errorf("pipeline: mic: %w", err)
	}
	return &MicSource{
		rs:       rs,
		blockLen: cfg.BlockSize() * cfg.Channels,
		blocks:   buffer.NewQueue[[]int16](MicQueueDepth),
		logger:   logging.New("pipeline", l),
	}, nil
}

// Run reads blocks until the stream ends or ctx is done. Blocks read
// before the pipeline starts wait in the queue. A read already in progress
// is not interrupted; close the underlying reader to unblock it. A clean
// end of stream or the end of ctx returns nil.
func (m *MicSource) Run(ctx context.Context) error {
	defer m.blocks.Close()
	for ctx.Err() == nil {
		block := make([]int16, m.blockLen)
		n, err := m.fill(block)
		if n > 0 {
			if perr := m.blocks.Put(ctx, block); perr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("pipeline: mic: %w", perr)
			}
		}
		if errors.Is(err, io.EOF) {
			m.logger.DebugPrintf("mic: end of stream")
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: mic: %w", err)
		}
	}
	return nil
}

func (m *MicSource) fill(block []int16) (int, error) {
	n := 0
	for n < len(block) {
		c, err := m.rs.ReadSamples(block[n:])
		n += c
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Process copies the oldest buffered block into block.
func (m *MicSource) Process(block []int16) bool {
	b, ok := m.blocks.TryGet()
	if !ok {
		m.underruns.Add(1)
		return false
	}
	copy(block, b)
	return true
}

// Underruns returns how many frames found no block ready.
func (m *MicSource) Underruns() uint64 {
	return m.underruns.Load()
}

// Pending returns the number of blocks read ahead of the frame worker.
func (m *MicSource) Pending() int {
	return m.blocks.Len()
}

// Close releases the resampler.
func (m *MicSource) Close() error {
	return m.rs.Close()
}
