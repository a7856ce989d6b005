package resampler

import (
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/lesynth/pkg/audio/pcm"
)

// readChunk is the number of source frames read per refill.
const readChunk = 1024

// Resampler reads little-endian PCM in srcFmt from an io.Reader and yields
// samples in dstFmt. Read and ReadSamples are safe for concurrent use but
// share one stream position.
type Resampler struct {
	src    io.Reader
	srcFmt pcm.Format
	dstFmt pcm.Format

	mu       sync.Mutex
	rs       resampling.Resampler
	raw      []byte
	partial  int
	srcBuf   []int16
	chBuf    []int16
	pending  []int16
	srcErr   error
	closeErr error
}

// New returns a resampler reading from src. Both formats must be valid; only
// mono and stereo are supported.
func New(src io.Reader, srcFmt, dstFmt pcm.Format) (*Resampler, error) {
	if err := srcFmt.Validate(); err != nil {
		return nil, fmt.Errorf("resampler: source: %w", err)
	}
	if err := dstFmt.Validate(); err != nil {
		return nil, fmt.Errorf("resampler: destination: %w", err)
	}
	r := &Resampler{
		src:    src,
		srcFmt: srcFmt,
		dstFmt: dstFmt,
		raw:    make([]byte, readChunk*srcFmt.FrameBytes()),
	}
	if srcFmt.SampleRate != dstFmt.SampleRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   dstFmt.Channels,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create: %w", err)
		}
		r.rs = rs
	}
	return r, nil
}

// ReadSamples fills dst with interleaved samples in the destination format
// and returns the number of samples written, which is always a whole
// number of frames. It returns io.EOF once the source is exhausted and
// every converted sample was delivered.
func (r *Resampler) ReadSamples(dst []int16) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return 0, r.closeErr
	}
	dst = dst[:len(dst)/r.dstFmt.Channels*r.dstFmt.Channels]
	if len(dst) == 0 {
		return 0, io.ErrShortBuffer
	}

	n := 0
	for n < len(dst) {
		if len(r.pending) == 0 {
			if r.srcErr != nil {
				break
			}
			progress, err := r.refill()
			if err != nil {
				return n, err
			}
			if !progress && r.srcErr == nil {
				// The source returned no data; let the caller retry.
				break
			}
			continue
		}
		c := copy(dst[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	if n == 0 && r.srcErr != nil {
		return 0, r.srcErr
	}
	return n, nil
}

// Read implements io.Reader with little-endian output.
func (r *Resampler) Read(p []byte) (int, error) {
	samples := make([]int16, len(p)/2)
	n, err := r.ReadSamples(samples)
	return pcm.Encode(p, samples[:n]), err
}

// refill reads one chunk from the source and converts it into pending. A
// source error is kept and reported after pending is drained. It reports
// whether any bytes were read.
func (r *Resampler) refill() (bool, error) {
	nr, err := r.src.Read(r.raw[r.partial:])
	total := r.partial + nr
	fb := r.srcFmt.FrameBytes()
	aligned := total - total%fb

	frames := aligned / fb
	if cap(r.srcBuf) < frames*r.srcFmt.Channels {
		r.srcBuf = make([]int16, frames*r.srcFmt.Channels)
	}
	src := r.srcBuf[:pcm.Decode(r.srcBuf[:frames*r.srcFmt.Channels], r.raw[:aligned])]
	r.partial = copy(r.raw, r.raw[aligned:total])

	if err != nil {
		r.srcErr = err
	}
	if len(src) == 0 {
		return nr > 0, nil
	}

	converted := r.convertChannels(src, frames)
	if r.rs == nil {
		r.pending = append(r.pending[:0], converted...)
		return true, nil
	}

	in := make([]float64, len(converted))
	for i, s := range converted {
		in[i] = float64(s) / 32768.0
	}
	out, perr := r.rs.Process(in)
	if perr != nil {
		return true, fmt.Errorf("resampler: process: %w", perr)
	}
	out = out[:len(out)/r.dstFmt.Channels*r.dstFmt.Channels]
	r.pending = r.pending[:0]
	for _, s := range out {
		r.pending = append(r.pending, toInt16(s))
	}
	return true, nil
}

func (r *Resampler) convertChannels(src []int16, frames int) []int16 {
	switch {
	case r.srcFmt.Channels == r.dstFmt.Channels:
		return src
	case r.srcFmt.Channels == 2:
		if cap(r.chBuf) < frames {
			r.chBuf = make([]int16, frames)
		}
		return r.chBuf[:pcm.StereoToMono(r.chBuf[:frames], src)]
	default:
		if cap(r.chBuf) < 2*frames {
			r.chBuf = make([]int16, 2*frames)
		}
		return r.chBuf[:2*pcm.MonoToStereo(r.chBuf[:2*frames], src)]
	}
}

func toInt16(s float64) int16 {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	}
	return int16(s * 32767)
}

// Close releases the resampler. Later reads return io.ErrClosedPipe.
func (r *Resampler) Close() error {
	return r.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError releases the resampler; later reads return err.
func (r *Resampler) CloseWithError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	r.rs = nil
	r.pending = nil
	return nil
}
