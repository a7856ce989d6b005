package codec

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/lesynth/pkg/audio/pcm"
	"github.com/haivivi/lesynth/pkg/logging"
)

// Software is the in-process codec. It is safe for concurrent use; encode
// and decode are serialized.
type Software struct {
	logger logging.Logger

	mu      sync.Mutex
	cfg     Config
	enc     bool
	dec     bool
	left    []int16
	right   []int16
	adpcmLR [2]adpcmState
}

// NewSoftware returns an uninitialized software codec. A nil logger uses
// slog.Default().
func NewSoftware(l *slog.Logger) *Software {
	return &Software{logger: logging.New("codec", l)}
}

// Init enables the sides marked Enabled in cfg. All enabled sides share
// one kind.
func (s *Software) Init(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cfg.Kind {
	case KindPCM, KindADPCM:
	default:
		s.logger.ErrorPrintf("%s is not available", cfg.Kind)
		return fmt.Errorf("%w: %s", ErrUnsupported, cfg.Kind)
	}
	if cfg.FrameSamples() <= 0 {
		return fmt.Errorf("%w: %d Hz for %v", ErrInvalidSize, cfg.SampleRate, cfg.FrameDuration)
	}
	if (s.enc || s.dec) && cfg.Kind != s.cfg.Kind {
		return fmt.Errorf("%w: %s is active", ErrAlready, s.cfg.Kind)
	}
	if cfg.Encoder.Enabled && s.enc {
		s.logger.WarnPrintf("encoder is already initialized")
		return fmt.Errorf("%w: encoder", ErrAlready)
	}
	if cfg.Decoder.Enabled && s.dec {
		s.logger.WarnPrintf("decoder is already initialized")
		return fmt.Errorf("%w: decoder", ErrAlready)
	}
	if cfg.Encoder.Enabled && cfg.Encoder.Channel != Left && cfg.Encoder.Channel != Right {
		return fmt.Errorf("%w: channel %d", ErrUnsupported, cfg.Encoder.Channel)
	}
	if cfg.Decoder.Enabled && cfg.Decoder.Mode != Mono {
		return fmt.Errorf("%w: %s decoding", ErrUnsupported, cfg.Decoder.Mode)
	}

	if cfg.Encoder.Enabled {
		s.enc = true
		s.cfg.Encoder = cfg.Encoder
		s.adpcmLR = [2]adpcmState{}
		n := cfg.FrameSamples()
		s.left = make([]int16, n)
		s.right = make([]int16, n)
	}
	if cfg.Decoder.Enabled {
		s.dec = true
		s.cfg.Decoder = cfg.Decoder
	}
	s.cfg.Kind = cfg.Kind
	s.cfg.SampleRate = cfg.SampleRate
	s.cfg.FrameDuration = cfg.FrameDuration
	return nil
}

// Encode encodes one interleaved stereo frame. The frame may be shorter than
// the configured frame but must hold whole stereo sample pairs.
func (s *Software) Encode(samples []int16) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enc {
		s.logger.ErrorPrintf("encoder has not been initialized")
		return nil, ErrNotInitialized
	}
	if len(samples)%2 != 0 || len(samples)/2 > len(s.left) {
		return nil, fmt.Errorf("%w: %d samples", ErrInvalidSize, len(samples))
	}
	n := pcm.SplitStereo(samples, s.left, s.right)
	channels := [2][]int16{s.left[:n], s.right[:n]}

	switch s.cfg.Encoder.Mode {
	case Mono:
		ch := s.cfg.Encoder.Channel
		return s.encodeChannel(nil, int(ch), channels[ch]), nil
	case Stereo:
		out := s.encodeChannel(nil, 0, channels[0])
		return s.encodeChannel(out, 1, channels[1]), nil
	default:
		return nil, fmt.Errorf("%w: channel mode %d", ErrUnsupported, s.cfg.Encoder.Mode)
	}
}

func (s *Software) encodeChannel(dst []byte, ch int, samples []int16) []byte {
	if s.cfg.Kind == KindADPCM {
		return s.adpcmLR[ch].encode(dst, samples)
	}
	return pcm.AppendEncode(dst, samples)
}

// Decode decodes one mono frame. A bad frame, or an empty one, decodes to
// a frame of silence.
func (s *Software) Decode(data []byte, badFrame bool) ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dec {
		s.logger.ErrorPrintf("decoder has not been initialized")
		return nil, ErrNotInitialized
	}
	n := s.cfg.FrameSamples()
	if badFrame || len(data) == 0 {
		return make([]int16, n), nil
	}
	switch s.cfg.Kind {
	case KindADPCM:
		return adpcmDecode(data, n)
	default:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSize, len(data))
		}
		out := make([]int16, min(len(data)/2, n))
		pcm.Decode(out, data)
		return out, nil
	}
}

// Uninit disables the sides marked Enabled in cfg.
func (s *Software) Uninit(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if (s.enc || s.dec) && cfg.Kind != s.cfg.Kind {
		return fmt.Errorf("%w: %s is not initialized", ErrUnsupported, cfg.Kind)
	}
	if cfg.Encoder.Enabled {
		if !s.enc {
			s.logger.WarnPrintf("encoder is not initialized")
			return fmt.Errorf("%w: encoder", ErrAlready)
		}
		s.enc = false
	}
	if cfg.Decoder.Enabled {
		if !s.dec {
			s.logger.WarnPrintf("decoder is not initialized")
			return fmt.Errorf("%w: decoder", ErrAlready)
		}
		s.dec = false
	}
	return nil
}

// EncodedSize returns the size of one encoded mono frame for cfg, or 0 for
// kinds Software does not implement.
func EncodedSize(cfg Config) int {
	n := cfg.FrameSamples()
	switch cfg.Kind {
	case KindPCM:
		return 2 * n
	case KindADPCM:
		return adpcmFrameSize(n)
	}
	return 0
}

var _ Codec = (*Software)(nil)
