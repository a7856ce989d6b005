// Package codec is the boundary between the PCM frame pipeline and the
// software audio codecs.
//
// A [Codec] is initialized once per stream with a [Config], encodes one
// interleaved stereo frame at a time and decodes mono frames received from
// the peer. [Software] implements linear PCM and IMA-ADPCM; the LC3 and SBC
// kinds are recognized but report [ErrUnsupported].
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotInitialized is returned when encoding or decoding before the
	// matching side was initialized (ENXIO).
	ErrNotInitialized = errors.New("codec: not initialized")

	// ErrUnsupported is returned for codec kinds or channel modes that are
	// not available (ENODEV).
	ErrUnsupported = errors.New("codec: unsupported")

	// ErrAlready is returned when initializing a side twice or releasing a
	// side that is not initialized (EALREADY).
	ErrAlready = errors.New("codec: already in that state")

	// ErrInvalidSize is returned when a buffer does not hold a whole number
	// of sample frames (EINVAL).
	ErrInvalidSize = errors.New("codec: invalid size")
)

// Kind selects the codec algorithm.
type Kind int

const (
	KindPCM Kind = iota
	KindADPCM
	KindLC3
	KindSBC
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindPCM:
		return "pcm"
	case KindADPCM:
		return "adpcm"
	case KindLC3:
		return "lc3"
	case KindSBC:
		return "sbc"
	default:
		return "unknown"
	}
}

// ParseKind parses the string form produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "pcm", "l16":
		return KindPCM, nil
	case "adpcm", "ima-adpcm":
		return KindADPCM, nil
	case "lc3":
		return KindLC3, nil
	case "sbc":
		return KindSBC, nil
	}
	return 0, fmt.Errorf("codec: unknown kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ChannelMode selects mono or stereo coding.
type ChannelMode int

const (
	Mono ChannelMode = iota
	Stereo
)

// String returns the string representation of the mode.
func (m ChannelMode) String() string {
	if m == Stereo {
		return "stereo"
	}
	return "mono"
}

// MarshalJSON implements json.Marshaler.
func (m ChannelMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Channel identifies one side of a stereo signal.
type Channel int

const (
	Left Channel = iota
	Right
)

// String returns the string representation of the channel.
func (c Channel) String() string {
	if c == Right {
		return "right"
	}
	return "left"
}

// EncoderConfig configures the encoding side.
type EncoderConfig struct {
	Enabled bool
	Mode    ChannelMode
	// Channel is the side encoded in Mono mode.
	Channel Channel
}

// DecoderConfig configures the decoding side.
type DecoderConfig struct {
	Enabled bool
	Mode    ChannelMode
}

// Config describes one codec session.
type Config struct {
	Kind          Kind
	SampleRate    int
	FrameDuration time.Duration
	Encoder       EncoderConfig
	Decoder       DecoderConfig
}

// FrameSamples returns the number of samples per channel in one frame.
func (c Config) FrameSamples() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

// Codec encodes and decodes audio frames.
type Codec interface {
	// Init enables the sides marked Enabled in cfg.
	Init(cfg Config) error

	// Encode encodes one frame of interleaved stereo samples. In Stereo
	// mode the result is the left frame followed by the right frame.
	Encode(pcm []int16) ([]byte, error)

	// Decode decodes one mono frame. A bad frame yields a frame of
	// silence.
	Decode(data []byte, badFrame bool) ([]int16, error)

	// Uninit disables the sides marked Enabled in cfg.
	Uninit(cfg Config) error
}
