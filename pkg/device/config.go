package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haivivi/lesynth/pkg/codec"
	"github.com/haivivi/lesynth/pkg/iso"
	"github.com/haivivi/lesynth/pkg/pipeline"
	"github.com/haivivi/lesynth/pkg/preset"
	"github.com/haivivi/lesynth/pkg/stream"
	"github.com/haivivi/lesynth/pkg/synth"
)

// LinkKind selects the transport behind the ISO channels.
type LinkKind string

const (
	// LinkLoopback connects each channel to an in-process peer that sends
	// every frame back.
	LinkLoopback LinkKind = "loopback"
	// LinkRTP carries frames as RTP over UDP.
	LinkRTP LinkKind = "rtp"
	// LinkWS carries frames over WebSocket connections.
	LinkWS LinkKind = "ws"
)

// ParseLinkKind parses a link kind name.
func ParseLinkKind(s string) (LinkKind, error) {
	switch k := LinkKind(s); k {
	case LinkLoopback, LinkRTP, LinkWS:
		return k, nil
	default:
		return "", fmt.Errorf("device: unknown link %q", s)
	}
}

// Config describes a device.
type Config struct {
	Role          stream.Role      `json:"role" yaml:"role"`
	Transport     stream.Transport `json:"transport" yaml:"transport"`
	Codec         codec.Kind       `json:"codec" yaml:"codec"`
	SampleRate    int              `json:"sample_rate" yaml:"sample_rate"`
	FrameDuration time.Duration    `json:"frame_duration" yaml:"frame_duration"`
	Voices        int              `json:"voices" yaml:"voices"`
	// Preset is loaded at startup.
	Preset string `json:"preset" yaml:"preset"`

	Link LinkKind `json:"link" yaml:"link"`
	// RTPLocal and RTPRemote hold one address per channel, left first.
	RTPLocal  []string `json:"rtp_local,omitempty" yaml:"rtp_local,omitempty"`
	RTPRemote []string `json:"rtp_remote,omitempty" yaml:"rtp_remote,omitempty"`
	// WSURL holds one endpoint per channel, left first.
	WSURL []string `json:"ws_url,omitempty" yaml:"ws_url,omitempty"`

	ConnInterval    time.Duration `json:"conn_interval" yaml:"conn_interval"`
	ConnectAttempts int           `json:"connect_attempts" yaml:"connect_attempts"`
	ConnectBackoff  time.Duration `json:"connect_backoff" yaml:"connect_backoff"`
	TestPattern     bool          `json:"test_pattern,omitempty" yaml:"test_pattern,omitempty"`
	StatsInterval   time.Duration `json:"stats_interval" yaml:"stats_interval"`
}

// DefaultConfig returns a stereo gateway on loopback links.
func DefaultConfig() Config {
	return Config{
		Role:            stream.RoleGateway,
		Transport:       stream.TransportCIS,
		Codec:           codec.KindADPCM,
		SampleRate:      48000,
		FrameDuration:   pipeline.FrameDuration10ms,
		Voices:          synth.DefaultVoices,
		Preset:          preset.DefaultName,
		Link:            LinkLoopback,
		ConnInterval:    iso.DefaultConnInterval,
		ConnectAttempts: iso.DefaultConnectAttempts,
		ConnectBackoff:  iso.DefaultConnectBackoff,
		StatsInterval:   iso.DefaultStatsInterval,
	}
}

// Channels returns the number of ISO channels the device uses: two for a
// gateway on connected channels, one otherwise.
func (c Config) Channels() int {
	if c.Role == stream.RoleGateway && c.Transport == stream.TransportCIS {
		return 2
	}
	return 1
}

func (c Config) codecConfig() codec.Config {
	enc := codec.EncoderConfig{Enabled: true, Mode: codec.Mono, Channel: codec.Left}
	if c.Channels() == 2 {
		enc.Mode = codec.Stereo
	}
	return codec.Config{
		Kind:    c.Codec,
		Encoder: enc,
		Decoder: codec.DecoderConfig{Enabled: true, Mode: codec.Mono},
	}
}

func (c Config) pipelineConfig(onFatal func(error), l *slog.Logger) pipeline.Config {
	return pipeline.Config{
		SampleRate:    c.SampleRate,
		FrameDuration: c.FrameDuration,
		Channels:      1,
		Codec:         c.codecConfig(),
		OnFatal:       onFatal,
		Logger:        l,
	}
}

// NewLinks builds the links cfg.Link names, one per channel.
func NewLinks(cfg Config, l *slog.Logger) ([]iso.Link, error) {
	n := cfg.Channels()
	links := make([]iso.Link, 0, n)
	switch cfg.Link {
	case LinkLoopback, "":
		for range n {
			near, far := iso.NewLoopbackPair()
			if err := connectEcho(far); err != nil {
				return nil, err
			}
			links = append(links, near)
		}

	case LinkRTP:
		if len(cfg.RTPLocal) < n {
			return nil, fmt.Errorf("device: rtp needs %d local addresses, got %d", n, len(cfg.RTPLocal))
		}
		samples := uint32(int64(cfg.SampleRate) * int64(cfg.FrameDuration) / int64(time.Second))
		for i := range n {
			rc := iso.RTPConfig{Local: cfg.RTPLocal[i], SamplesPerFrame: samples, Logger: l}
			if i < len(cfg.RTPRemote) {
				rc.Remote = cfg.RTPRemote[i]
			}
			links = append(links, iso.NewRTPLink(rc))
		}

	case LinkWS:
		if len(cfg.WSURL) < n {
			return nil, fmt.Errorf("device: ws needs %d urls, got %d", n, len(cfg.WSURL))
		}
		for i := range n {
			links = append(links, iso.NewWSLink(iso.WSConfig{URL: cfg.WSURL[i], Logger: l}))
		}

	default:
		return nil, fmt.Errorf("device: unknown link %q", cfg.Link)
	}
	return links, nil
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("device: invalid sample rate %d", c.SampleRate)
	}
	if c.Voices < 0 {
		return fmt.Errorf("device: invalid voice count %d", c.Voices)
	}
	if _, err := ParseLinkKind(string(c.Link)); err != nil && c.Link != "" {
		return err
	}
	return nil
}

// echo is the far end of a loopback link. It sends every valid frame back,
// so a device on loopback links exercises its receive path.
type echo struct {
	link *iso.Loopback
}

func connectEcho(l *iso.Loopback) error {
	return l.Connect(context.Background(), iso.Left, echo{link: l})
}

func (echo) OnSent(iso.Channel)      {}
func (echo) OnConnected(iso.Channel) {}

// OnDisconnected listens again, like a headset that keeps advertising.
func (e echo) OnDisconnected(iso.Channel, error) {
	connectEcho(e.link)
}

func (e echo) OnReceive(_ iso.Channel, data []byte, valid bool, _ uint32) {
	if valid {
		e.link.Send(data)
	}
}
