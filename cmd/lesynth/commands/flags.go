package commands

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/haivivi/lesynth/pkg/codec"
	"github.com/haivivi/lesynth/pkg/device"
	"github.com/haivivi/lesynth/pkg/stream"
)

// deviceFlags are the device settings shared by "config add", "config set"
// and "run".
type deviceFlags struct {
	role          string
	transport     string
	codec         string
	sampleRate    int
	frameDuration time.Duration
	voices        int
	preset        string
	link          string
	rtpLocal      []string
	rtpRemote     []string
	wsURL         []string
	testPattern   bool
}

func (f *deviceFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.role, "role", "", "device role: gateway or headset")
	fs.StringVar(&f.transport, "transport", "", "channel type: cis or bis")
	fs.StringVar(&f.codec, "codec", "", "codec: pcm, adpcm, lc3 or sbc")
	fs.IntVar(&f.sampleRate, "sample-rate", 0, "sample rate in Hz")
	fs.DurationVar(&f.frameDuration, "frame", 0, "frame duration: 7.5ms or 10ms")
	fs.IntVar(&f.voices, "voices", 0, "number of synth voices")
	fs.StringVar(&f.preset, "preset", "", "preset loaded at startup")
	fs.StringVar(&f.link, "link", "", "channel link: loopback, rtp or ws")
	fs.StringSliceVar(&f.rtpLocal, "rtp-local", nil, "local UDP address per channel, left first")
	fs.StringSliceVar(&f.rtpRemote, "rtp-remote", nil, "remote UDP address per channel, left first")
	fs.StringSliceVar(&f.wsURL, "ws-url", nil, "WebSocket URL per channel, left first")
	fs.BoolVar(&f.testPattern, "test-pattern", false, "send and check a counting test pattern")
}

// apply copies the flags the user set onto cfg.
func (f *deviceFlags) apply(fs *pflag.FlagSet, cfg *device.Config) error {
	if fs.Changed("role") {
		r, err := stream.ParseRole(f.role)
		if err != nil {
			return err
		}
		cfg.Role = r
	}
	if fs.Changed("transport") {
		t, err := stream.ParseTransport(f.transport)
		if err != nil {
			return err
		}
		cfg.Transport = t
	}
	if fs.Changed("codec") {
		k, err := codec.ParseKind(f.codec)
		if err != nil {
			return err
		}
		cfg.Codec = k
	}
	if fs.Changed("link") {
		k, err := device.ParseLinkKind(f.link)
		if err != nil {
			return err
		}
		cfg.Link = k
	}
	if fs.Changed("sample-rate") {
		cfg.SampleRate = f.sampleRate
	}
	if fs.Changed("frame") {
		cfg.FrameDuration = f.frameDuration
	}
	if fs.Changed("voices") {
		cfg.Voices = f.voices
	}
	if fs.Changed("preset") {
		cfg.Preset = f.preset
	}
	if fs.Changed("rtp-local") {
		cfg.RTPLocal = f.rtpLocal
	}
	if fs.Changed("rtp-remote") {
		cfg.RTPRemote = f.rtpRemote
	}
	if fs.Changed("ws-url") {
		cfg.WSURL = f.wsURL
	}
	if fs.Changed("test-pattern") {
		cfg.TestPattern = f.testPattern
	}
	return nil
}
