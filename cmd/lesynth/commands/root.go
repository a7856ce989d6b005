package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/lesynth/pkg/cli"
	"github.com/haivivi/lesynth/pkg/codec"
	"github.com/haivivi/lesynth/pkg/device"
	"github.com/haivivi/lesynth/pkg/stream"
)

const appName = "lesynth"

var (
	cfgFile      string
	contextName  string
	globalConfig *cli.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lesynth",
	Short: "BLE audio synth gateway",
	Long: `lesynth plays a small polyphonic synthesizer from push buttons and
streams it over isochronous channels to one or two earbuds.

A gateway streams stereo over two connected channels (CIS) or mono over a
broadcast channel (BIS). A headset streams its microphone back to the
gateway. Without radio hardware the channels run over loopback, RTP/UDP or
WebSocket links.

Configuration is stored in ~/.haivivi/lesynth/ and supports multiple contexts,
one per device setup.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Run the device by default
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDevice(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "", "", "config file (default is ~/.haivivi/lesynth/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context to use (default is current context)")

	// Run flags are accepted on the root too, since it runs by default.
	addRunFlags(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(presetCmd)
	rootCmd.AddCommand(versionCmd)
}

// configErr stores the config load error for deferred reporting.
var configErr error

func initConfig() {
	if cfgFile != "" {
		globalConfig, configErr = cli.LoadConfigWithPath(appName, cfgFile)
		return
	}
	globalConfig = cli.LoadConfigIfExists(appName)
}

// loadConfig returns the config file, creating it on first use.
func loadConfig() (*cli.Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}
	if configErr != nil {
		return nil, fmt.Errorf("%s config: %w", appName, configErr)
	}
	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s config: %w", appName, err)
	}
	return globalConfig, nil
}

// getContext returns the context to use, resolving from flag or current context.
func getContext() (*cli.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.ResolveContext(contextName)
}

// Context.Extra keys.
const (
	keyRole            = "role"
	keyTransport       = "transport"
	keyCodec           = "codec"
	keySampleRate      = "sample_rate"
	keyFrameDuration   = "frame_duration"
	keyVoices          = "voices"
	keyPreset          = "preset"
	keyLink            = "link"
	keyRTPLocal        = "rtp_local"
	keyRTPRemote       = "rtp_remote"
	keyWSURL           = "ws_url"
	keyConnInterval    = "conn_interval"
	keyConnectAttempts = "connect_attempts"
	keyConnectBackoff  = "connect_backoff"
	keyTestPattern     = "test_pattern"
)

// LoadDeviceConfig loads the device configuration from a context. Unset
// keys keep their defaults; malformed enum values are errors.
func LoadDeviceConfig(ctx *cli.Context) (device.Config, error) {
	cfg := device.DefaultConfig()
	if ctx == nil {
		return cfg, nil
	}

	if v := ctx.GetExtra(keyRole); v != "" {
		r, err := stream.ParseRole(v)
		if err != nil {
			return cfg, err
		}
		cfg.Role = r
	}
	if v := ctx.GetExtra(keyTransport); v != "" {
		t, err := stream.ParseTransport(v)
		if err != nil {
			return cfg, err
		}
		cfg.Transport = t
	}
	if v := ctx.GetExtra(keyCodec); v != "" {
		k, err := codec.ParseKind(v)
		if err != nil {
			return cfg, err
		}
		cfg.Codec = k
	}
	if v := ctx.GetExtra(keyLink); v != "" {
		k, err := device.ParseLinkKind(v)
		if err != nil {
			return cfg, err
		}
		cfg.Link = k
	}
	if v := ctx.GetExtra(keyPreset); v != "" {
		cfg.Preset = v
	}

	cfg.SampleRate = ctx.ExtraInt(keySampleRate, cfg.SampleRate)
	cfg.FrameDuration = ctx.ExtraDuration(keyFrameDuration, cfg.FrameDuration)
	cfg.Voices = ctx.ExtraInt(keyVoices, cfg.Voices)
	cfg.RTPLocal = ctx.ExtraList(keyRTPLocal)
	cfg.RTPRemote = ctx.ExtraList(keyRTPRemote)
	cfg.WSURL = ctx.ExtraList(keyWSURL)
	cfg.ConnInterval = ctx.ExtraDuration(keyConnInterval, cfg.ConnInterval)
	cfg.ConnectAttempts = ctx.ExtraInt(keyConnectAttempts, cfg.ConnectAttempts)
	cfg.ConnectBackoff = ctx.ExtraDuration(keyConnectBackoff, cfg.ConnectBackoff)
	cfg.TestPattern = ctx.ExtraBool(keyTestPattern, cfg.TestPattern)
	return cfg, nil
}

// SaveDeviceConfig saves the device configuration to a context.
func SaveDeviceConfig(ctx *cli.Context, cfg device.Config) {
	ctx.SetExtra(keyRole, cfg.Role.String())
	ctx.SetExtra(keyTransport, cfg.Transport.String())
	ctx.SetExtra(keyCodec, cfg.Codec.String())
	ctx.SetExtra(keySampleRate, strconv.Itoa(cfg.SampleRate))
	ctx.SetExtra(keyFrameDuration, cfg.FrameDuration.String())
	ctx.SetExtra(keyVoices, strconv.Itoa(cfg.Voices))
	ctx.SetExtra(keyPreset, cfg.Preset)
	ctx.SetExtra(keyLink, string(cfg.Link))
	ctx.SetExtra(keyRTPLocal, strings.Join(cfg.RTPLocal, ","))
	ctx.SetExtra(keyRTPRemote, strings.Join(cfg.RTPRemote, ","))
	ctx.SetExtra(keyWSURL, strings.Join(cfg.WSURL, ","))
	ctx.SetExtra(keyConnInterval, cfg.ConnInterval.String())
	ctx.SetExtra(keyConnectAttempts, strconv.Itoa(cfg.ConnectAttempts))
	ctx.SetExtra(keyConnectBackoff, cfg.ConnectBackoff.String())
	if cfg.TestPattern {
		ctx.SetExtra(keyTestPattern, "true")
	} else {
		ctx.SetExtra(keyTestPattern, "")
	}
}
