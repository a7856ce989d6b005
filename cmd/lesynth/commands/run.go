package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/haivivi/lesynth/pkg/audio/pcm"
	"github.com/haivivi/lesynth/pkg/cli"
	"github.com/haivivi/lesynth/pkg/device"
	"github.com/haivivi/lesynth/pkg/input"
	"github.com/haivivi/lesynth/pkg/preset"
	"github.com/haivivi/lesynth/pkg/stream"
)

var (
	runFlags    deviceFlags
	flagMic     string
	flagMicRate int
	flagSpeaker string
	flagTUI     bool
	flagVerbose bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the device",
	Long: `Run the synth gateway or headset.

Settings come from the current context (or --context) and are overridden by
flags. The number keys 1-5 toggle the push buttons, p pauses, r resumes and
q quits.

Examples:
  # Stereo gateway on loopback links with the dashboard
  lesynth run --tui

  # Headset streaming a raw 16 kHz mono file as its microphone
  lesynth run --role=headset --mic=voice.pcm --mic-rate=16000

  # Gateway writing the received return audio to a file
  lesynth run --speaker=return.pcm --codec=pcm`,
	RunE: runDevice,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	runFlags.register(fs)
	fs.StringVar(&flagMic, "mic", "", "raw s16le mono file used as microphone")
	fs.IntVar(&flagMicRate, "mic-rate", 16000, "sample rate of the --mic file")
	fs.StringVar(&flagSpeaker, "speaker", "", "file receiving decoded s16le audio")
	fs.BoolVar(&flagTUI, "tui", false, "show the status dashboard")
	fs.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

func runDevice(cmd *cobra.Command, args []string) error {
	// Load context configuration
	cfg := device.DefaultConfig()
	if ctx, err := getContext(); err == nil {
		if cfg, err = LoadDeviceConfig(ctx); err != nil {
			return fmt.Errorf("context %q: %w", ctx.Name, err)
		}
	}

	// Apply command-line overrides
	if err := runFlags.apply(cmd.Flags(), &cfg); err != nil {
		return err
	}

	// Raw mode delivers single key presses; it also turns off the
	// terminal's newline translation, which crlf restores for logs. The
	// dashboard manages the terminal itself.
	stdinFd := os.Stdin.Fd()
	raw := !flagTUI && term.IsTerminal(stdinFd)
	if raw {
		state, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer term.Restore(stdinFd, state)
	}

	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	paths, err := cli.NewPaths(appName)
	if err != nil {
		return err
	}

	// The dashboard owns the screen, so logs go to its log section and to
	// a file that outlives the session.
	var logOut io.Writer = os.Stderr
	var logw *cli.LogWriter
	if flagTUI {
		if err := cli.EnsureDir(paths.LogDir()); err != nil {
			return fmt.Errorf("log dir: %w", err)
		}
		f, err := os.OpenFile(paths.LogPath("run.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		logw = cli.NewLogWriter(dashboardLogLines)
		logOut = io.MultiWriter(logw, f)
	} else if raw {
		logOut = crlf{os.Stderr}
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	store, err := openPresetStore(paths, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []device.Option{device.WithLogger(logger), device.WithPresetStore(store)}
	if flagMic != "" {
		f, err := os.Open(flagMic)
		if err != nil {
			return fmt.Errorf("open mic: %w", err)
		}
		defer f.Close()
		opts = append(opts, device.WithMic(f, pcm.Format{SampleRate: flagMicRate, Channels: 1}))
	}
	if flagSpeaker != "" {
		f, err := os.Create(flagSpeaker)
		if err != nil {
			return fmt.Errorf("create speaker: %w", err)
		}
		defer f.Close()
		opts = append(opts, device.WithSpeaker(f))
	}

	d, err := device.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if raw {
		go func() {
			kb := input.NewKeyboard(controlKeys{r: os.Stdin, d: d}, d.Keys())
			if err := kb.Run(ctx); errors.Is(err, input.ErrQuit) {
				stop()
			}
		}()
	}

	if flagTUI {
		done := make(chan struct{})
		defer func() { <-done }()
		go func() {
			defer close(done)
			if err := runDashboard(ctx, d, logw); err != nil {
				logger.Error("dashboard failed", "error", err)
			}
			stop()
		}()
	} else {
		logger.Info("lesynth running",
			"role", cfg.Role, "transport", cfg.Transport, "codec", cfg.Codec, "link", cfg.Link)
	}

	err = d.Run(ctx)
	stop()
	return err
}

// openPresetStore opens the on-disk preset database.
func openPresetStore(paths *cli.Paths, l *slog.Logger) (*preset.Store, error) {
	if err := cli.EnsureDir(paths.PresetDir()); err != nil {
		return nil, fmt.Errorf("preset dir: %w", err)
	}
	return preset.Open(preset.StoreOptions{Dir: paths.PresetDir(), Logger: l})
}

// controlKeys strips the transport keys from the key stream: p pauses and
// r resumes. Everything else passes through to the keyboard.
type controlKeys struct {
	r io.Reader
	d *device.Device
}

func (c controlKeys) Read(p []byte) (int, error) {
	for {
		n, err := c.r.Read(p)
		kept := p[:0]
		for _, b := range p[:n] {
			switch b {
			case 'p':
				c.d.PostEvent(stream.EventPause)
			case 'r':
				c.d.PostEvent(stream.EventLinkReady)
			default:
				kept = append(kept, b)
			}
		}
		if len(kept) > 0 || err != nil {
			return len(kept), err
		}
	}
}

// crlf writes \r\n line ends for a terminal in raw mode.
type crlf struct{ w io.Writer }

func (c crlf) Write(p []byte) (int, error) {
	if _, err := io.WriteString(c.w, strings.ReplaceAll(string(p), "\n", "\r\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}
