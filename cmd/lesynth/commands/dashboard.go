package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/haivivi/lesynth/pkg/cli"
	"github.com/haivivi/lesynth/pkg/device"
	"github.com/haivivi/lesynth/pkg/input"
	"github.com/haivivi/lesynth/pkg/stream"
)

const (
	dashboardInterval = 100 * time.Millisecond
	dashboardLogLines = 200
	// dashboardSections is the number of sections dashboardFrame lays out
	// with a log writer attached.
	dashboardSections = 3
)

// DashboardModel is the status screen of a running device.
type DashboardModel struct {
	d  *device.Device
	kb *input.Keyboard

	// Log pane
	logWriter *cli.LogWriter
	logView   viewport.Model
	logLines  []string

	status device.Status
	styles cli.Styles
	width  int
	height int

	quitting bool
}

// NewDashboardModel returns a model showing d. Button keys are translated
// with kb and posted to the device's key queue.
func NewDashboardModel(d *device.Device, kb *input.Keyboard, logWriter *cli.LogWriter) DashboardModel {
	m := DashboardModel{
		d:         d,
		kb:        kb,
		logWriter: logWriter,
		logView:   viewport.New(0, 0),
		status:    d.Status(),
		styles:    cli.NewStyles(cli.DefaultTheme),
	}
	if logWriter != nil {
		m.logLines = logWriter.Lines()
	}
	return m
}

// LogMsg is one new log line.
type LogMsg string

// TickMsg refreshes the status.
type TickMsg time.Time

// Init starts the log listener and the status refresh.
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.listenLogs(), m.tick())
}

func (m DashboardModel) listenLogs() tea.Cmd {
	if m.logWriter == nil {
		return nil
	}
	return func() tea.Msg {
		line, ok := <-m.logWriter.Channel()
		if !ok {
			return nil
		}
		return LogMsg(line)
	}
}

func (m DashboardModel) tick() tea.Cmd {
	return tea.Tick(dashboardInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles messages.
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyRunes:
			if len(msg.Runes) == 1 && m.handleKey(msg.Runes[0]) {
				m.quitting = true
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLog()

	case LogMsg:
		m.logLines = append(m.logLines, string(msg))
		if len(m.logLines) > dashboardLogLines {
			m.logLines = m.logLines[len(m.logLines)-dashboardLogLines:]
		}
		m.refreshLog()
		cmds = append(cmds, m.listenLogs())

	case TickMsg:
		m.status = m.d.Status()
		cmds = append(cmds, m.tick())
	}

	// The viewport scrolls the log on its own keys.
	var cmd tea.Cmd
	m.logView, cmd = m.logView.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleKey runs the key bindings of the run command. It reports whether
// the key quits.
func (m DashboardModel) handleKey(r rune) bool {
	switch r {
	case 'q':
		return true
	case 'p':
		m.d.PostEvent(stream.EventPause)
	case 'r':
		m.d.PostEvent(stream.EventLinkReady)
	default:
		if r > 0x7f {
			return false
		}
		if ev, ok := m.kb.Translate(byte(r)); ok {
			m.d.Keys().Post(ev)
		}
	}
	return false
}

// resizeLog fits the log viewport to the log section of the frame.
func (m *DashboardModel) resizeLog() {
	rows := max((m.height-5-dashboardSections)/dashboardSections, 2)
	m.logView.Width = max(m.width-4, 1)
	m.logView.Height = rows
	m.refreshLog()
}

func (m *DashboardModel) refreshLog() {
	follow := m.logView.AtBottom()
	m.logView.SetContent(strings.Join(m.logLines, "\n"))
	if follow || m.logView.PastBottom() {
		m.logView.GotoBottom()
	}
}

// View renders the UI.
func (m DashboardModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	var logs []string
	if m.logWriter != nil {
		logs = strings.Split(m.logView.View(), "\n")
	}
	return dashboardFrame(m.styles, m.status, logs).Render(m.width, m.height)
}

// runDashboard shows the dashboard on the alternate screen until the user
// quits or ctx ends.
func runDashboard(ctx context.Context, d *device.Device, logWriter *cli.LogWriter) error {
	// Keys come from the program, so the keyboard has no reader.
	kb := input.NewKeyboard(nil, d.Keys())
	p := tea.NewProgram(NewDashboardModel(d, kb, logWriter), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// dashboardFrame lays out one status snapshot. A nil logs leaves out the
// log section.
func dashboardFrame(styles cli.Styles, st device.Status, logs []string) cli.Frame {
	alert := st.State == stream.StateDisconnected
	for _, ch := range st.Channels {
		if !ch.Connected {
			alert = true
		}
	}

	sections := []cli.Section{
		{Label: "Device", Content: func() []string {
			return []string{
				fmt.Sprintf("role: %s/%s  session: %s", st.Role, st.Transport, orDash(st.Session)),
				fmt.Sprintf("preset: %s  bpm: %d  voices: %d", st.Preset, st.BPM, st.ActiveVoices),
				fmt.Sprintf("chord: %v", st.Chord),
				fmt.Sprintf("frames: %d  silent: %d  overruns: %d  encode errors: %d",
					st.Pipeline.Frames, st.Pipeline.Silent, st.Pipeline.Overruns, st.Pipeline.EncodeErrors),
				fmt.Sprintf("uptime: %s", st.Uptime.Truncate(time.Second)),
			}
		}},
		{Label: "Channels", Content: func() []string {
			lines := make([]string, 0, len(st.Channels)+2)
			for _, ch := range st.Channels {
				link := "down"
				if ch.Connected {
					link = "up"
				}
				lines = append(lines, fmt.Sprintf("%-6s %-4s credits: %d", ch.Channel, link, ch.Credits))
			}
			lines = append(lines,
				fmt.Sprintf("rx: %d  bad: %d  pattern errors: %d", st.RX.Total, st.RX.Bad, st.RX.PatternErrors),
				fmt.Sprintf("level  %s %d", cli.Meter(st.Playback.Peak, 1<<15, 24), st.Playback.Peak),
			)
			return lines
		}},
	}
	if logs != nil {
		sections = append(sections, cli.Section{Label: "Log", Content: func() []string { return logs }})
	}

	return cli.Frame{
		Styles:   styles,
		Title:    "lesynth",
		Status:   st.State.String(),
		Alert:    alert,
		Sections: sections,
		Help:     "1-5 buttons  p pause  r resume  q quit  pgup/pgdn scroll log",
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
