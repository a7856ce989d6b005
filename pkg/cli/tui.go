package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for the TUI.
type Theme struct {
	Primary lipgloss.Color // accent
	Dim     lipgloss.Color // help and idle text
	Alert   lipgloss.Color // disconnected and error states
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#ff5f5f"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Alert  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Alert:  lipgloss.NewStyle().Bold(true).Foreground(t.Alert),
	}
}

// Section is a labeled block of lines. Content is called on every render.
type Section struct {
	Label   string
	Content func() []string
}

// Frame is one screen: a bordered box with a title, a status tag, the
// sections stacked with equal heights, and a help line below.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	// Alert renders the status in the alert color.
	Alert    bool
	Sections []Section
	Help     string
}

// Render renders the frame to fit width by height cells.
func (f Frame) Render(width, height int) string {
	if width == 0 || height == 0 {
		return "Loading..."
	}

	bc := f.Styles.Border
	inner := width - 4

	lines := []string{bc.Render("╭" + strings.Repeat("─", width-2) + "╮")}

	statusStyle := f.Styles.Help
	if f.Alert {
		statusStyle = f.Styles.Alert
	}
	title := f.Styles.Title.Render(f.Title)
	status := statusStyle.Render("[" + f.Status + "]")
	pad := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines,
		bc.Render("│")+" "+title+" "+status+strings.Repeat(" ", pad)+" "+bc.Render("│"),
		bc.Render("│")+strings.Repeat(" ", width-2)+bc.Render("│"),
	)

	n := max(len(f.Sections), 1)
	// Rows left after the top border, title, spacer, one label row per
	// section, bottom border and help.
	rows := max((height-5-n)/n, 2)
	for _, sec := range f.Sections {
		lines = append(lines, f.section(sec.Label, sec.Content(), rows, width, inner)...)
	}

	lines = append(lines,
		bc.Render("╰"+strings.Repeat("─", width-2)+"╯"),
		f.Styles.Help.Render(f.Help),
	)
	return strings.Join(lines, "\n")
}

// section renders a label separator followed by the last rows lines of
// content.
func (f Frame) section(label string, content []string, rows, width, inner int) []string {
	bc := f.Styles.Border
	labelText := f.Styles.Label.Render(label)
	pad := max(0, width-3-lipgloss.Width(labelText))
	lines := []string{bc.Render("├─") + labelText + bc.Render(strings.Repeat("─", pad)+"┤")}

	start := max(0, len(content)-rows)
	for i := range rows {
		text := ""
		if idx := start + i; idx < len(content) {
			text = content[idx]
		}
		if inner > 1 && lipgloss.Width(text) > inner {
			text = truncate(text, inner-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// Meter renders value out of full as a bar of width cells.
func Meter(value, full, width int) string {
	if width <= 0 {
		return ""
	}
	n := 0
	if full > 0 {
		n = min(width, max(0, value*width/full))
	}
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

// truncate cuts s to at most width display cells, keeping whole runes.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := 0
	for i, r := range s {
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			return s[:i]
		}
		w += rw
	}
	return s
}
