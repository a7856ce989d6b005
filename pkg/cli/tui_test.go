package cli

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestFrameRender(t *testing.T) {
	f := Frame{
		Styles: NewStyles(DefaultTheme),
		Title:  "lesynth",
		Status: "streaming",
		Sections: []Section{
			{Label: "Device", Content: func() []string { return []string{"role: gateway", "state: streaming"} }},
			{Label: "Log", Content: func() []string {
				return []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", strings.Repeat("x", 200)}
			}},
		},
		Help: "1-5 keys  p pause  q quit",
	}

	const width, height = 60, 20
	out := f.Render(width, height)
	lines := strings.Split(out, "\n")
	// Sections get (20-5-2)/2 = 6 rows each.
	if want := 3 + 2*(1+6) + 2; len(lines) != want {
		t.Fatalf("lines got=%d, want=%d", len(lines), want)
	}
	for i, line := range lines[:len(lines)-1] {
		if got := lipgloss.Width(line); got != width {
			t.Errorf("line %d width got=%d, want=%d: %q", i, got, width, line)
		}
	}
	if !strings.Contains(out, "…") {
		t.Error("long line was not truncated")
	}
	if strings.Contains(out, "│ a ") {
		t.Error("oldest log lines should scroll out")
	}
}

func TestFrameRenderEmpty(t *testing.T) {
	if got := (Frame{}).Render(0, 10); got != "Loading..." {
		t.Errorf("Render(0, 10) got=%q", got)
	}
}

func TestMeter(t *testing.T) {
	tests := []struct {
		value, full, width int
		want               string
	}{
		{0, 100, 4, "░░░░"},
		{50, 100, 4, "██░░"},
		{100, 100, 4, "████"},
		{400, 100, 4, "████"},
		{-1, 100, 4, "░░░░"},
		{10, 0, 3, "░░░"},
		{1, 1, 0, ""},
	}
	for _, tt := range tests {
		if got := Meter(tt.value, tt.full, tt.width); got != tt.want {
			t.Errorf("Meter(%d, %d, %d) got=%q, want=%q", tt.value, tt.full, tt.width, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 3); got != "hél" {
		t.Errorf("truncate got=%q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Errorf("truncate got=%q", got)
	}
	if got := truncate("abc", 0); got != "" {
		t.Errorf("truncate got=%q", got)
	}
}
