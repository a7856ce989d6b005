package cli

import (
	"strings"

	"github.com/haivivi/lesynth/pkg/buffer"
)

// LogWriter is an io.Writer that keeps the most recent log lines for the
// TUI log section. It is safe for concurrent use.
type LogWriter struct {
	lines *buffer.Ring[string]
	ch    chan string
}

// NewLogWriter returns a writer keeping at most maxLines lines.
func NewLogWriter(maxLines int) *LogWriter {
	return &LogWriter{
		lines: buffer.RingN[string](maxLines),
		ch:    make(chan string, 100),
	}
}

// Write implements io.Writer. Each newline-separated line is stored and
// announced on the notification channel, dropping the announcement when
// nobody is listening.
func (w *LogWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	for _, line := range strings.Split(text, "\n") {
		w.lines.Add(line)
		select {
		case w.ch <- line:
		default:
		}
	}
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (w *LogWriter) Lines() []string {
	return w.lines.Items()
}

// Channel returns the notification channel for new lines.
func (w *LogWriter) Channel() <-chan string {
	return w.ch
}
