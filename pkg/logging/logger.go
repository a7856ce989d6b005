// Package logging provides the prefixed printf-style logger used across the
// synthesizer packages.
package logging

import (
	"fmt"
	"log/slog"
)

// Logger is the interface for logging in lesynth packages. Every message is
// prefixed with the owning package name.
type Logger interface {
	ErrorPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
	Errorf(format string, args ...any) error
}

// New returns a Logger that writes to l with the "<prefix>: " message prefix.
// A nil l resolves to slog.Default at every call, so later changes to the
// default logger are honored.
func New(prefix string, l *slog.Logger) Logger {
	return &slogLogger{prefix: prefix + ": ", l: l}
}

type slogLogger struct {
	prefix string
	l      *slog.Logger
}

func (s *slogLogger) logger() *slog.Logger {
	if s.l != nil {
		return s.l
	}
	return slog.Default()
}

func (s *slogLogger) ErrorPrintf(format string, args ...any) {
	s.logger().Error(s.prefix + fmt.Sprintf(format, args...))
}

func (s *slogLogger) WarnPrintf(format string, args ...any) {
	s.logger().Warn(s.prefix + fmt.Sprintf(format, args...))
}

func (s *slogLogger) InfoPrintf(format string, args ...any) {
	s.logger().Info(s.prefix + fmt.Sprintf(format, args...))
}

func (s *slogLogger) DebugPrintf(format string, args ...any) {
	s.logger().Debug(s.prefix + fmt.Sprintf(format, args...))
}

func (s *slogLogger) Errorf(format string, args ...any) error {
	return fmt.Errorf(s.prefix+format, args...)
}
