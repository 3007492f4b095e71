package reportq

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger defines logging methods used across reportq. Implementations should be cheap.
// Default is FmtLogger which writes to stdout/stderr using fmt.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Level is a logging threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps "debug", "info", "warn" and "error" to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// FmtLogger is a minimal logger that prints messages with level prefixes.
// Debug/Info go to Out; Warn/Error go to Err.
type FmtLogger struct {
	Min Level
	Out io.Writer
	Err io.Writer
}

// NewFmtLogger creates a FmtLogger that prints every level to stdout/stderr.
func NewFmtLogger() *FmtLogger { return &FmtLogger{Min: LevelDebug} }

// NewLevelLogger creates a FmtLogger that drops messages below min.
func NewLevelLogger(min Level) *FmtLogger { return &FmtLogger{Min: min} }

func (l *FmtLogger) print(lv Level, w, def io.Writer, prefix, format string, args ...any) {
	if lv < l.Min {
		return
	}
	if w == nil {
		w = def
	}
	fmt.Fprintf(w, prefix+format+"\n", args...)
}

func (l *FmtLogger) Debugf(format string, args ...any) {
	l.print(LevelDebug, l.Out, os.Stdout, "[DEBUG] ", format, args...)
}
func (l *FmtLogger) Infof(format string, args ...any) {
	l.print(LevelInfo, l.Out, os.Stdout, "[INFO]  ", format, args...)
}
func (l *FmtLogger) Warnf(format string, args ...any) {
	l.print(LevelWarn, l.Err, os.Stderr, "[WARN]  ", format, args...)
}
func (l *FmtLogger) Errorf(format string, args ...any) {
	l.print(LevelError, l.Err, os.Stderr, "[ERROR] ", format, args...)
}
