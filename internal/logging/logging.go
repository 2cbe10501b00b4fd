// Package logging wraps the standard logger with a level gate.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps a config value to a Level. Unknown values are an error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	l     *log.Logger
	level Level
}

// New writes to w with a bracketed component prefix, e.g. "[exposegen] ".
func New(w io.Writer, prefix string, level Level) *Logger {
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	return &Logger{l: log.New(w, prefix, log.LstdFlags), level: level}
}

// Stderr is the default logger for the CLI.
func Stderr(prefix string, level Level) *Logger { return New(os.Stderr, prefix, level) }

func Discard() *Logger { return New(io.Discard, "", LevelError+1) }

// With returns a logger sharing the level but with a different prefix.
func (lg *Logger) With(prefix string) *Logger {
	return New(lg.l.Writer(), prefix, lg.level)
}

func (lg *Logger) Enabled(l Level) bool { return lg != nil && l >= lg.level }

func (lg *Logger) logf(l Level, format string, args ...any) {
	if !lg.Enabled(l) {
		return
	}
	lg.l.Printf(l.String()+" "+format, args...)
}

func (lg *Logger) Debugf(format string, args ...any) { lg.logf(LevelDebug, format, args...) }
func (lg *Logger) Infof(format string, args ...any)  { lg.logf(LevelInfo, format, args...) }
func (lg *Logger) Warnf(format string, args ...any)  { lg.logf(LevelWarn, format, args...) }
func (lg *Logger) Errorf(format string, args ...any) { lg.logf(LevelError, format, args...) }
