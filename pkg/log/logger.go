// Package log is a thin leveled facade over zerolog. Call sites use
// printf-style helpers so the logging backend can change without touching
// the rest of the codebase.
package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stdout, zerolog.InfoLevel)
)

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05"}
	return zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()
}

// ParseLevel maps a level name to a zerolog level. Unknown names fall back to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLevel adjusts the global log level by name.
func SetLevel(name string) {
	mu.Lock()
	logger = logger.Level(ParseLevel(name))
	mu.Unlock()
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger = newLogger(w, logger.GetLevel())
	mu.Unlock()
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(format string, args ...any) {
	l := current()
	l.Debug().CallerSkipFrame(1).Msgf(format, args...)
}

func Info(format string, args ...any) {
	l := current()
	l.Info().CallerSkipFrame(1).Msgf(format, args...)
}

func Warn(format string, args ...any) {
	l := current()
	l.Warn().CallerSkipFrame(1).Msgf(format, args...)
}

func Error(format string, args ...any) {
	l := current()
	l.Error().CallerSkipFrame(1).Msgf(format, args...)
}

func Fatal(format string, args ...any) {
	l := current()
	l.Fatal().CallerSkipFrame(1).Msgf(format, args...)
}
