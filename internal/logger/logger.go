package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a thin wrapper around zerolog used by every component.
// Sub-loggers carry component/room/participant fields via Extend.
type Logger struct {
	*zerolog.Logger
}

// New returns a JSON logger writing to stderr.
func New(debug bool) *Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	return &Logger{&l}
}

// NewConsole returns a human-readable logger for interactive use.
// The tag marks which process (relay, meet) emitted the line.
func NewConsole(debug bool, tag string) *Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	l := zerolog.New(output).Level(level).With().Str("tag", tag).Timestamp().Logger()
	return &Logger{&l}
}

// Default returns the global zerolog logger wrapped.
func Default() *Logger { return &Logger{&log.Logger} }

// Extend adds additional context fields to the logger.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	l2 := ctx.Logger()
	return &Logger{&l2}
}
