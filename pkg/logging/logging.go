// Package logging holds the process-wide zerolog logger and the completion
// events emitted at the end of each scan phase.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options selects the level and encoding of the global logger.
type Options struct {
	Debug bool
	// Human switches from JSON lines to zerolog's console writer and
	// enables the _h fields of completion events.
	Human bool
	// Out defaults to os.Stderr.
	Out io.Writer
}

var (
	logger = New(Options{})
	pretty bool
)

// New builds a logger for opts without touching the global one.
func New(opts Options) *zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Human {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &l
}

// Init replaces the global logger.
func Init(opts Options) {
	logger = New(opts)
	pretty = opts.Human
}

// L returns the global logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns the global logger tagged with a phase field.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger installs l as the global logger. Tests use it to capture output.
func SetLogger(l zerolog.Logger) {
	logger = &l
}

// IsPrettyMode reports whether the console writer is active.
func IsPrettyMode() bool {
	return pretty
}
