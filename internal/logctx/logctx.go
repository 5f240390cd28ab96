// Package logctx carries a zerolog logger on a context.Context so that the
// plugin, scan and root being processed show up on every line logged below
// the point where they were attached.
//
// Usage:
//
//	ctx = logctx.WithLogger(ctx, logging.WithPhase("scan"))
//	ctx = logctx.WithPlugin(ctx, p.Name)
//	log := logctx.FromContext(ctx)
//	log.Info().Msg("scan started")
package logctx

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
)

func initDefaultLogger() {
	defaultLoggerOnce.Do(func() {
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
}

// DefaultLogger returns the logger used when a context carries none.
func DefaultLogger() zerolog.Logger {
	initDefaultLogger()
	return defaultLogger
}

// SetDefaultLogger replaces the fallback logger. Call it during start-up only.
func SetDefaultLogger(l zerolog.Logger) {
	initDefaultLogger()
	defaultLogger = l
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the context's logger, or DefaultLogger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// WithStr adds a string field to the context's logger.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithPlugin tags the context's logger with the plugin name.
func WithPlugin(ctx context.Context, name string) context.Context {
	return WithStr(ctx, "plugin", name)
}

// WithScan tags the context's logger with a scan run ID.
func WithScan(ctx context.Context, scanID string) context.Context {
	return WithStr(ctx, "scan_id", scanID)
}

// WithRoot tags the context's logger with the root scope being listed.
func WithRoot(ctx context.Context, root string) context.Context {
	return WithStr(ctx, "root", root)
}
