// Package logging wires the process-wide slog JSON handler and adapts it to
// the types.Logger interface that components depend on.
package logging

import (
	"log/slog"
	"os"

	"pulsefeed/internal/types"
)

// slogAdapter wraps *slog.Logger to implement types.Logger. slog satisfies
// Info/Error/Warn directly, but With returns *slog.Logger rather than
// types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)

// New creates a JSON structured logger writing to stdout at the given level
// ("debug", "info", "warn", "error"; anything else falls back to info).
func New(level string) types.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
	return &slogAdapter{logger: logger}
}

// Wrap adapts an existing *slog.Logger to types.Logger.
func Wrap(logger *slog.Logger) types.Logger {
	return &slogAdapter{logger: logger}
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() types.Logger {
	return &slogAdapter{logger: slog.New(slog.DiscardHandler)}
}
