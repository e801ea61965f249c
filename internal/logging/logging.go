package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// NewLogger creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR)
// format: "text" (human-readable) or "json" (structured)
//
// Output goes to stderr; stdout is left to the CLI's own output.
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Tracer emits diagnostic trace lines at DEBUG when enabled, even if the
// logger's level would drop DEBUG. Lines carry trace=true.
type Tracer struct {
	logger  *slog.Logger
	enabled bool
}

// NewTracer wraps logger; a disabled Tracer emits nothing.
func NewTracer(logger *slog.Logger, enabled bool) Tracer {
	return Tracer{logger: logger, enabled: enabled}
}

// Enabled reports whether trace lines are emitted.
func (t Tracer) Enabled() bool {
	return t.enabled && t.logger != nil
}

// Trace logs msg with args, handing the record straight to the handler so
// the level check is skipped.
func (t Tracer) Trace(ctx context.Context, msg string, args ...any) {
	if !t.Enabled() {
		return
	}
	r := slog.NewRecord(time.Now(), slog.LevelDebug, msg, 0)
	r.Add("trace", true)
	r.Add(args...)
	_ = t.logger.Handler().Handle(ctx, r)
}
