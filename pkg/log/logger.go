// This file provides a log/slog-backed implementation of the Logger
// interface. Handlers are wrapped by ErrFmtHandler so errors carrying
// cockroachdb stack information surface it as a structured attribute.

package log

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/climakit/eofkit/pkg/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// ParseLevel converts a level name into a Level. Unknown names are a
// ValidationError.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, errors.NewValidationError("log_level",
		"must be one of debug, info, warn, error", name)
}

// SlogLogger adapts log/slog to the Logger interface.
type SlogLogger struct {
	sl *slog.Logger
}

// NewSlogLogger creates a slog-backed Logger emitting JSON lines to w at
// the given minimum level.
func NewSlogLogger(w io.Writer, level Level) *SlogLogger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.Level(level)})
	return WrapSlogHandler(h)
}

// WrapSlogHandler adapts an existing slog handler, adding the stacktrace
// extraction chain.
func WrapSlogHandler(h slog.Handler) *SlogLogger {
	return &SlogLogger{sl: slog.New(WrapByErrFmtHandler(h))}
}

// Debug implements Logger.Debug.
func (s *SlogLogger) Debug(msg string, fields ...any) {
	s.sl.Debug(msg, normalizeFields(fields)...)
}

// Info implements Logger.Info.
func (s *SlogLogger) Info(msg string, fields ...any) {
	s.sl.Info(msg, normalizeFields(fields)...)
}

// Warn implements Logger.Warn.
func (s *SlogLogger) Warn(msg string, fields ...any) {
	s.sl.Warn(msg, normalizeFields(fields)...)
}

// Error implements Logger.Error.
func (s *SlogLogger) Error(msg string, fields ...any) {
	s.sl.Error(msg, normalizeFields(fields)...)
}

// With implements Logger.With.
func (s *SlogLogger) With(fields ...any) Logger {
	return &SlogLogger{sl: s.sl.With(normalizeFields(fields)...)}
}

// Enabled implements Logger.Enabled.
func (s *SlogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.sl.Enabled(ctx, slog.Level(level))
}

// normalizeFields converts a bare error value in key position into the
// error attribute, matching the calling convention of the zerolog
// backend.
func normalizeFields(fields []any) []any {
	out := make([]any, 0, len(fields))
	i := 0
	for i < len(fields) {
		if err, ok := fields[i].(error); ok {
			out = append(out, ErrAttr(err))
			i++
			continue
		}
		if i+1 >= len(fields) {
			break
		}
		out = append(out, fields[i], fields[i+1])
		i += 2
	}
	return out
}
