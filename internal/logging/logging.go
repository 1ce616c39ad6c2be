// Package logging builds slog loggers and carries per-request fields
// through a context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// scope is the logging state attached to a context. Values are copied on
// every With* call so parent contexts never see child fields.
type scope struct {
	logger    *slog.Logger
	requestID string
	sessionID string
}

func scopeOf(ctx context.Context) scope {
	if s, ok := ctx.Value(ctxKey{}).(scope); ok {
		return s
	}
	return scope{}
}

func withScope(ctx context.Context, mutate func(*scope)) context.Context {
	s := scopeOf(ctx)
	mutate(&s)
	return context.WithValue(ctx, ctxKey{}, s)
}

// ParseLevel maps a level name ("debug", "INFO", "warn", "error") to a
// slog level. Unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// New creates a logger on stdout.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a logger on w. format "json" selects the JSON
// handler; anything else is text. Debug loggers also record the source.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithLogger attaches the base logger used by L.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return withScope(ctx, func(s *scope) { s.logger = logger })
}

// WithRequestID tags the context with the HTTP request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withScope(ctx, func(s *scope) { s.requestID = requestID })
}

// RequestID returns the request ID, or "".
func RequestID(ctx context.Context) string { return scopeOf(ctx).requestID }

// WithSessionID tags the context with a replay session ID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withScope(ctx, func(s *scope) { s.sessionID = sessionID })
}

// SessionID returns the replay session ID, or "".
func SessionID(ctx context.Context) string { return scopeOf(ctx).sessionID }

// L returns the context's logger (slog.Default when none was attached)
// with request_id and session_id set when present.
func L(ctx context.Context) *slog.Logger {
	s := scopeOf(ctx)
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	var attrs []any
	if s.requestID != "" {
		attrs = append(attrs, slog.String("request_id", s.requestID))
	}
	if s.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", s.sessionID))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
