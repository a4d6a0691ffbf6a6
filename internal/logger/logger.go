// Package logger wraps log/slog with request-scoped attributes carried in the
// context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ContextKey is the type of the context keys read by FromContext.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	TraceIDKey   ContextKey = "trace_id"
	ProviderKey  ContextKey = "provider"
	ModelKey     ContextKey = "model"
	TaskKey      ContextKey = "task"
)

var contextKeys = []ContextKey{RequestIDKey, TraceIDKey, ProviderKey, ModelKey, TaskKey}

// Init installs a JSON or text handler as the slog default.
func Init(level, format string) {
	InitWithWriter(os.Stdout, level, format)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a level name onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext stores a log attribute in ctx.
func WithContext(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// FromContext returns the default logger enriched with the attributes stored
// in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	log := slog.Default()
	for _, key := range contextKeys {
		if v := ctx.Value(key); v != nil {
			log = log.With(string(key), v)
		}
	}
	return log
}
