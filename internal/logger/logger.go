// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and propagates a
// per-script trace ID through context.Context so log lines that carry it can
// be correlated to one script. Currently only the server's script save and
// delete error logs carry it.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type ctxKey string

const (
	traceIDKey  ctxKey = "trace_id"
	scriptIDKey ctxKey = "script_id"
)

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithScriptID stores the id of the script a request or feed call is acting
// on, so log lines built from that context with LogWithTrace can be filtered
// down to one running script.
func WithScriptID(ctx context.Context, scriptID string) context.Context {
	return context.WithValue(ctx, scriptIDKey, scriptID)
}

// ScriptID extracts the script id from context. Returns "" if not set.
func ScriptID(ctx context.Context) string {
	if v, ok := ctx.Value(scriptIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID scoped to one script from its id and a
// timestamp. Format: "{scriptID}-{unixNano}" -- lightweight, no UUID
// dependency.
func GenerateTraceID(scriptID string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", scriptID, ts.UnixNano())
}

// LogWithTrace returns slog attributes including the trace ID and script ID
// from context, when present.
// Usage: slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	var attrs []any
	if tid := TraceID(ctx); tid != "" {
		attrs = append(attrs, slog.String("trace_id", tid))
	}
	if sid := ScriptID(ctx); sid != "" {
		attrs = append(attrs, slog.String("script_id", sid))
	}
	return attrs
}
