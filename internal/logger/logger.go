// Package logger builds the process-wide zap logger and carries trace IDs
// through context.Context.
package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init creates a structured logger for the given service and installs it
// as the zap global. format is "json" (default) or "console".
func Init(service, level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "", "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.MessageKey = "message"
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	l = l.With(zap.String("service", service))
	zap.ReplaceGlobals(l)
	return l, nil
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

// GenerateTraceID names one poll or fetch: "{subject}-{unixNano}".
func GenerateTraceID(subject string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", subject, ts.UnixNano())
}

// NewRequestID returns a random ID for inbound HTTP requests.
func NewRequestID() string {
	return uuid.NewString()
}

// Fields returns the trace ID from ctx as zap fields, or nil.
// Usage: log.Info("msg", logger.Fields(ctx)...)
func Fields(ctx context.Context) []zap.Field {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []zap.Field{zap.String("trace_id", tid)}
}

// From returns l annotated with the trace ID in ctx.
func From(ctx context.Context, l *zap.Logger) *zap.Logger {
	if f := Fields(ctx); f != nil {
		return l.With(f...)
	}
	return l
}
