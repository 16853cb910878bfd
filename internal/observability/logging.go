package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/model"
)

type loggerKey struct{}

// NewLogger creates the service logger: JSON to stdout at the configured
// level (info when the level does not parse).
//
// Level conventions:
//   - error: store failures, panics, 5xx responses
//   - warn:  session expiry, breaker open, out-of-order upload responses
//   - info:  requests, login/logout, uploads, exports
//   - debug: cache operations, redacted backend payloads
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	return buildLogger(cfg.LogLevel, "json", []string{"stdout"})
}

// NewCLILogger creates a console-encoded logger on stderr for the command
// line client, so stdout stays free for command output.
func NewCLILogger(level string) (*zap.Logger, error) {
	return buildLogger(level, "console", []string{"stderr"})
}

func buildLogger(level, encoding string, outputs []string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if encoding == "console" {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// RequestLogger returns the context logger enriched with the session fields
// of the current request.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}
	return logger.With(SessionFields(rctx)...)
}

// SessionFields are the zap fields that identify a console request.
func SessionFields(rctx *model.RequestContext) []zap.Field {
	fields := []zap.Field{
		zap.String("session_id", rctx.SessionID),
		zap.String("user_id", rctx.UserID),
	}
	if rctx.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", rctx.CorrelationID))
	}
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	return fields
}

var sensitiveFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"authorization": true,
	"cookie":        true,
	"session":       true,
}

// RedactBody returns a copy of body with sensitive fields (case-insensitive,
// plus any in extra) replaced by "[REDACTED]". Nested objects are walked.
// Use it before logging request or response payloads at debug level.
func RedactBody(body map[string]any, extra ...string) map[string]any {
	if body == nil {
		return nil
	}
	redact := make(map[string]bool, len(sensitiveFields)+len(extra))
	for k := range sensitiveFields {
		redact[k] = true
	}
	for _, f := range extra {
		redact[strings.ToLower(f)] = true
	}
	return redactWith(body, redact)
}

func redactWith(body map[string]any, redact map[string]bool) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		switch {
		case redact[strings.ToLower(k)]:
			out[k] = "[REDACTED]"
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = redactWith(nested, redact)
			} else {
				out[k] = v
			}
		}
	}
	return out
}
