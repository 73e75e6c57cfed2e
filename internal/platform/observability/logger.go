package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/m5zonk/api/internal/platform/requestctx"
)

// LoggerSettings selects the level and encoding of NewLogger.
type LoggerSettings struct {
	Level  string
	Format string
	Output string
}

// NewLogger builds the process logger from LOG_LEVEL (default info) and LOG_FORMAT
// (json or console, default json). Logs go to stderr so command output on stdout stays
// machine readable.
func NewLogger() (*zap.Logger, error) {
	return newLogger(LoggerSettings{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Output: "stderr",
	})
}

func newLogger(settings LoggerSettings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(settings.Level))
	if err != nil || strings.TrimSpace(settings.Level) == "" {
		level = zapcore.InfoLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey:    "message",
		TimeKey:       "timestamp",
		LevelKey:      "severity",
		NameKey:       "logger",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}
	encoding := "json"
	if strings.EqualFold(strings.TrimSpace(settings.Format), "console") {
		encoding = "console"
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	output := strings.TrimSpace(settings.Output)
	if output == "" {
		output = "stderr"
	}
	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext returns the context logger, or a no-op logger, tagged with the tenant and
// actor carried by ctx.
func FromContext(ctx context.Context) *zap.Logger {
	logger := requestctx.Logger(ctx)
	var fields []zap.Field
	if tenantID, ok := requestctx.Tenant(ctx); ok {
		fields = append(fields, zap.String("tenantId", tenantID))
	}
	if actor := requestctx.Actor(ctx); actor != nil {
		fields = append(fields, zap.String("actorId", *actor))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
