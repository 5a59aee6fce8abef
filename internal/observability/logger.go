package observability

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxLoggerFieldCapacity = 7

// LogConfig selects the level and encoding of the process logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

//nolint:gochecknoglobals // loggers are not carried in context
var (
	globalLogger *zap.Logger
	loggerMu     sync.RWMutex
)

// InitLogger builds the process logger from cfg and installs it as the base
// for FromContext. A nil cfg yields the production defaults.
func InitLogger(cfg *LogConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg != nil {
		if cfg.Format == "console" {
			zapCfg = zap.NewDevelopmentConfig()
		}
		if cfg.Level != "" {
			level, err := zapcore.ParseLevel(cfg.Level)
			if err != nil {
				return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
			}
			zapCfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	SetLogger(logger)
	return logger, nil
}

// SetLogger replaces the base logger. Tests use it to capture output.
func SetLogger(logger *zap.Logger) {
	loggerMu.Lock()
	globalLogger = logger
	loggerMu.Unlock()
}

func baseLogger() *zap.Logger {
	loggerMu.RLock()
	logger := globalLogger
	loggerMu.RUnlock()

	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// FromContext returns the base logger annotated with the request and run
// fields present in ctx.
func FromContext(ctx context.Context) *zap.Logger {
	fields := make([]zap.Field, 0, maxLoggerFieldCapacity)

	for _, kv := range []struct {
		key   string
		value string
	}{
		{"trace_id", GetTraceID(ctx)},
		{"span_id", GetSpanID(ctx)},
		{"request_id", GetRequestID(ctx)},
		{"run_id", GetRunID(ctx)},
		{"provider", GetProvider(ctx)},
		{"model", GetModel(ctx)},
	} {
		if kv.value != "" {
			fields = append(fields, zap.String(kv.key, kv.value))
		}
	}

	if attempt := GetAttempt(ctx); attempt > 0 {
		fields = append(fields, zap.Int("attempt", attempt))
	}

	return baseLogger().With(fields...)
}
