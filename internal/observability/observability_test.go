package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidbz/chatrelay/internal/observability"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	observability.SetLogger(zap.New(core))
	t.Cleanup(func() { observability.SetLogger(nil) })
	return logs
}

func TestEventBus_Publish(t *testing.T) {
	t.Run("should log the event with its data and run id", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		bus := observability.NewEventBus(zap.New(core))

		ctx := observability.WithRunID(context.Background(), "run-1")
		bus.Publish(ctx, "run.finished", map[string]interface{}{"status": "done"})

		entries := logs.All()
		require.Len(t, entries, 1)
		require.Equal(t, "run.finished", entries[0].Message)
		require.Equal(t, map[string]interface{}{"status": "done", "run_id": "run-1"}, entries[0].ContextMap())
	})

	t.Run("should do nothing without a logger", func(t *testing.T) {
		bus := observability.NewEventBus(nil)
		require.NotPanics(t, func() {
			bus.Publish(context.Background(), "run.started", nil)
		})
	})
}

func TestFromContext(t *testing.T) {
	t.Run("should attach the run fields present in context", func(t *testing.T) {
		logs := observe(t)

		ctx := observability.WithRequestID(context.Background(), "req-1")
		ctx = observability.WithRun(ctx, "run-2", "anthropic", "claude")
		ctx = observability.WithAttempt(ctx, 2)
		observability.FromContext(ctx).Info("hello")

		entries := logs.All()
		require.Len(t, entries, 1)
		require.Equal(t, map[string]interface{}{
			"request_id": "req-1",
			"run_id":     "run-2",
			"provider":   "anthropic",
			"model":      "claude",
			"attempt":    int64(2),
		}, entries[0].ContextMap())
	})

	t.Run("should omit empty fields", func(t *testing.T) {
		logs := observe(t)

		observability.FromContext(context.Background()).Info("bare")

		require.Empty(t, logs.All()[0].ContextMap())
	})
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { observability.SetLogger(nil) })

	t.Run("should honour the configured level", func(t *testing.T) {
		logger, err := observability.InitLogger(&observability.LogConfig{Level: "warn", Format: "console"})
		require.NoError(t, err)

		require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("should reject unknown levels", func(t *testing.T) {
		_, err := observability.InitLogger(&observability.LogConfig{Level: "loud"})
		require.ErrorContains(t, err, "invalid log level")
	})
}

func TestGenerateIDs(t *testing.T) {
	require.Len(t, observability.GenerateTraceID(), 32)
	require.Len(t, observability.GenerateSpanID(), 16)
	require.NotEqual(t, observability.GenerateRequestID(), observability.GenerateRequestID())
}
