package domain

import (
	"context"
	"errors"
	"time"

	"github.com/davidbz/chatrelay/internal/observability"
)

var errAttemptTimedOut = errors.New("attempt timed out")

// Controller wraps a single turn with per-attempt timeouts, bounded retries
// and round-robin key failover.
type Controller struct{}

// NewController creates a new resiliency controller (DI constructor).
func NewController() *Controller {
	return &Controller{}
}

// Execute drives adapter until it succeeds, fails terminally, or ctx is cancelled.
// It forwards content events to emit and then emits exactly one terminal event.
func (c *Controller) Execute(ctx context.Context, adapter Adapter, req RunRequest, emit EmitFunc) {
	settings := req.Settings
	keys := settings.APIKeys()
	maxAttempts := settings.MaxAttempts()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			emit(Done())
			return
		}
		attemptCtx := observability.WithAttempt(ctx, attempt+1)
		logger := observability.FromContext(attemptCtx)

		current := Attempt{
			Number:   attempt,
			Settings: settings,
			Messages: req.Messages,
		}
		if len(keys) > 0 {
			current.KeyIndex = attempt % len(keys)
			current.APIKey = keys[current.KeyIndex]
		}

		delivered := false
		err := runAttempt(attemptCtx, adapter, current, settings.Timeout(), func(event StreamEvent) {
			if !event.IsContent() {
				return
			}
			delivered = true
			emit(event)
		})

		if settings.DebugLogging {
			logger.Info("attempt finished",
				observability.Int("max_attempts", maxAttempts),
				observability.Int("key_slot", current.KeyIndex),
				observability.Bool("delivered", delivered),
				observability.Error(err))
		}

		if err == nil || ctx.Err() != nil {
			emit(Done())
			return
		}

		if attempt+1 >= maxAttempts || delivered || !IsRetryable(err) {
			logger.Debug("run failed", observability.Error(err))
			emit(Failure(err.Error()))
			return
		}

		logger.Debug("retrying with next key", observability.Error(err))
	}

	emit(Failure("no attempts were made"))
}

// runAttempt calls the adapter once under the attempt timeout.
// A failure caused by the timeout firing is reported as TimeoutError.
func runAttempt(
	ctx context.Context,
	adapter Adapter,
	attempt Attempt,
	timeout time.Duration,
	emit EmitFunc,
) error {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeoutCause(ctx, timeout, errAttemptTimedOut)
		defer cancel()
	}

	err := adapter.Stream(attemptCtx, attempt, emit)

	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(attemptCtx), errAttemptTimedOut) {
		return &TimeoutError{Timeout: timeout}
	}
	return err
}
