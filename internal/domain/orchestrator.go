package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/chatrelay/internal/observability"
)

// Orchestrator dispatches runs to adapters and tracks them until they finish.
type Orchestrator struct {
	adapters   AdapterRegistry
	runs       *RunRegistry
	controller *Controller
	publisher  EventPublisher
	newID      func() string
}

// NewOrchestrator creates a new run orchestrator (DI constructor).
func NewOrchestrator(
	adapters AdapterRegistry,
	runs *RunRegistry,
	controller *Controller,
	publisher EventPublisher,
) *Orchestrator {
	return &Orchestrator{
		adapters:   adapters,
		runs:       runs,
		controller: controller,
		publisher:  publisher,
		newID:      func() string { return uuid.New().String() },
	}
}

// StartRun validates req, registers a new run and starts it in the background.
// Configuration problems are returned synchronously and nothing is dispatched.
func (o *Orchestrator) StartRun(ctx context.Context, req RunRequest, sink EventSink) (*RunHandle, error) {
	if sink == nil {
		return nil, errors.New("event sink cannot be nil")
	}

	if err := req.Settings.Validate(); err != nil {
		return nil, err
	}

	adapter, err := o.adapters.Get(ctx, req.Settings.Kind)
	if err != nil {
		return nil, &ConfigError{Kind: req.Settings.Kind, Reason: err.Error(), Err: ErrProviderNotConfigured}
	}

	if preflighter, ok := adapter.(Preflighter); ok {
		if err = preflighter.Preflight(ctx, req.Settings); err != nil {
			return nil, err
		}
	}

	runID := o.newID()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = observability.WithRun(runCtx, runID, string(req.Settings.Kind), req.Settings.Model)

	handle := newRunHandle(runID, cancel)
	if err = o.runs.Register(handle); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}

	o.publish(runCtx, "run.started", map[string]interface{}{
		"message_count": len(req.Messages),
		"max_attempts":  req.Settings.MaxAttempts(),
	})

	go o.execute(runCtx, handle, adapter, req, sink)

	return handle, nil
}

// StopRun cancels a run. Unknown or finished run ids are ignored.
func (o *Orchestrator) StopRun(runID string) {
	handle, ok := o.runs.Get(runID)
	if !ok {
		return
	}
	handle.stop()
}

// ActiveRuns returns the ids of runs that have not finished yet.
func (o *Orchestrator) ActiveRuns() []string {
	return o.runs.IDs()
}

// ListModels asks the adapter for settings.Kind to enumerate its models.
func (o *Orchestrator) ListModels(ctx context.Context, settings ProviderSettings) ([]ModelInfo, error) {
	adapter, err := o.adapters.Get(ctx, settings.Kind)
	if err != nil {
		return nil, fmt.Errorf("provider lookup failed: %w", err)
	}

	lister, ok := adapter.(ModelLister)
	if !ok {
		return nil, fmt.Errorf("%s: %w", settings.Kind, ErrUnsupported)
	}

	models, err := lister.ListModels(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

// CheckAgent reports whether the CLI agent runtime can be used.
func (o *Orchestrator) CheckAgent(ctx context.Context) (AgentStatus, error) {
	adapter, err := o.adapters.Get(ctx, ProviderCLIAgent)
	if err != nil {
		return AgentStatus{}, fmt.Errorf("provider lookup failed: %w", err)
	}

	checker, ok := adapter.(AgentChecker)
	if !ok {
		return AgentStatus{}, fmt.Errorf("%s: %w", ProviderCLIAgent, ErrUnsupported)
	}
	return checker.CheckAvailability(ctx)
}

func (o *Orchestrator) execute(
	ctx context.Context,
	handle *RunHandle,
	adapter Adapter,
	req RunRequest,
	sink EventSink,
) {
	logger := observability.FromContext(ctx)
	started := time.Now()
	var terminal StreamEvent

	emit := func(event StreamEvent) {
		if handle.terminated.Load() {
			return
		}
		if event.IsTerminal() {
			handle.terminated.Store(true)
			terminal = event
		}
		sink.OnEvent(ctx, RunEvent{RunID: handle.ID, Seq: handle.nextSeq(), Event: event})
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("run panicked", observability.Any("panic", recovered))
			emit(Failure(fmt.Sprintf("internal error: %v", recovered)))
		}
		if !handle.terminated.Load() {
			emit(Done())
		}

		o.publish(ctx, "run.finished", map[string]interface{}{
			"status":      string(terminal.Type),
			"error":       terminal.Message,
			"events":      handle.Seq(),
			"duration_ms": time.Since(started).Milliseconds(),
		})

		o.runs.Remove(handle.ID)
		handle.stop()
		handle.finish()
	}()

	o.controller.Execute(ctx, adapter, req, emit)
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(ctx, eventType, data)
}
