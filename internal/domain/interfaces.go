package domain

import "context"

// EmitFunc receives content events from an adapter during one attempt.
type EmitFunc func(event StreamEvent)

// Adapter streams one attempt against a provider backend.
type Adapter interface {
	// Kind returns the provider kind this adapter serves.
	Kind() ProviderKind

	// Stream runs a single attempt, emitting delta and reasoningDelta events
	// in transport order. It returns nil when the provider finished cleanly.
	Stream(ctx context.Context, attempt Attempt, emit EmitFunc) error
}

// Preflighter is implemented by adapters that can reject a run before dispatch.
type Preflighter interface {
	Preflight(ctx context.Context, settings ProviderSettings) error
}

// ModelLister is implemented by adapters that can enumerate models.
type ModelLister interface {
	ListModels(ctx context.Context, settings ProviderSettings) ([]ModelInfo, error)
}

// AgentChecker is implemented by adapters backed by a local agent runtime.
type AgentChecker interface {
	CheckAvailability(ctx context.Context) (AgentStatus, error)
}

// AdapterRegistry manages available adapters.
type AdapterRegistry interface {
	// Register adds an adapter to the registry.
	Register(ctx context.Context, adapter Adapter) error

	// Get retrieves an adapter by provider kind.
	Get(ctx context.Context, kind ProviderKind) (Adapter, error)

	// List returns the registered provider kinds.
	List(ctx context.Context) ([]ProviderKind, error)
}

// EventSink receives the events of a run.
type EventSink interface {
	OnEvent(ctx context.Context, event RunEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event RunEvent)

// OnEvent calls f.
func (f EventSinkFunc) OnEvent(ctx context.Context, event RunEvent) {
	f(ctx, event)
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
