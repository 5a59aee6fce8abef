// Package openai streams chat completions from any OpenAI-compatible endpoint.
// Streaming goes through the shared SSE runner; model listing uses the
// official SDK against the same base URL.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/observability"
	"github.com/davidbz/chatrelay/internal/provider/sse"
)

// Adapter implements domain.Adapter for OpenAI-compatible backends.
type Adapter struct {
	runner *sse.Runner
}

// NewAdapter creates a new OpenAI-compatible adapter.
func NewAdapter(runner *sse.Runner) *Adapter {
	return &Adapter{runner: runner}
}

// Kind returns the provider kind.
func (a *Adapter) Kind() domain.ProviderKind {
	return domain.ProviderOpenAICompatible
}

// Stream runs one chat-completions attempt.
func (a *Adapter) Stream(ctx context.Context, attempt domain.Attempt, emit domain.EmitFunc) error {
	settings := attempt.Settings

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI-compatible streaming API",
		observability.Int("messages", len(attempt.Messages)))

	return a.runner.Run(ctx, sse.Request{
		URL: endpoint(settings.BaseURL),
		Headers: map[string]string{
			"Authorization": "Bearer " + attempt.APIKey,
		},
		Body:  toChatRequest(settings, attempt.Messages),
		Debug: settings.DebugLogging,
	}, classify, emit)
}

// ListModels returns the models served by the configured endpoint.
func (a *Adapter) ListModels(ctx context.Context, settings domain.ProviderSettings) ([]domain.ModelInfo, error) {
	keys := settings.APIKeys()
	if len(keys) == 0 {
		return nil, fmt.Errorf("listing models: %w", domain.ErrProviderNotConfigured)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(keys[0]),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(settings.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}

	client := openai.NewClient(opts...)
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("OpenAI model listing failed: %w", err)
	}

	models := make([]domain.ModelInfo, 0, len(page.Data))
	for _, model := range page.Data {
		models = append(models, domain.ModelInfo{ID: model.ID})
	}
	return models, nil
}

func endpoint(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/chat/completions"
}
