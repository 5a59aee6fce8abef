// Package anthropic streams completions from the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/observability"
	"github.com/davidbz/chatrelay/internal/provider/sse"
)

// Adapter implements domain.Adapter for the Anthropic Messages API.
type Adapter struct {
	runner *sse.Runner
}

// NewAdapter creates a new Anthropic adapter.
func NewAdapter(runner *sse.Runner) *Adapter {
	return &Adapter{runner: runner}
}

// Kind returns the provider kind.
func (a *Adapter) Kind() domain.ProviderKind {
	return domain.ProviderAnthropic
}

// Stream runs one Messages API attempt.
func (a *Adapter) Stream(ctx context.Context, attempt domain.Attempt, emit domain.EmitFunc) error {
	settings := attempt.Settings

	observability.FromContext(ctx).Debug("calling Anthropic streaming API",
		observability.String("base_url", settings.BaseURL))

	return a.runner.Run(ctx, sse.Request{
		URL: endpoint(settings.BaseURL),
		Headers: map[string]string{
			"x-api-key":         attempt.APIKey,
			"anthropic-version": apiVersion,
		},
		Body:  toMessagesRequest(settings, attempt.Messages),
		Debug: settings.DebugLogging,
	}, classify, emit)
}

// ListModels returns the models available to the first configured key.
func (a *Adapter) ListModels(ctx context.Context, settings domain.ProviderSettings) ([]domain.ModelInfo, error) {
	keys := settings.APIKeys()
	if len(keys) == 0 {
		return nil, fmt.Errorf("listing models: %w", domain.ErrProviderNotConfigured)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(keys[0]),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(settings.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(SDKBaseURL(settings.BaseURL)))
	}

	client := anthropic.NewClient(opts...)
	page, err := client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("anthropic model listing failed: %w", err)
	}

	models := make([]domain.ModelInfo, 0, len(page.Data))
	for _, model := range page.Data {
		models = append(models, domain.ModelInfo{ID: model.ID, DisplayName: model.DisplayName})
	}
	return models, nil
}
