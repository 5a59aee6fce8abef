// Package sdkagent drives Anthropic models through the official SDK client
// rather than the hand-rolled SSE runner.
package sdkagent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/observability"
	anthropicadapter "github.com/davidbz/chatrelay/internal/provider/anthropic"
)

// Adapter implements domain.Adapter using anthropic-sdk-go streaming.
type Adapter struct {
	httpClient *http.Client
}

// NewAdapter creates a new SDK agent adapter. A nil client uses the SDK default.
func NewAdapter(httpClient *http.Client) *Adapter {
	return &Adapter{httpClient: httpClient}
}

// Kind returns the provider kind.
func (a *Adapter) Kind() domain.ProviderKind {
	return domain.ProviderSDKAgent
}

// Stream runs one SDK streaming attempt. SDK retries are disabled since the
// resiliency controller owns retry and key rotation.
func (a *Adapter) Stream(ctx context.Context, attempt domain.Attempt, emit domain.EmitFunc) error {
	logger := observability.FromContext(ctx)
	settings := attempt.Settings

	client := anthropic.NewClient(a.clientOptions(attempt.APIKey, settings.BaseURL)...)
	params := toParams(settings, attempt.Messages)

	logger.Debug("calling Anthropic SDK streaming API",
		observability.Int("messages", len(params.Messages)))

	stream := client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()

		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}

		switch delta.Delta.Type {
		case "text_delta":
			if delta.Delta.Text != "" {
				emit(domain.Delta(delta.Delta.Text))
			}
		case "thinking_delta":
			if delta.Delta.Thinking != "" {
				emit(domain.ReasoningDelta(delta.Delta.Thinking))
			}
		}
	}

	if err := stream.Err(); err != nil {
		return translateError(ctx, err)
	}
	return nil
}

// ListModels returns the models available to the first configured key.
func (a *Adapter) ListModels(ctx context.Context, settings domain.ProviderSettings) ([]domain.ModelInfo, error) {
	keys := settings.APIKeys()
	if len(keys) == 0 {
		return nil, fmt.Errorf("listing models: %w", domain.ErrProviderNotConfigured)
	}

	client := anthropic.NewClient(a.clientOptions(keys[0], settings.BaseURL)...)
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

func (a *Adapter) clientOptions(apiKey, baseURL string) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(anthropicadapter.SDKBaseURL(baseURL)))
	}
	if a.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(a.httpClient))
	}
	return opts
}

func toParams(settings domain.ProviderSettings, messages []domain.Message) anthropic.MessageNewParams {
	system, turns := anthropicadapter.SplitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(settings.Model),
		MaxTokens: int64(anthropicadapter.MaxTokens(settings)),
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}

	for _, turn := range turns {
		block := anthropic.NewTextBlock(turn.Content)
		if turn.Role == domain.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	if settings.Temperature > 0 {
		params.Temperature = anthropic.Float(settings.Temperature)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	return params
}

// streamErrorEventText marks the error anthropic-sdk-go (v1.17.0,
// packages/ssestream) returns for an in-stream "error" event. The SDK builds
// it with fmt.Errorf and exposes no type for it, so the text is the only
// signal. The adapter tests replay an error event through the SDK and fail
// if an upgrade changes it.
const streamErrorEventText = "error while streaming"

// translateError maps SDK failures onto the transport taxonomy.
func translateError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &domain.TransportError{
			StatusCode: apiErr.StatusCode,
			Message:    fmt.Sprintf("HTTP %d: %s", apiErr.StatusCode, strings.TrimSpace(apiErr.RawJSON())),
			Cause:      err,
		}
	}

	if strings.Contains(err.Error(), streamErrorEventText) {
		return &domain.ProviderError{Message: err.Error()}
	}

	return &domain.TransportError{Message: fmt.Sprintf("anthropic stream failed: %v", err), Cause: err}
}
