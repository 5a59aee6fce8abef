package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/provider/sse"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
	doneSentinel     = "[DONE]"
	streamErrorText  = "Anthropic stream error"
)

// Messages API request/response structures.
type messagesRequest struct {
	Model       string           `json:"model"`
	Stream      bool             `json:"stream"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	System      string           `json:"system,omitempty"`
	Messages    []messageRequest `json:"messages"`
}

type messageRequest struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// SplitSystem joins system messages with a blank line and returns the
// remaining user and assistant turns in order, attachments inlined.
func SplitSystem(messages []domain.Message) (string, []domain.Message) {
	var system []string
	turns := make([]domain.Message, 0, len(messages))

	for _, msg := range messages {
		text := msg.Text()
		if msg.Role == domain.RoleSystem {
			if strings.TrimSpace(text) != "" {
				system = append(system, text)
			}
			continue
		}

		role := domain.RoleUser
		if msg.Role == domain.RoleAssistant {
			role = domain.RoleAssistant
		}
		turns = append(turns, domain.Message{Role: role, Content: text})
	}

	return strings.Join(system, "\n\n"), turns
}

// MaxTokens returns the configured output budget or the Messages API default.
func MaxTokens(settings domain.ProviderSettings) int {
	if settings.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return settings.MaxTokens
}

func toMessagesRequest(settings domain.ProviderSettings, messages []domain.Message) messagesRequest {
	system, turns := SplitSystem(messages)

	out := make([]messageRequest, 0, len(turns))
	for _, turn := range turns {
		out = append(out, messageRequest{
			Role:    turn.Role,
			Content: []contentBlock{{Type: "text", Text: turn.Content}},
		})
	}

	return messagesRequest{
		Model:       settings.Model,
		Stream:      true,
		MaxTokens:   MaxTokens(settings),
		Temperature: settings.Temperature,
		System:      system,
		Messages:    out,
	}
}

// classify maps one Messages API data payload to a frame.
func classify(payload string) sse.Frame {
	if payload == "" || payload == doneSentinel {
		return sse.Frame{Done: true}
	}

	var event streamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return sse.Frame{Skip: true}
	}

	switch event.Type {
	case "error":
		message := streamErrorText
		if event.Error != nil && event.Error.Message != "" {
			message = event.Error.Message
		}
		return sse.Frame{Err: &domain.ProviderError{Message: message}}
	case "message_stop":
		return sse.Frame{Done: true}
	}

	if event.Delta == nil {
		return sse.Frame{Skip: true}
	}
	return sse.Frame{Text: event.Delta.Text, Reasoning: event.Delta.Thinking}
}

// endpoint resolves the messages URL, accepting base URLs with or without /v1.
func endpoint(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/messages"
	}
	return base + "/v1/messages"
}

// SDKBaseURL strips a trailing /v1 since the SDK adds its own version prefix.
func SDKBaseURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return strings.TrimSuffix(base, "/v1") + "/"
}
