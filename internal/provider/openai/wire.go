package openai

import (
	"encoding/json"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/provider/sse"
)

const doneSentinel = "[DONE]"

// OpenAI-compatible request/response structures.
type chatRequest struct {
	Model       string        `json:"model"`
	Stream      bool          `json:"stream"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			Reasoning        string `json:"reasoning"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func toChatRequest(settings domain.ProviderSettings, messages []domain.Message) chatRequest {
	out := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, chatMessage{Role: msg.Role, Content: msg.Text()})
	}

	return chatRequest{
		Model:       settings.Model,
		Stream:      true,
		Messages:    out,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	}
}

// classify maps one chat-completions data payload to a frame.
func classify(payload string) sse.Frame {
	if payload == doneSentinel {
		return sse.Frame{Done: true}
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return sse.Frame{Skip: true}
	}

	if chunk.Error != nil && chunk.Error.Message != "" {
		return sse.Frame{Err: &domain.ProviderError{Message: chunk.Error.Message}}
	}

	if len(chunk.Choices) == 0 {
		return sse.Frame{Skip: true}
	}

	choice := chunk.Choices[0]
	reasoning := choice.Delta.ReasoningContent
	if reasoning == "" {
		reasoning = choice.Delta.Reasoning
	}

	return sse.Frame{
		Text:      choice.Delta.Content,
		Reasoning: reasoning,
		Done:      choice.FinishReason != nil,
	}
}
