package domain

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// ProviderKind identifies the backend family a run is dispatched to.
type ProviderKind string

const (
	ProviderOpenAICompatible ProviderKind = "openai-compatible"
	ProviderAnthropic        ProviderKind = "anthropic"
	ProviderCLIAgent         ProviderKind = "cli-agent"
	ProviderSDKAgent         ProviderKind = "sdk-agent"
)

// Valid reports whether k is one of the known provider kinds.
func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderOpenAICompatible, ProviderAnthropic, ProviderCLIAgent, ProviderSDKAgent:
		return true
	default:
		return false
	}
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role        string       `json:"role"        yaml:"role"` // user, assistant, system
	Content     string       `json:"content"     yaml:"content"`
	Attachments []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// Text returns the message content with attachments inlined after it.
func (m Message) Text() string {
	if len(m.Attachments) == 0 {
		return m.Content
	}

	var b strings.Builder
	b.WriteString(m.Content)
	for _, attachment := range m.Attachments {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[Attachment: ")
		b.WriteString(attachment.Name)
		b.WriteString("]\n")
		b.WriteString(attachment.Text)
	}
	return b.String()
}

// Attachment is an attachment already resolved to text by the caller.
type Attachment struct {
	Name     string `json:"name"               yaml:"name"`
	MimeType string `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	Text     string `json:"text"               yaml:"text"`
}

// RunRequest is constructed once per user turn and never mutated afterwards.
type RunRequest struct {
	Settings ProviderSettings `json:"settings" yaml:"settings"`
	Messages []Message        `json:"messages" yaml:"messages"`
}

// EventType discriminates StreamEvent variants.
type EventType string

const (
	EventDelta          EventType = "delta"
	EventReasoningDelta EventType = "reasoningDelta"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// StreamEvent is the provider-independent event emitted while a run streams.
type StreamEvent struct {
	Type    EventType `json:"type"`
	Text    string    `json:"text,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Delta builds a text delta event.
func Delta(text string) StreamEvent {
	return StreamEvent{Type: EventDelta, Text: text}
}

// ReasoningDelta builds a reasoning ("thinking") delta event.
func ReasoningDelta(text string) StreamEvent {
	return StreamEvent{Type: EventReasoningDelta, Text: text}
}

// Done builds the successful terminal event.
func Done() StreamEvent {
	return StreamEvent{Type: EventDone}
}

// Failure builds the failed terminal event.
func Failure(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

// IsTerminal reports whether no further events may follow e.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// IsContent reports whether e carries text shown to the user.
func (e StreamEvent) IsContent() bool {
	return e.Type == EventDelta || e.Type == EventReasoningDelta
}

// RunEvent is a StreamEvent stamped with its run and position in the run.
type RunEvent struct {
	RunID string      `json:"runId"`
	Seq   uint64      `json:"seq"`
	Event StreamEvent `json:"event"`
}

// Attempt carries everything an adapter needs for one provider call.
type Attempt struct {
	Number   int // zero-based
	KeyIndex int
	APIKey   string
	Settings ProviderSettings
	Messages []Message
}

// ModelInfo describes a model a provider can serve.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
}

// AgentStatus reports whether the CLI agent runtime can be used.
type AgentStatus struct {
	Available bool   `json:"available"`
	Binary    string `json:"binary"`
	Path      string `json:"path,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunHandle tracks one dispatched run. The orchestrator owns it.
type RunHandle struct {
	ID string

	cancel     context.CancelFunc
	seq        atomic.Uint64
	terminated atomic.Bool
	done       chan struct{}
	doneOnce   sync.Once
}

func newRunHandle(id string, cancel context.CancelFunc) *RunHandle {
	return &RunHandle{
		ID:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Done is closed once the run has emitted its terminal event and been deregistered.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Seq returns the sequence number of the last emitted event.
func (h *RunHandle) Seq() uint64 {
	return h.seq.Load()
}

func (h *RunHandle) nextSeq() uint64 {
	return h.seq.Add(1)
}

func (h *RunHandle) stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *RunHandle) finish() {
	h.doneOnce.Do(func() { close(h.done) })
}
