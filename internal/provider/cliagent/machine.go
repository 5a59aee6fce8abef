package cliagent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/davidbz/chatrelay/internal/domain"
)

// turnState is the position of a turn in the app-server handshake.
type turnState int

const (
	stateAwaitingInit turnState = iota
	stateAwaitingThreadStart
	stateAwaitingTurnStart
	stateStreaming
	stateDone
)

func (s turnState) String() string {
	switch s {
	case stateAwaitingInit:
		return "awaiting-init"
	case stateAwaitingThreadStart:
		return "awaiting-thread-start"
	case stateAwaitingTurnStart:
		return "awaiting-turn-start"
	case stateStreaming:
		return "streaming"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// step is what the driver must do after one inbound line.
type step struct {
	Outbound []any
	Events   []domain.StreamEvent
	Done     bool
	Err      error
	Notice   string
}

// protocol is a conversation with the agent driven one line at a time.
type protocol interface {
	Start() []any
	Handle(line []byte) step
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ClientInfo   clientInfo     `json:"clientInfo"`
	Capabilities map[string]any `json:"capabilities"`
}

type threadStartParams struct {
	Model     string `json:"model,omitempty"`
	CWD       string `json:"cwd"`
	Ephemeral bool   `json:"ephemeral"`
}

type userInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type turnStartParams struct {
	ThreadID string      `json:"threadId"`
	Input    []userInput `json:"input"`
	CWD      string      `json:"cwd"`
	Model    string      `json:"model,omitempty"`
}

type threadStartResult struct {
	Thread *struct {
		ID string `json:"id"`
	} `json:"thread"`
	ThreadID string `json:"threadId"`
}

type deltaParams struct {
	Delta string `json:"delta"`
}

type itemCompletedParams struct {
	Item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

type errorParams struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message   string `json:"message"`
	WillRetry bool   `json:"willRetry"`
}

type turnCompletedParams struct {
	Turn struct {
		Status string `json:"status"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"turn"`
}

// turnMachine runs initialize, thread/start and turn/start, then maps
// streaming notifications to events until the turn completes.
type turnMachine struct {
	client       clientInfo
	model        string
	cwd          string
	history      string
	state        turnState
	pending      *pendingRequests
	threadID     string
	emittedDelta bool
}

func newTurnMachine(client clientInfo, model, cwd string, messages []domain.Message) *turnMachine {
	return &turnMachine{
		client:  client,
		model:   strings.TrimSpace(model),
		cwd:     cwd,
		history: formatHistory(messages),
		state:   stateAwaitingInit,
		pending: newPendingRequests(),
	}
}

// Start returns the opening initialize request.
func (m *turnMachine) Start() []any {
	return []any{m.pending.request(methodInitialize, initializeParams{
		ClientInfo:   m.client,
		Capabilities: map[string]any{},
	})}
}

// Handle advances the machine with one line from the agent.
func (m *turnMachine) Handle(line []byte) step {
	msg, ok := parseInbound(line)
	if !ok || m.state == stateDone {
		return step{}
	}

	if common, handled := handleCommon(msg); handled {
		if common.Err != nil {
			m.state = stateDone
		}
		return common
	}

	if msg.hasID() {
		return m.handleResponse(msg)
	}
	return m.handleNotification(msg)
}

func (m *turnMachine) handleResponse(msg *inbound) step {
	method, ok := m.pending.resolve(msg)
	if !ok {
		return step{}
	}

	switch method {
	case methodInitialize:
		m.state = stateAwaitingThreadStart
		return step{Outbound: []any{
			newNotification(methodInitialized, nil),
			m.pending.request(methodThreadStart, threadStartParams{
				Model:     m.model,
				CWD:       m.cwd,
				Ephemeral: true,
			}),
		}}

	case methodThreadStart:
		var result threadStartResult
		_ = json.Unmarshal(msg.Result, &result)
		threadID := result.ThreadID
		if result.Thread != nil && result.Thread.ID != "" {
			threadID = result.Thread.ID
		}
		if threadID == "" {
			m.state = stateDone
			return step{Err: &domain.ProtocolError{Message: "thread/start response did not include a thread id"}}
		}

		m.threadID = threadID
		m.state = stateAwaitingTurnStart
		return step{Outbound: []any{
			m.pending.request(methodTurnStart, turnStartParams{
				ThreadID: threadID,
				Input:    []userInput{{Type: "text", Text: m.history}},
				CWD:      m.cwd,
				Model:    m.model,
			}),
		}}

	case methodTurnStart:
		if m.state == stateAwaitingTurnStart {
			m.state = stateStreaming
		}
	}

	return step{}
}

func (m *turnMachine) handleNotification(msg *inbound) step {
	switch msg.Method {
	case methodAgentDelta:
		var params deltaParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.Delta == "" {
			return step{}
		}
		m.emittedDelta = true
		return step{Events: []domain.StreamEvent{domain.Delta(params.Delta)}}

	case methodReasoning, methodSummaryDelta:
		var params deltaParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.Delta == "" {
			return step{}
		}
		return step{Events: []domain.StreamEvent{domain.ReasoningDelta(params.Delta)}}

	case methodItemDone:
		var params itemCompletedParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return step{}
		}
		if params.Item.Type != "agentMessage" || m.emittedDelta || params.Item.Text == "" {
			return step{}
		}
		m.emittedDelta = true
		return step{Events: []domain.StreamEvent{domain.Delta(params.Item.Text)}}

	case methodError:
		var params errorParams
		_ = json.Unmarshal(msg.Params, &params)
		message := params.Message
		if params.Error != nil && params.Error.Message != "" {
			message = params.Error.Message
		}
		if params.WillRetry {
			return step{Notice: "agent retrying after error: " + message}
		}
		if message == "" {
			message = "agent reported an error"
		}
		m.state = stateDone
		return step{Err: &domain.ProviderError{Message: message}}

	case methodTurnDone:
		var params turnCompletedParams
		_ = json.Unmarshal(msg.Params, &params)
		m.state = stateDone
		if params.Turn.Status == "completed" {
			return step{Done: true}
		}
		message := fmt.Sprintf("turn ended with status %q", params.Turn.Status)
		if params.Turn.Error != nil && params.Turn.Error.Message != "" {
			message = params.Turn.Error.Message
		}
		return step{Err: &domain.ProviderError{Message: message}}
	}

	return step{}
}

// parseInbound decodes a line; blank or malformed lines are ignored.
func parseInbound(line []byte) (*inbound, bool) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, false
	}
	var msg inbound
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return nil, false
	}
	return &msg, true
}

// handleCommon covers rules shared by every protocol: a top-level error is
// fatal, and agent-originated requests are refused.
func handleCommon(msg *inbound) (step, bool) {
	if msg.Error != nil && msg.Error.Message != "" {
		return step{Err: &domain.ProtocolError{Message: "agent error: " + msg.Error.Message}}, true
	}
	if msg.Method != "" && msg.hasID() {
		return step{Outbound: []any{newMethodNotFound(msg.ID, msg.Method)}}, true
	}
	return step{}, false
}

// formatHistory renders the conversation as "[ROLE]\ncontent" blocks.
func formatHistory(messages []domain.Message) string {
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		text := strings.TrimSpace(msg.Text())
		if text == "" {
			continue
		}
		blocks = append(blocks, "["+strings.ToUpper(msg.Role)+"]\n"+text)
	}
	return strings.Join(blocks, "\n\n")
}
