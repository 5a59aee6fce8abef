package cliagent

import (
	"encoding/json"

	"github.com/davidbz/chatrelay/internal/domain"
)

// probeMachine sends initialize and, when follow is set, one more request,
// and finishes with that request's result.
type probeMachine struct {
	client  clientInfo
	follow  string
	params  any
	pending *pendingRequests
	result  json.RawMessage
	done    bool
}

func newProbeMachine(client clientInfo, follow string, params any) *probeMachine {
	return &probeMachine{
		client:  client,
		follow:  follow,
		params:  params,
		pending: newPendingRequests(),
	}
}

func (m *probeMachine) Start() []any {
	return []any{m.pending.request(methodInitialize, initializeParams{
		ClientInfo:   m.client,
		Capabilities: map[string]any{},
	})}
}

func (m *probeMachine) Handle(line []byte) step {
	msg, ok := parseInbound(line)
	if !ok || m.done {
		return step{}
	}

	if common, handled := handleCommon(msg); handled {
		if common.Err != nil {
			m.done = true
		}
		return common
	}
	if !msg.hasID() {
		return step{}
	}

	method, ok := m.pending.resolve(msg)
	if !ok {
		return step{}
	}

	if method == methodInitialize && m.follow != "" {
		return step{Outbound: []any{
			newNotification(methodInitialized, nil),
			m.pending.request(m.follow, m.params),
		}}
	}

	m.result = msg.Result
	m.done = true
	return step{Done: true}
}

type initializeResult struct {
	UserAgent string `json:"userAgent"`
}

type modelListResult struct {
	Data []struct {
		ID          string `json:"id"`
		Model       string `json:"model"`
		DisplayName string `json:"displayName"`
	} `json:"data"`
}

func decodeUserAgent(raw json.RawMessage) string {
	var result initializeResult
	_ = json.Unmarshal(raw, &result)
	return result.UserAgent
}

func decodeModels(raw json.RawMessage) ([]domain.ModelInfo, error) {
	var result modelListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &domain.ProtocolError{Message: "invalid model/list result", Cause: err}
	}

	models := make([]domain.ModelInfo, 0, len(result.Data))
	for _, entry := range result.Data {
		id := entry.ID
		if id == "" {
			id = entry.Model
		}
		if id == "" {
			continue
		}
		models = append(models, domain.ModelInfo{ID: id, DisplayName: entry.DisplayName})
	}
	return models, nil
}
