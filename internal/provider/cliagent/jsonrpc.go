package cliagent

import (
	"encoding/json"
	"sync/atomic"
)

// App-server methods used by the relay.
const (
	methodInitialize   = "initialize"
	methodInitialized  = "initialized"
	methodThreadStart  = "thread/start"
	methodTurnStart    = "turn/start"
	methodModelList    = "model/list"
	methodAgentDelta   = "item/agentMessage/delta"
	methodItemDone     = "item/completed"
	methodReasoning    = "item/reasoning/textDelta"
	methodSummaryDelta = "item/reasoning/summaryTextDelta"
	methodError        = "error"
	methodTurnDone     = "turn/completed"
)

const errCodeMethodNotFound = -32601

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// inbound is any message read from the agent.
// Requests carry method and id, responses only id, notifications only method.
type inbound struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (m *inbound) hasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

// numericID returns the id as an int64 when it is a JSON number.
func (m *inbound) numericID() (int64, bool) {
	var id int64
	if err := json.Unmarshal(m.ID, &id); err != nil {
		return 0, false
	}
	return id, true
}

type idGenerator struct {
	next atomic.Int64
}

func (g *idGenerator) Next() int64 {
	return g.next.Add(1)
}

func newRequest(id int64, method string, params any) *rpcRequest {
	return &rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

func newNotification(method string, params any) *rpcNotification {
	return &rpcNotification{JSONRPC: "2.0", Method: method, Params: params}
}

func newMethodNotFound(id json.RawMessage, method string) *rpcResponse {
	return &rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: errCodeMethodNotFound, Message: "method not found: " + method},
	}
}

// pendingRequests tracks which method each outstanding request id belongs to.
type pendingRequests struct {
	ids     idGenerator
	methods map[int64]string
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{methods: make(map[int64]string)}
}

func (p *pendingRequests) request(method string, params any) *rpcRequest {
	id := p.ids.Next()
	p.methods[id] = method
	return newRequest(id, method, params)
}

// resolve returns and forgets the method for a response id.
func (p *pendingRequests) resolve(msg *inbound) (string, bool) {
	id, ok := msg.numericID()
	if !ok {
		return "", false
	}
	method, ok := p.methods[id]
	if ok {
		delete(p.methods, id)
	}
	return method, ok
}
