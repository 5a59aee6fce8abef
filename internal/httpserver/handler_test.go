package httpserver_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/chatrelay/internal/config"
	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/httpserver"
	"github.com/davidbz/chatrelay/internal/mocks"
	"github.com/davidbz/chatrelay/internal/provider/openai"
	"github.com/davidbz/chatrelay/internal/provider/registry"
	"github.com/davidbz/chatrelay/internal/provider/sse"
)

var defaultProvider = &config.ProviderConfig{
	Kind:    "openai-compatible",
	BaseURL: "http://provider.invalid/v1",
	APIKeys: "k1",
	Model:   "default-model",
}

// listingAdapter adds model listing to a mock adapter.
type listingAdapter struct {
	*mocks.MockAdapter
	models []domain.ModelInfo
}

func (l *listingAdapter) ListModels(_ context.Context, _ domain.ProviderSettings) ([]domain.ModelInfo, error) {
	return l.models, nil
}

func newTestHandler(t *testing.T, adapters ...domain.Adapter) (*httpserver.Handler, *domain.Orchestrator) {
	t.Helper()

	return newTestHandlerWithDefaults(t, defaultProvider, adapters...)
}

func newTestHandlerWithDefaults(
	t *testing.T,
	defaults *config.ProviderConfig,
	adapters ...domain.Adapter,
) (*httpserver.Handler, *domain.Orchestrator) {
	t.Helper()

	reg := registry.NewRegistry()
	for _, adapter := range adapters {
		require.NoError(t, reg.Register(context.Background(), adapter))
	}

	publisher := mocks.NewMockEventPublisher(t)
	publisher.EXPECT().Publish(mock.Anything, mock.Anything, mock.Anything).Maybe()

	orchestrator := domain.NewOrchestrator(reg, domain.NewRunRegistry(), domain.NewController(), publisher)
	return httpserver.NewHandler(orchestrator, defaults, nil), orchestrator
}

// recordingUpstream is an OpenAI-compatible endpoint that records what it
// was sent and answers with a single finished delta.
type recordingUpstream struct {
	mu     sync.Mutex
	auth   []string
	bodies []map[string]any
}

func (u *recordingUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	u.mu.Lock()
	u.auth = append(u.auth, r.Header.Get("Authorization"))
	u.bodies = append(u.bodies, body)
	u.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"content":"ok"},"finish_reason":"stop"}]}`+"\n\n")
}

func (u *recordingUpstream) Seen() ([]string, []map[string]any) {
	u.mu.Lock()
	defer u.mu.Unlock()

	return append([]string(nil), u.auth...), append([]map[string]any(nil), u.bodies...)
}

func serveUpstream(t *testing.T) (*recordingUpstream, *httptest.Server) {
	t.Helper()

	upstream := &recordingUpstream{}
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)
	return upstream, server
}

func newOpenAIMock(t *testing.T) *mocks.MockAdapter {
	t.Helper()

	adapter := mocks.NewMockAdapter(t)
	adapter.EXPECT().Kind().Return(domain.ProviderOpenAICompatible)
	return adapter
}

type sseFrame struct {
	Event string
	Data  string
}

func readFrames(t *testing.T, body io.Reader) []sseFrame {
	t.Helper()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	var frames []sseFrame
	for _, block := range strings.Split(strings.TrimSpace(string(raw)), "\n\n") {
		var frame sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				frame.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				frame.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		frames = append(frames, frame)
	}
	return frames
}

func decodeRunEvent(t *testing.T, data string) domain.RunEvent {
	t.Helper()

	var event domain.RunEvent
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	return event
}

func postRun(t *testing.T, server *httptest.Server, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(server.URL+"/v1/runs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHandleStartRun(t *testing.T) {
	t.Run("should stream the run id frame then every event until done", func(t *testing.T) {
		adapter := newOpenAIMock(t)
		adapter.EXPECT().Stream(mock.Anything, mock.Anything, mock.Anything).
			RunAndReturn(func(_ context.Context, attempt domain.Attempt, emit domain.EmitFunc) error {
				emit(domain.Delta("model=" + attempt.Settings.Model))
				emit(domain.Delta(" key=" + attempt.APIKey))
				return nil
			})

		handler, _ := newTestHandler(t, adapter)
		server := httptest.NewServer(handler.Routes())
		defer server.Close()

		resp := postRun(t, server, `{"settings":{"model":"override"},"messages":[{"role":"user","content":"hi"}]}`)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		frames := readFrames(t, resp.Body)
		require.Len(t, frames, 4)

		require.Equal(t, "run", frames[0].Event)
		var header map[string]string
		require.NoError(t, json.Unmarshal([]byte(frames[0].Data), &header))
		runID := header["runId"]
		require.NotEmpty(t, runID)
		require.Equal(t, runID, resp.Header.Get("X-Run-Id"))

		first := decodeRunEvent(t, frames[1].Data)
		require.Equal(t, domain.RunEvent{RunID: runID, Seq: 1, Event: domain.Delta("model=override")}, first)
		require.Equal(t, domain.Delta(" key=k1"), decodeRunEvent(t, frames[2].Data).Event)
		last := decodeRunEvent(t, frames[3].Data)
		require.Equal(t, domain.Done(), last.Event)
		require.Equal(t, uint64(3), last.Seq)
	})

	t.Run("should stream a single error event when the provider fails", func(t *testing.T) {
		adapter := newOpenAIMock(t)
		adapter.EXPECT().Stream(mock.Anything, mock.Anything, mock.Anything).
			Return(&domain.ProtocolError{Message: "bad frame"}).Once()

		handler, _ := newTestHandler(t, adapter)
		server := httptest.NewServer(handler.Routes())
		defer server.Close()

		resp := postRun(t, server, `{"messages":[{"role":"user","content":"hi"}]}`)

		frames := readFrames(t, resp.Body)
		require.Len(t, frames, 2)
		require.Equal(t, domain.Failure("bad frame"), decodeRunEvent(t, frames[1].Data).Event)
	})

	t.Run("should reject runs for unregistered providers before streaming", func(t *testing.T) {
		handler, _ := newTestHandler(t, newOpenAIMock(t))
		server := httptest.NewServer(handler.Routes())
		defer server.Close()

		resp := postRun(t, server,
			`{"settings":{"providerKind":"anthropic","baseUrl":"http://x","apiKey":"k","model":"m"},"messages":[]}`)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Contains(t, body["error"], "configuration error (anthropic)")
	})

	t.Run("should not send the configured key to a caller supplied base url", func(t *testing.T) {
		_, trusted := serveUpstream(t)
		other, untrusted := serveUpstream(t)

		handler, _ := newTestHandlerWithDefaults(t, &config.ProviderConfig{
			Kind:    "openai-compatible",
			BaseURL: trusted.URL,
			APIKeys: "sk-server-secret",
			Model:   "gpt-test",
		}, openai.NewAdapter(sse.NewRunner(nil)))
		server := httptest.NewServer(handler.Routes())
		defer server.Close()

		resp := postRun(t, server,
			`{"settings":{"baseUrl":"`+untrusted.URL+`"},"messages":[{"role":"user","content":"hi"}]}`)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Contains(t, body["error"], "API key is required")

		auth, _ := other.Seen()
		require.Empty(t, auth)
	})

	t.Run("should not carry the configured key or base url to another provider kind", func(t *testing.T) {
		trustedUpstream, trusted := serveUpstream(t)

		handler, _ := newTestHandlerWithDefaults(t, &config.ProviderConfig{
			Kind:    "openai-compatible",
			BaseURL: trusted.URL,
			APIKeys: "sk-server-secret",
			Model:   "gpt-test",
		}, openai.NewAdapter(sse.NewRunner(nil)))
		server := httptest.NewServer(handler.Routes())
		defer server.Close()

		resp := postRun(t, server, `{"settings":{"providerKind":"anthropic"},"messages":[{"role":"user","content":"hi"}]}`)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Contains(t, body["error"], "configuration error (anthropic): base URL is required")

		auth, _ := trustedUpstream.Seen()
		require.Empty(t, auth)
	})

	t.Run("should forward explicit zero settings upstream", func(t *testing.T) {
		upstream, trusted := serveUpstream(t)

		handler, _ := newTestHandlerWithDefaults(t, &config.ProviderConfig{
			Kind:             "openai-compatible",
			BaseURL:          trusted.URL,
			APIKeys:          "sk-server-secret",
			Model:            "gpt-test",
			Temperature:      0.7,
			RequestTimeoutMs: 60000,
			RetryCount:       1,
		}, openai.NewAdapter(sse.NewRunner(nil)))
		server := httptest.NewServer(handler.Routes())
		defer server.Close()

		resp := postRun(t, server,
			`{"settings":{"temperature":0,"retryCount":0,"requestTimeoutMs":0},"messages":[{"role":"user","content":"hi"}]}`)

		frames := readFrames(t, resp.Body)
		require.Equal(t, domain.Done(), decodeRunEvent(t, frames[len(frames)-1].Data).Event)

		auth, bodies := upstream.Seen()
		require.Equal(t, []string{"Bearer sk-server-secret"}, auth)
		require.InDelta(t, 0.0, bodies[0]["temperature"], 0)
	})

	t.Run("should reject malformed bodies", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		w := httptest.NewRecorder()
		handler.HandleStartRun(w, httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString("{")))

		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, w.Body.String(), "invalid request body")
	})

	t.Run("should stop the run when the client disconnects", func(t *testing.T) {
		started := make(chan struct{})
		adapter := newOpenAIMock(t)
		adapter.EXPECT().Stream(mock.Anything, mock.Anything, mock.Anything).
			RunAndReturn(func(ctx context.Context, _ domain.Attempt, emit domain.EmitFunc) error {
				emit(domain.Delta("working"))
				close(started)
				<-ctx.Done()
				return ctx.Err()
			})

		handler, orchestrator := newTestHandler(t, adapter)
		server := httptest.NewServer(handler.Routes())
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL+"/v1/runs",
			strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		line, err := bufio.NewReader(resp.Body).ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, "event: run\n", line)

		<-started
		require.Len(t, orchestrator.ActiveRuns(), 1)

		cancel()
		require.Eventually(t, func() bool {
			return len(orchestrator.ActiveRuns()) == 0
		}, 5*time.Second, 10*time.Millisecond)
	})
}

func TestHandleStopRun(t *testing.T) {
	t.Run("should accept unknown run ids", func(t *testing.T) {
		handler, _ := newTestHandler(t)
		server := httptest.NewServer(handler.Routes())
		defer server.Close()

		for range 2 {
			resp, err := http.Post(server.URL+"/v1/runs/does-not-exist/stop", "application/json", nil)
			require.NoError(t, err)
			_ = resp.Body.Close()
			require.Equal(t, http.StatusNoContent, resp.StatusCode)
		}
	})
}

func TestHandleRunEvents(t *testing.T) {
	t.Run("should report a disabled journal", func(t *testing.T) {
		handler, _ := newTestHandler(t)
		server := httptest.NewServer(handler.Routes())
		defer server.Close()

		resp, err := http.Get(server.URL + "/v1/runs/abc/events")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHandleModels(t *testing.T) {
	t.Run("should list models of the default provider", func(t *testing.T) {
		adapter := &listingAdapter{
			MockAdapter: newOpenAIMock(t),
			models:      []domain.ModelInfo{{ID: "gpt-4o"}},
		}
		handler, _ := newTestHandler(t, adapter)

		w := httptest.NewRecorder()
		handler.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"provider":"openai-compatible","models":[{"id":"gpt-4o"}]}`, w.Body.String())
	})

	t.Run("should report providers that cannot list models", func(t *testing.T) {
		handler, _ := newTestHandler(t, newOpenAIMock(t))

		w := httptest.NewRecorder()
		handler.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models?provider=openai-compatible", nil))

		require.Equal(t, http.StatusNotImplemented, w.Code)
	})
}

func TestHandleAgent(t *testing.T) {
	t.Run("should report a missing agent adapter", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		w := httptest.NewRecorder()
		handler.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/agent", nil))

		require.Equal(t, http.StatusNotImplemented, w.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	handler, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"healthy","active_runs":0}`, w.Body.String())
}
