package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/provider/openai"
	"github.com/davidbz/chatrelay/internal/provider/sse"
)

type capturedRequest struct {
	Path          string
	Authorization string
	Body          map[string]any
}

// fakeCompletions serves scripted SSE chunks per bearer key.
type fakeCompletions struct {
	mu       sync.Mutex
	requests []capturedRequest
	chunks   map[string][]string
	status   map[string]int
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	auth := r.Header.Get("Authorization")
	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{Path: r.URL.Path, Authorization: auth, Body: body})
	f.mu.Unlock()

	if status, ok := f.status[auth]; ok {
		http.Error(w, `{"error":{"message":"invalid key"}}`, status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for _, chunk := range f.chunks[auth] {
		_, _ = fmt.Fprint(w, chunk)
		flusher.Flush()
	}
}

func (f *fakeCompletions) Requests() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]capturedRequest(nil), f.requests...)
}

func settingsFor(baseURL, keys string) domain.ProviderSettings {
	return domain.ProviderSettings{
		Kind:           domain.ProviderOpenAICompatible,
		BaseURL:        baseURL,
		APIKeyMaterial: keys,
		Model:          "gpt-test",
	}
}

func collectStream(t *testing.T, adapter *openai.Adapter, settings domain.ProviderSettings) ([]domain.StreamEvent, error) {
	t.Helper()

	var events []domain.StreamEvent
	err := adapter.Stream(context.Background(), domain.Attempt{
		APIKey:   settings.APIKeys()[0],
		Settings: settings,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "be brief"},
			{Role: domain.RoleUser, Content: "hi"},
		},
	}, func(event domain.StreamEvent) {
		events = append(events, event)
	})
	return events, err
}

func TestAdapter_Stream(t *testing.T) {
	t.Run("should stream deltas split across chunk boundaries", func(t *testing.T) {
		fake := &fakeCompletions{chunks: map[string][]string{
			"Bearer k1": {
				`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n" + `data: {"choices":[{"del`,
				`ta":{"content":"lo"}}]}` + "\n\n",
				"data: [DONE]\n\n",
			},
		}}
		server := httptest.NewServer(fake)
		defer server.Close()

		events, err := collectStream(t, openai.NewAdapter(sse.NewRunner(server.Client())), settingsFor(server.URL+"/", "k1"))

		require.NoError(t, err)
		require.Equal(t, []domain.StreamEvent{domain.Delta("Hel"), domain.Delta("lo")}, events)

		requests := fake.Requests()
		require.Len(t, requests, 1)
		require.Equal(t, "/chat/completions", requests[0].Path)
		require.Equal(t, "gpt-test", requests[0].Body["model"])
		require.Equal(t, true, requests[0].Body["stream"])
		require.Len(t, requests[0].Body["messages"], 2)
	})

	t.Run("should ignore frames after DONE", func(t *testing.T) {
		fake := &fakeCompletions{chunks: map[string][]string{
			"Bearer k1": {
				`data: {"choices":[{"delta":{"content":"a"}}]}` + "\n",
				"data: [DONE]\n",
				`data: {"choices":[{"delta":{"content":"late"}}]}` + "\n",
				"data: [DONE]\n",
			},
		}}
		server := httptest.NewServer(fake)
		defer server.Close()

		events, err := collectStream(t, openai.NewAdapter(sse.NewRunner(server.Client())), settingsFor(server.URL, "k1"))

		require.NoError(t, err)
		require.Equal(t, []domain.StreamEvent{domain.Delta("a")}, events)
	})

	t.Run("should emit final delta before finish reason ends the stream", func(t *testing.T) {
		fake := &fakeCompletions{chunks: map[string][]string{
			"Bearer k1": {
				`data: {"choices":[{"delta":{"reasoning_content":"plan"}}]}` + "\n",
				`data: {"choices":[{"delta":{"content":"end"},"finish_reason":"stop"}]}` + "\n",
				`data: {"choices":[{"delta":{"content":"never"}}]}` + "\n",
			},
		}}
		server := httptest.NewServer(fake)
		defer server.Close()

		events, err := collectStream(t, openai.NewAdapter(sse.NewRunner(server.Client())), settingsFor(server.URL, "k1"))

		require.NoError(t, err)
		require.Equal(t, []domain.StreamEvent{domain.ReasoningDelta("plan"), domain.Delta("end")}, events)
	})

	t.Run("should treat any non-null finish reason as the end of the stream", func(t *testing.T) {
		fake := &fakeCompletions{chunks: map[string][]string{
			"Bearer k1": {
				`data: {"choices":[{"delta":{"content":"a"},"finish_reason":null}]}` + "\n",
				`data: {"choices":[{"delta":{"content":"b"},"finish_reason":""}]}` + "\n",
				`data: {"choices":[{"delta":{"content":"never"}}]}` + "\n",
			},
		}}
		server := httptest.NewServer(fake)
		defer server.Close()

		events, err := collectStream(t, openai.NewAdapter(sse.NewRunner(server.Client())), settingsFor(server.URL, "k1"))

		require.NoError(t, err)
		require.Equal(t, []domain.StreamEvent{domain.Delta("a"), domain.Delta("b")}, events)
	})

	t.Run("should send an explicit zero temperature", func(t *testing.T) {
		fake := &fakeCompletions{chunks: map[string][]string{"Bearer k1": {"data: [DONE]\n"}}}
		server := httptest.NewServer(fake)
		defer server.Close()

		_, err := collectStream(t, openai.NewAdapter(sse.NewRunner(server.Client())), settingsFor(server.URL, "k1"))

		require.NoError(t, err)
		require.Contains(t, fake.Requests()[0].Body, "temperature")
		require.InDelta(t, 0.0, fake.Requests()[0].Body["temperature"], 0)
	})

	t.Run("should skip malformed payloads and surface embedded errors", func(t *testing.T) {
		fake := &fakeCompletions{chunks: map[string][]string{
			"Bearer k1": {
				"data: {not json\n",
				": comment\n",
				`data: {"error":{"message":"quota exceeded"}}` + "\n",
			},
		}}
		server := httptest.NewServer(fake)
		defer server.Close()

		events, err := collectStream(t, openai.NewAdapter(sse.NewRunner(server.Client())), settingsFor(server.URL, "k1"))

		require.Empty(t, events)
		require.EqualError(t, err, "quota exceeded")
		var providerErr *domain.ProviderError
		require.ErrorAs(t, err, &providerErr)
	})
}

func TestAdapter_WithController(t *testing.T) {
	t.Run("should fail over to the next key and finish with done", func(t *testing.T) {
		fake := &fakeCompletions{
			status: map[string]int{"Bearer bad": http.StatusUnauthorized},
			chunks: map[string][]string{
				"Bearer good": {
					`data: {"choices":[{"delta":{"content":"Hi"}}]}` + "\n",
					`data: {"choices":[{"delta":{"content":" there"}}]}` + "\n",
					"data: [DONE]\n",
				},
			},
		}
		server := httptest.NewServer(fake)
		defer server.Close()

		var events []domain.StreamEvent
		domain.NewController().Execute(context.Background(),
			openai.NewAdapter(sse.NewRunner(server.Client())),
			domain.RunRequest{
				Settings: settingsFor(server.URL, "bad, good"),
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
			},
			func(event domain.StreamEvent) { events = append(events, event) })

		require.Equal(t, []domain.StreamEvent{
			domain.Delta("Hi"),
			domain.Delta(" there"),
			domain.Done(),
		}, events)

		requests := fake.Requests()
		require.Len(t, requests, 2)
		require.Equal(t, "Bearer bad", requests[0].Authorization)
		require.Equal(t, "Bearer good", requests[1].Authorization)
	})

	t.Run("should surface the last status error when every key fails", func(t *testing.T) {
		fake := &fakeCompletions{status: map[string]int{
			"Bearer a": http.StatusUnauthorized,
			"Bearer b": http.StatusForbidden,
		}}
		server := httptest.NewServer(fake)
		defer server.Close()

		var events []domain.StreamEvent
		domain.NewController().Execute(context.Background(),
			openai.NewAdapter(sse.NewRunner(server.Client())),
			domain.RunRequest{Settings: settingsFor(server.URL, "a,b")},
			func(event domain.StreamEvent) { events = append(events, event) })

		require.Len(t, events, 1)
		require.Equal(t, domain.EventError, events[0].Type)
		require.Equal(t, `HTTP 403: {"error":{"message":"invalid key"}}`, events[0].Message)
	})
}

func TestAdapter_ListModels(t *testing.T) {
	t.Run("should list models through the SDK", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/models" || r.Header.Get("Authorization") != "Bearer k1" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{"object":"list","data":[`+
				`{"id":"gpt-4o","object":"model","created":1,"owned_by":"openai"},`+
				`{"id":"gpt-4o-mini","object":"model","created":2,"owned_by":"openai"}]}`)
		}))
		defer server.Close()

		adapter := openai.NewAdapter(sse.NewRunner(nil))
		models, err := adapter.ListModels(context.Background(), settingsFor(server.URL+"/v1", "k1,k2"))

		require.NoError(t, err)
		require.Equal(t, []domain.ModelInfo{{ID: "gpt-4o"}, {ID: "gpt-4o-mini"}}, models)
	})

	t.Run("should require a key", func(t *testing.T) {
		adapter := openai.NewAdapter(sse.NewRunner(nil))

		_, err := adapter.ListModels(context.Background(), settingsFor("http://localhost", ""))
		require.ErrorIs(t, err, domain.ErrProviderNotConfigured)
	})
}

func TestAdapter_Kind(t *testing.T) {
	require.Equal(t, domain.ProviderOpenAICompatible, openai.NewAdapter(nil).Kind())
}
