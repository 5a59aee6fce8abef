package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/davidbz/chatrelay/internal/config"
	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/journal"
	"github.com/davidbz/chatrelay/internal/observability"
)

const runEventBuffer = 64

// Handler handles HTTP requests.
type Handler struct {
	orchestrator *domain.Orchestrator
	defaults     domain.ProviderSettings
	journal      *journal.Journal
}

// NewHandler creates a new HTTP handler (DI constructor). A nil journal
// disables event replay.
func NewHandler(
	orchestrator *domain.Orchestrator,
	providerConfig *config.ProviderConfig,
	runJournal *journal.Journal,
) *Handler {
	var defaults domain.ProviderSettings
	if providerConfig != nil {
		defaults = providerConfig.Settings()
	}
	return &Handler{
		orchestrator: orchestrator,
		defaults:     defaults,
		journal:      runJournal,
	}
}

// Routes registers the relay endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", h.HandleStartRun)
	mux.HandleFunc("POST /v1/runs/{id}/stop", h.HandleStopRun)
	mux.HandleFunc("GET /v1/runs/{id}/events", h.HandleRunEvents)
	mux.HandleFunc("GET /v1/models", h.HandleModels)
	mux.HandleFunc("GET /v1/agent", h.HandleAgent)
	mux.HandleFunc("GET /health", h.HandleHealth)
	return mux
}

// HandleStartRun starts a run and streams its events as server-sent events.
// The first frame names the run; the stream ends after the terminal event.
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input domain.RunInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	req := input.Resolve(h.defaults)

	ctx = observability.WithProvider(ctx, string(req.Settings.Kind))
	ctx = observability.WithModel(ctx, req.Settings.Model)
	logger := observability.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	gone := make(chan struct{})
	defer close(gone)

	events := make(chan domain.RunEvent, runEventBuffer)
	var sink domain.EventSink = domain.EventSinkFunc(func(_ context.Context, event domain.RunEvent) {
		select {
		case events <- event:
		case <-gone:
		}
	})
	if h.journal != nil {
		sink = h.journal.Sink(sink)
	}

	handle, err := h.orchestrator.StartRun(ctx, req, sink)
	if err != nil {
		var configErr *domain.ConfigError
		if errors.As(err, &configErr) {
			logger.Info("run rejected", observability.Error(err))
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("failed to start run", observability.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("run stream started",
		observability.String("run_id", handle.ID),
		observability.Int("messages", len(req.Messages)))

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Run-Id", handle.ID)

	header, _ := json.Marshal(map[string]string{"runId": handle.ID})
	_, _ = fmt.Fprintf(w, "event: run\ndata: %s\n\n", header)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected.
			logger.Info("client disconnected, stopping run", observability.String("run_id", handle.ID))
			h.orchestrator.StopRun(handle.ID)
			return

		case event := <-events:
			data, _ := json.Marshal(event)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()

			if event.Event.IsTerminal() {
				logger.Info("run stream completed",
					observability.String("run_id", handle.ID),
					observability.String("status", string(event.Event.Type)))
				return
			}
		}
	}
}

// HandleStopRun cancels a run. It always succeeds.
func (h *Handler) HandleStopRun(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.StopRun(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// HandleRunEvents replays the journaled events of a run.
func (h *Handler) HandleRunEvents(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "run journal is disabled")
		return
	}

	runID := r.PathValue("id")
	events, err := h.journal.Replay(r.Context(), runID)
	if errors.Is(err, journal.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).Error("replay failed", observability.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "events": events})
}

// HandleModels lists the models of the default provider, or of the kind
// named by the provider query parameter.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	settings := domain.SettingsOverrides{
		Kind: domain.ProviderKind(r.URL.Query().Get("provider")),
	}.Resolve(h.defaults)

	models, err := h.orchestrator.ListModels(r.Context(), settings)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"provider": settings.Kind, "models": models})
	case errors.Is(err, domain.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, domain.ErrProviderNotConfigured):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		observability.FromContext(r.Context()).Warn("model listing failed", observability.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// HandleAgent reports whether the CLI agent runtime is usable.
func (h *Handler) HandleAgent(w http.ResponseWriter, r *http.Request) {
	status, err := h.orchestrator.CheckAgent(r.Context())
	if err != nil {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"active_runs": len(h.orchestrator.ActiveRuns()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Already written status, can't change it.
		return
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
