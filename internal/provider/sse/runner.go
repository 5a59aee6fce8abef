// Package sse runs one streaming HTTP attempt against an SSE endpoint and
// turns its data frames into stream events through a provider classifier.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/framing"
	"github.com/davidbz/chatrelay/internal/observability"
)

const (
	readBufferSize  = 4096
	maxErrorBodyLen = 512
	errorBodyLimit  = 64 * 1024
)

// Frame is the classification of one data payload.
type Frame struct {
	Text      string
	Reasoning string
	Done      bool
	Err       error
	Skip      bool
}

// Classifier maps a trimmed data payload to a Frame.
type Classifier func(payload string) Frame

// Request describes the HTTP call for one attempt.
type Request struct {
	URL     string
	Headers map[string]string
	Body    any
	Debug   bool
}

// Runner executes SSE attempts over a shared HTTP client.
type Runner struct {
	client *http.Client
}

// NewRunner creates a runner. A nil client falls back to http.DefaultClient.
func NewRunner(client *http.Client) *Runner {
	if client == nil {
		client = http.DefaultClient
	}
	return &Runner{client: client}
}

// Run posts req, then reads the event stream until the classifier reports
// done or an error, or the body ends. A clean end of body counts as done.
func (r *Runner) Run(ctx context.Context, req Request, classify Classifier, emit domain.EmitFunc) error {
	logger := observability.FromContext(ctx)

	body, err := json.Marshal(req.Body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return &domain.TransportError{Message: fmt.Sprintf("failed to create request: %v", err), Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	if req.Debug {
		logger.Info("sending stream request", observability.String("url", req.URL))
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.TransportError{Message: fmt.Sprintf("request failed: %v", err), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(resp)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return &domain.TransportError{StatusCode: resp.StatusCode, Message: "response has no body"}
	}

	return r.consume(ctx, resp.Body, req.Debug, classify, emit)
}

func (r *Runner) consume(
	ctx context.Context,
	body io.Reader,
	debug bool,
	classify Classifier,
	emit domain.EmitFunc,
) error {
	logger := observability.FromContext(ctx)
	decoder := framing.NewLineDecoder()
	buf := make([]byte, readBufferSize)

	// handle reports finished=true once the stream must stop.
	handle := func(lines []string) (bool, error) {
		for _, line := range lines {
			payload, ok := framing.DataPayload(line)
			if !ok {
				continue
			}
			if debug {
				logger.Info("stream payload", observability.String("payload", payload))
			}

			frame := classify(payload)
			if frame.Skip {
				continue
			}
			if frame.Reasoning != "" {
				emit(domain.ReasoningDelta(frame.Reasoning))
			}
			if frame.Text != "" {
				emit(domain.Delta(frame.Text))
			}
			if frame.Err != nil {
				return true, frame.Err
			}
			if frame.Done {
				return true, nil
			}
		}
		return false, nil
	}

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if finished, err := handle(decoder.Feed(buf[:n])); finished {
				return err
			}
		}

		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) {
			if tail, ok := decoder.Flush(); ok {
				if _, err := handle([]string{tail}); err != nil {
					return err
				}
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.TransportError{Message: fmt.Sprintf("stream read failed: %v", readErr), Cause: readErr}
	}
}

// statusError builds "HTTP <status>[: <body>]" with the body truncated.
func statusError(resp *http.Response) error {
	message := fmt.Sprintf("HTTP %d", resp.StatusCode)

	if resp.Body != nil {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		if text := strings.TrimSpace(string(raw)); text != "" {
			message += ": " + truncate(text, maxErrorBodyLen)
		}
	}

	return &domain.TransportError{StatusCode: resp.StatusCode, Message: message}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
