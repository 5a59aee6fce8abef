// Package journal records run events in Redis streams so a run can be
// replayed after the client that started it has gone away.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/observability"
)

// ErrRunNotFound is returned by Replay when no events are stored for a run.
var ErrRunNotFound = errors.New("run not found in journal")

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 2 * time.Second
)

const (
	fieldSeq     = "seq"
	fieldType    = "type"
	fieldText    = "text"
	fieldMessage = "message"
)

// Journal appends run events to one Redis stream per run. Events handed to
// a Sink are written by a single background writer so a slow or unreachable
// Redis never holds up the live stream; when the queue is full the event is
// dropped from the journal only.
type Journal struct {
	client       redis.Cmdable
	prefix       string
	ttl          time.Duration
	maxLen       int64
	writeTimeout time.Duration

	queue   chan domain.RunEvent
	dropped atomic.Uint64

	startOnce sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	writerCtx context.Context
	stop      context.CancelFunc
	done      chan struct{}
}

// NewClient creates the Redis client for cfg, or nil when the journal is disabled.
func NewClient(cfg *Config) *redis.Client {
	if !cfg.Enabled() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:                  cfg.RedisAddr,
		Password:              cfg.RedisPassword,
		DB:                    cfg.RedisDB,
		ContextTimeoutEnabled: true,
	})
}

// New creates a journal over client.
func New(client redis.Cmdable, cfg *Config) *Journal {
	j := &Journal{
		client:       client,
		prefix:       "chatrelay:run",
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
	}
	queueSize := defaultQueueSize
	if cfg != nil {
		if cfg.KeyPrefix != "" {
			j.prefix = cfg.KeyPrefix
		}
		j.ttl = cfg.TTL
		j.maxLen = cfg.MaxLen
		if cfg.QueueSize > 0 {
			queueSize = cfg.QueueSize
		}
		if cfg.WriteTimeout > 0 {
			j.writeTimeout = cfg.WriteTimeout
		}
	}
	j.queue = make(chan domain.RunEvent, queueSize)
	j.writerCtx, j.stop = context.WithCancel(context.Background())
	return j
}

// Key returns the stream key for runID.
func (j *Journal) Key(runID string) string {
	return j.prefix + ":" + runID
}

// Append writes event to its run's stream. The stream expires after the
// configured TTL once the terminal event is written.
func (j *Journal) Append(ctx context.Context, event domain.RunEvent) error {
	key := j.Key(event.RunID)

	pipe := j.client.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: j.maxLen,
		Approx: j.maxLen > 0,
		Values: encode(event),
	})
	if event.Event.IsTerminal() && j.ttl > 0 {
		pipe.Expire(ctx, key, j.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append run event: %w", err)
	}
	return nil
}

// Replay returns every stored event of runID in order.
func (j *Journal) Replay(ctx context.Context, runID string) ([]domain.RunEvent, error) {
	messages, err := j.client.XRange(ctx, j.Key(runID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run events: %w", err)
	}
	if len(messages) == 0 {
		return nil, ErrRunNotFound
	}

	events := make([]domain.RunEvent, 0, len(messages))
	for _, msg := range messages {
		event, decodeErr := decode(runID, msg.Values)
		if decodeErr != nil {
			return nil, fmt.Errorf("entry %s: %w", msg.ID, decodeErr)
		}
		events = append(events, event)
	}
	return events, nil
}

// Sink wraps next so every event is also journaled. next always sees the
// event first; the journal write is queued and never blocks the caller.
func (j *Journal) Sink(next domain.EventSink) domain.EventSink {
	j.startOnce.Do(func() { go j.run() })

	return domain.EventSinkFunc(func(ctx context.Context, event domain.RunEvent) {
		next.OnEvent(ctx, event)
		j.enqueue(ctx, event)
	})
}

// Dropped returns how many events were left out of the journal because the
// write queue was full or the journal was closed.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Close stops accepting events and waits for queued writes to finish. When
// ctx ends first, in-flight writes are abandoned.
func (j *Journal) Close(ctx context.Context) error {
	if j == nil {
		return nil
	}

	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.queue)
		j.mu.Unlock()
	})
	j.startOnce.Do(func() { close(j.done) })

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		j.stop()
		<-j.done
		return ctx.Err()
	}
}

func (j *Journal) enqueue(ctx context.Context, event domain.RunEvent) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.closed {
		select {
		case j.queue <- event:
			return
		default:
		}
	}

	total := j.dropped.Add(1)
	observability.FromContext(ctx).Warn("journal queue full, event not journaled",
		observability.Uint64("seq", event.Seq),
		observability.Uint64("dropped_total", total))
}

func (j *Journal) run() {
	defer close(j.done)
	defer j.stop()

	for event := range j.queue {
		if j.writerCtx.Err() != nil {
			j.dropped.Add(1)
			continue
		}

		ctx, cancel := context.WithTimeout(j.writerCtx, j.writeTimeout)
		err := j.Append(ctx, event)
		cancel()

		if err != nil {
			logCtx := observability.WithRunID(context.Background(), event.RunID)
			observability.FromContext(logCtx).Warn("journal write failed",
				observability.Uint64("seq", event.Seq),
				observability.Error(err))
		}
	}
}

func encode(event domain.RunEvent) map[string]any {
	values := map[string]any{
		fieldSeq:  strconv.FormatUint(event.Seq, 10),
		fieldType: string(event.Event.Type),
	}
	if event.Event.Text != "" {
		values[fieldText] = event.Event.Text
	}
	if event.Event.Message != "" {
		values[fieldMessage] = event.Event.Message
	}
	return values
}

func decode(runID string, values map[string]any) (domain.RunEvent, error) {
	seqValue, _ := values[fieldSeq].(string)
	seq, err := strconv.ParseUint(seqValue, 10, 64)
	if err != nil {
		return domain.RunEvent{}, fmt.Errorf("invalid seq %q: %w", seqValue, err)
	}

	typeValue, _ := values[fieldType].(string)
	eventType := domain.EventType(typeValue)
	switch eventType {
	case domain.EventDelta, domain.EventReasoningDelta, domain.EventDone, domain.EventError:
	default:
		return domain.RunEvent{}, fmt.Errorf("unknown event type %q", typeValue)
	}

	text, _ := values[fieldText].(string)
	message, _ := values[fieldMessage].(string)

	return domain.RunEvent{
		RunID: runID,
		Seq:   seq,
		Event: domain.StreamEvent{Type: eventType, Text: text, Message: message},
	}, nil
}
