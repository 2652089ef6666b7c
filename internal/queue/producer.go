package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"synapse.app/ingest/internal/model"
)

// EventMessage announces a newly persisted event to downstream consumers.
// It carries the identity of the event, not its payload; consumers read the
// row by EventID.
type EventMessage struct {
	EventID        string
	SourceSystem   string
	SourceEntityID string
	EventType      string
	CorrelationID  string
	Timestamp      time.Time
	TraceID        *string
}

func NewEventMessage(event *model.Event, traceID *string) EventMessage {
	msg := EventMessage{
		EventID:        event.EventID.String(),
		SourceSystem:   string(event.SourceSystem),
		SourceEntityID: event.SourceEntityID,
		EventType:      string(event.EventType),
		Timestamp:      event.Timestamp,
		TraceID:        traceID,
	}
	if event.CorrelationID != nil {
		msg.CorrelationID = *event.CorrelationID
	}
	return msg
}

// Values flattens the message into stream entry fields. Empty optional fields
// are omitted.
func (m EventMessage) Values() map[string]any {
	v := map[string]any{
		"event_id":         m.EventID,
		"source_system":    m.SourceSystem,
		"source_entity_id": m.SourceEntityID,
		"event_type":       m.EventType,
		"timestamp":        m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if m.CorrelationID != "" {
		v["correlation_id"] = m.CorrelationID
	}
	if m.TraceID != nil && *m.TraceID != "" {
		v["trace_id"] = *m.TraceID
	}
	return v
}

type Producer interface {
	Enqueue(ctx context.Context, msg EventMessage) error
	Close() error
}

type StreamConfig struct {
	Stream string
	MaxLen int64 // approximate cap on stream length; 0 keeps every entry
}

type redisProducer struct {
	client *redis.Client
	cfg    StreamConfig
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, cfg StreamConfig, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{client: client, cfg: cfg, logger: logger}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg EventMessage) error {
	args := &redis.XAddArgs{
		Stream: p.cfg.Stream,
		Values: msg.Values(),
	}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}

	entryID, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("publish event %s to %s: %w", msg.EventID, p.cfg.Stream, err)
	}

	p.logger.DebugContext(ctx, "published event", "stream", p.cfg.Stream, "entry_id", entryID)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

type noopProducer struct{}

// NewNoopProducer discards messages. Used when no event stream is configured.
func NewNoopProducer() Producer {
	return noopProducer{}
}

func (noopProducer) Enqueue(context.Context, EventMessage) error { return nil }
func (noopProducer) Close() error                                { return nil }
