package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"synapse.app/ingest/common/logger"
	"synapse.app/ingest/internal/metrics"
	"synapse.app/ingest/internal/model"
	"synapse.app/ingest/internal/queue"
)

// ErrPersistence wraps storage failures during ingestion. Callers treat it as
// a server-side error; the producer may retry.
var ErrPersistence = errors.New("persisting event")

type IngestResult struct {
	Event      *model.Event
	Duplicated bool
	Published  bool
}

type EventIngestService interface {
	// Ingest validates the draft, persists it at most once per event_id and
	// publishes newly stored events. A duplicate is a successful result.
	Ingest(ctx context.Context, draft model.Draft) (*IngestResult, error)
}

type eventIngestService struct {
	txRunner TxRunner
	queue    queue.Producer
	logger   *slog.Logger
}

func NewEventIngestService(txRunner TxRunner, producer queue.Producer, logger *slog.Logger) EventIngestService {
	if logger == nil {
		logger = slog.Default()
	}
	if producer == nil {
		producer = queue.NewNoopProducer()
	}
	return &eventIngestService{
		txRunner: txRunner,
		queue:    producer,
		logger:   logger,
	}
}

func (s *eventIngestService) Ingest(ctx context.Context, draft model.Draft) (*IngestResult, error) {
	event, err := model.NewEvent(draft)
	if err != nil {
		metrics.EventsIngested.WithLabelValues(sourceLabel(draft.SourceSystem), metrics.IngestRejected).Inc()
		return nil, err
	}

	ctx = logger.WithEvent(ctx, event.EventID.String(), string(event.EventType))
	ctx = logger.WithComponent(ctx, "synapse.service.ingest")

	var created bool
	if err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		var err error
		created, err = sp.Events().Insert(ctx, event)
		return err
	}); err != nil {
		metrics.EventsIngested.WithLabelValues(string(event.SourceSystem), metrics.IngestFailed).Inc()
		s.logger.ErrorContext(ctx, "failed to persist event", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if !created {
		metrics.EventsIngested.WithLabelValues(string(event.SourceSystem), metrics.IngestDuplicate).Inc()
		s.logger.InfoContext(ctx, "duplicate event deduped", "source_entity_id", event.SourceEntityID)
		return &IngestResult{Event: event, Duplicated: true}, nil
	}
	metrics.EventsIngested.WithLabelValues(string(event.SourceSystem), metrics.IngestCreated).Inc()

	// Publishing is best effort once the row is committed.
	published := true
	if err := s.queue.Enqueue(ctx, queue.NewEventMessage(event, traceIDFrom(ctx))); err != nil {
		published = false
		s.logger.WarnContext(ctx, "failed to publish ingested event", "error", err)
	}

	return &IngestResult{Event: event, Published: published}, nil
}

func sourceLabel(s model.SourceSystem) string {
	if s.Valid() {
		return string(s)
	}
	return "invalid"
}

type traceIDKey struct{}

// WithTraceID attaches the caller's trace id so published messages carry it.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func traceIDFrom(ctx context.Context) *string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok && v != "" {
		return &v
	}
	return nil
}
