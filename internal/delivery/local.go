package delivery

import (
	"context"
	"errors"
	"net/http"

	"synapse.app/ingest/internal/model"
	"synapse.app/ingest/internal/service"
)

// LocalClient delivers in-process to the ingestion service, mapping results
// to the status codes the HTTP endpoint would return.
type LocalClient struct {
	ingest service.EventIngestService
}

func NewLocalClient(ingest service.EventIngestService) *LocalClient {
	return &LocalClient{ingest: ingest}
}

func (c *LocalClient) Deliver(ctx context.Context, event *model.Event) error {
	_, err := c.ingest.Ingest(ctx, model.Draft{
		Timestamp:      event.Timestamp,
		CorrelationID:  event.CorrelationID,
		SourceSystem:   event.SourceSystem,
		SourceEntityID: event.SourceEntityID,
		EventType:      event.EventType,
		Payload:        event.Payload,
		Version:        event.Version,
		EventID:        event.EventID,
	})
	if err == nil {
		return nil
	}

	derr := &DeliveryError{EventID: event.EventID.String(), Attempts: 1, Message: err.Error(), Err: err}
	switch {
	case errors.Is(err, model.ErrValidation):
		derr.StatusCode = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		derr.StatusCode = http.StatusInternalServerError
		derr.Retryable = true
	}
	return derr
}
