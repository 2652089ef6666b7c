package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"synapse.app/ingest/common/logger"
	"synapse.app/ingest/internal/http/dto"
	"synapse.app/ingest/internal/model"
	"synapse.app/ingest/internal/service"
)

type EventIngestHandler struct {
	service     service.EventIngestService
	traceHeader string
}

func NewEventIngestHandler(service service.EventIngestService, traceHeader string) *EventIngestHandler {
	return &EventIngestHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

func (h *EventIngestHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid ingest request", "error", err)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "malformed event: " + err.Error()})
		return
	}

	draft := model.Draft{
		Timestamp:      req.Timestamp,
		CorrelationID:  req.CorrelationID,
		SourceSystem:   model.SourceSystem(req.SourceSystem),
		SourceEntityID: req.SourceEntityID,
		EventType:      model.EventType(req.EventType),
		Payload:        req.Payload,
		Version:        req.Version,
	}
	if req.EventID != nil && *req.EventID != "" {
		eventID, err := uuid.Parse(*req.EventID)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "event_id must be a UUID"})
			return
		}
		draft.EventID = eventID
	}

	// Continue the connector's trace when it sent one.
	traceID := c.GetHeader(h.traceHeader)
	sc := logger.ContinueTrace(ctx, traceID, "ingest.event")
	defer sc.End()
	ctx = sc.Context()
	if id := sc.TraceID(); id != "" {
		traceID = id
	}
	ctx = service.WithTraceID(ctx, traceID)

	result, err := h.service.Ingest(ctx, draft)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			slog.WarnContext(ctx, "rejected event", "error", err)
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		sc.RecordError(err)
		slog.ErrorContext(ctx, "failed to ingest event", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to persist event"})
		return
	}

	status := http.StatusCreated
	if result.Duplicated {
		status = http.StatusOK
	}
	c.JSON(status, dto.IngestEventResponse{
		EventID:    result.Event.EventID.String(),
		Duplicated: result.Duplicated,
	})
}
