package dto

import (
	"encoding/json"
	"time"
)

// IngestEventRequest is the canonical event as posted by a producer. Field
// rules are enforced by the event constructor so every problem is reported
// in one response.
type IngestEventRequest struct {
	EventID        *string         `json:"event_id,omitempty"`
	CorrelationID  *string         `json:"correlation_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	SourceSystem   string          `json:"source_system"`
	SourceEntityID string          `json:"source_entity_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Version        int             `json:"version,omitempty"`
}

type IngestEventResponse struct {
	EventID    string `json:"event_id"`
	Duplicated bool   `json:"duplicated"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
