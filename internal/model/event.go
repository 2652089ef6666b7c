package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultVersion is the payload schema version assumed when none is given.
const DefaultVersion = 1

// Event is the canonical envelope every source record is normalized into.
type Event struct {
	Timestamp      time.Time       `json:"timestamp"`
	CorrelationID  *string         `json:"correlation_id,omitempty"`
	SourceSystem   SourceSystem    `json:"source_system"`
	SourceEntityID string          `json:"source_entity_id"`
	EventType      EventType       `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Version        int             `json:"version"`
	EventID        uuid.UUID       `json:"event_id"`
}

// Draft carries the fields needed to construct an Event. Zero EventID and
// Version are filled in by NewEvent.
type Draft struct {
	Timestamp      time.Time
	CorrelationID  *string
	SourceSystem   SourceSystem
	SourceEntityID string
	EventType      EventType
	Payload        json.RawMessage
	Version        int
	EventID        uuid.UUID
}

// NewEvent validates d and returns the resulting Event. A missing event ID is
// replaced by a random one and a missing version by DefaultVersion.
func NewEvent(d Draft) (*Event, error) {
	var problems []string

	if d.SourceSystem == "" {
		problems = append(problems, "source_system is required")
	} else if !d.SourceSystem.Valid() {
		problems = append(problems, fmt.Sprintf("unknown source_system %q", d.SourceSystem))
	}

	if strings.TrimSpace(d.SourceEntityID) == "" {
		problems = append(problems, "source_entity_id is required")
	}

	switch {
	case d.EventType == "":
		problems = append(problems, "event_type is required")
	case d.SourceSystem.Valid() && !d.SourceSystem.Allows(d.EventType):
		problems = append(problems, fmt.Sprintf("event_type %q is not valid for source_system %s", d.EventType, d.SourceSystem))
	}

	if d.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}

	if d.Version < 0 {
		problems = append(problems, "version must be positive")
	}

	if err := checkPayload(d.Payload); err != "" {
		problems = append(problems, err)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	event := &Event{
		EventID:        d.EventID,
		CorrelationID:  d.CorrelationID,
		Timestamp:      d.Timestamp.UTC(),
		SourceSystem:   d.SourceSystem,
		SourceEntityID: d.SourceEntityID,
		EventType:      d.EventType,
		Version:        d.Version,
		Payload:        d.Payload,
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Version == 0 {
		event.Version = DefaultVersion
	}
	if event.CorrelationID != nil && *event.CorrelationID == "" {
		event.CorrelationID = nil
	}

	return event, nil
}

func checkPayload(p json.RawMessage) string {
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 {
		return "payload is required"
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return "payload must be a JSON object"
	}
	return ""
}

// Identity returns the (source_system, source_entity_id, event_type) triple.
func (e *Event) Identity() Identity {
	return Identity{
		SourceSystem:   e.SourceSystem,
		SourceEntityID: e.SourceEntityID,
		EventType:      e.EventType,
	}
}

// Identity is reproducible from the same source item, independent of event_id.
type Identity struct {
	SourceSystem   SourceSystem
	SourceEntityID string
	EventType      EventType
}

func (i Identity) String() string {
	return string(i.SourceSystem) + "/" + string(i.EventType) + "/" + i.SourceEntityID
}

// identityNamespace roots the name-based UUIDs derived from identities.
var identityNamespace = uuid.MustParse("6f1c4a52-9d0e-5b7a-8e3f-2c1d0b9a8f76")

// IdentityID derives a stable event ID from an identity, so the same source
// item normalized twice collides on event_id at ingestion.
func IdentityID(i Identity) uuid.UUID {
	return uuid.NewSHA1(identityNamespace, []byte(i.String()))
}

// MarshalPayload encodes v as an event payload.
func MarshalPayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}
