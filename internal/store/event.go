package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"synapse.app/ingest/core/db"
	"synapse.app/ingest/internal/model"
)

type eventStore struct {
	queries *db.Queries
}

func newEventStore(queries *db.Queries) EventStore {
	return &eventStore{queries: queries}
}

func (s *eventStore) Insert(ctx context.Context, event *model.Event) (bool, error) {
	return s.queries.InsertEvent(ctx, db.InsertEventParams{
		EventID:        event.EventID.String(),
		CorrelationID:  event.CorrelationID,
		SourceSystem:   string(event.SourceSystem),
		SourceEntityID: event.SourceEntityID,
		EventType:      string(event.EventType),
		EventTimestamp: event.Timestamp,
		Version:        int32(event.Version),
		Payload:        []byte(event.Payload),
	})
}

func (s *eventStore) Get(ctx context.Context, eventID uuid.UUID) (*model.Event, error) {
	row, err := s.queries.GetEvent(ctx, eventID.String())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toEventModel(row)
}

func (s *eventStore) Count(ctx context.Context) (int64, error) {
	return s.queries.CountEvents(ctx)
}

func toEventModel(row db.EventRow) (*model.Event, error) {
	id, err := uuid.Parse(row.EventID)
	if err != nil {
		return nil, fmt.Errorf("parsing stored event_id %q: %w", row.EventID, err)
	}
	return &model.Event{
		EventID:        id,
		CorrelationID:  row.CorrelationID,
		Timestamp:      row.EventTimestamp.UTC(),
		SourceSystem:   model.SourceSystem(row.SourceSystem),
		SourceEntityID: row.SourceEntityID,
		EventType:      model.EventType(row.EventType),
		Version:        int(row.Version),
		Payload:        json.RawMessage(row.Payload),
	}, nil
}
