package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"synapse.app/ingest/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// EventStore defines the contract for canonical event persistence
type EventStore interface {
	// Insert writes event unless a row with the same event_id exists. It
	// reports whether a new row was written; the existing row is never
	// touched.
	Insert(ctx context.Context, event *model.Event) (bool, error)
	Get(ctx context.Context, eventID uuid.UUID) (*model.Event, error)
	Count(ctx context.Context) (int64, error)
}
