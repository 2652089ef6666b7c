package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type EventRow struct {
	EventID        string
	CorrelationID  *string
	SourceSystem   string
	SourceEntityID string
	EventType      string
	EventTimestamp time.Time
	Version        int32
	Payload        []byte
	IngestedAt     time.Time
}

type InsertEventParams struct {
	EventID        string
	CorrelationID  *string
	SourceSystem   string
	SourceEntityID string
	EventType      string
	EventTimestamp time.Time
	Version        int32
	Payload        []byte
}

const insertEvent = `
INSERT INTO events (event_id, correlation_id, source_system, source_entity_id, event_type, event_timestamp, version, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (event_id) DO NOTHING
`

// InsertEvent writes one event row. It returns false when a row with the same
// event_id already exists; the existing row is left untouched.
func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) (bool, error) {
	tag, err := q.db.Exec(ctx, insertEvent,
		arg.EventID,
		arg.CorrelationID,
		arg.SourceSystem,
		arg.SourceEntityID,
		arg.EventType,
		arg.EventTimestamp,
		arg.Version,
		arg.Payload,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const getEvent = `
SELECT event_id::text, correlation_id, source_system, source_entity_id, event_type, event_timestamp, version, payload, ingested_at
FROM events
WHERE event_id = $1
`

func (q *Queries) GetEvent(ctx context.Context, eventID string) (EventRow, error) {
	row := q.db.QueryRow(ctx, getEvent, eventID)
	var r EventRow
	err := row.Scan(
		&r.EventID,
		&r.CorrelationID,
		&r.SourceSystem,
		&r.SourceEntityID,
		&r.EventType,
		&r.EventTimestamp,
		&r.Version,
		&r.Payload,
		&r.IngestedAt,
	)
	return r, err
}

const countEvents = `SELECT count(*) FROM events`

func (q *Queries) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countEvents).Scan(&n)
	return n, err
}

type SyncCursorRow struct {
	Source        string
	Scope         string
	PositionTime  time.Time
	PositionToken string
	UpdatedAt     time.Time
}

const getSyncCursor = `
SELECT source, scope, position_time, position_token, updated_at
FROM sync_cursors
WHERE source = $1 AND scope = $2
`

func (q *Queries) GetSyncCursor(ctx context.Context, source, scope string) (SyncCursorRow, error) {
	var r SyncCursorRow
	err := q.db.QueryRow(ctx, getSyncCursor, source, scope).Scan(
		&r.Source,
		&r.Scope,
		&r.PositionTime,
		&r.PositionToken,
		&r.UpdatedAt,
	)
	return r, err
}

type UpsertSyncCursorParams struct {
	Source        string
	Scope         string
	PositionTime  time.Time
	PositionToken string
}

const upsertSyncCursor = `
INSERT INTO sync_cursors (source, scope, position_time, position_token, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (source, scope) DO UPDATE
SET position_time = EXCLUDED.position_time,
    position_token = EXCLUDED.position_token,
    updated_at = now()
`

func (q *Queries) UpsertSyncCursor(ctx context.Context, arg UpsertSyncCursorParams) error {
	_, err := q.db.Exec(ctx, upsertSyncCursor, arg.Source, arg.Scope, arg.PositionTime, arg.PositionToken)
	return err
}

const deleteSyncCursor = `DELETE FROM sync_cursors WHERE source = $1 AND scope = $2`

func (q *Queries) DeleteSyncCursor(ctx context.Context, source, scope string) error {
	_, err := q.db.Exec(ctx, deleteSyncCursor, source, scope)
	return err
}

const deleteAllSyncCursors = `DELETE FROM sync_cursors`

func (q *Queries) DeleteAllSyncCursors(ctx context.Context) error {
	_, err := q.db.Exec(ctx, deleteAllSyncCursors)
	return err
}
