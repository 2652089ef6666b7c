package cursor

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"synapse.app/ingest/core/db"
)

// PostgresBackend stores cursors in the sync_cursors table.
type PostgresBackend struct {
	queries *db.Queries
}

func NewPostgresBackend(queries *db.Queries) *PostgresBackend {
	return &PostgresBackend{queries: queries}
}

func (p *PostgresBackend) Load(ctx context.Context, key Key) (Position, bool, error) {
	row, err := p.queries.GetSyncCursor(ctx, key.Source, key.Scope)
	if errors.Is(err, pgx.ErrNoRows) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, err
	}
	return Position{Time: row.PositionTime.UTC(), Token: row.PositionToken}, true, nil
}

func (p *PostgresBackend) Save(ctx context.Context, key Key, pos Position) error {
	return p.queries.UpsertSyncCursor(ctx, db.UpsertSyncCursorParams{
		Source:        key.Source,
		Scope:         key.Scope,
		PositionTime:  pos.Time,
		PositionToken: pos.Token,
	})
}

func (p *PostgresBackend) Delete(ctx context.Context, key Key) error {
	return p.queries.DeleteSyncCursor(ctx, key.Source, key.Scope)
}

func (p *PostgresBackend) DeleteAll(ctx context.Context) error {
	return p.queries.DeleteAllSyncCursors(ctx)
}
