package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps cursors in a local SQLite file, for single-node
// connectors without Redis or Postgres.
type SQLiteBackend struct {
	db *sql.DB
}

var memoryDBs atomic.Int64

// OpenSQLite opens (or creates) the cursor database at path.
// ":memory:" gives an in-memory database private to this backend. Each open
// gets its own shared-cache name so every pooled connection sees the same
// tables while separate backends stay isolated.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	connStr := path
	if path == ":memory:" {
		connStr = fmt.Sprintf("file:cursors-%d?mode=memory&cache=shared", memoryDBs.Add(1))
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open cursor database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent cycles
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cursor database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS sync_cursors (
		source TEXT NOT NULL,
		scope TEXT NOT NULL,
		position_time TEXT NOT NULL,
		position_token TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (source, scope)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cursor table: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) Load(ctx context.Context, key Key) (Position, bool, error) {
	var ts, token string
	err := s.db.QueryRowContext(ctx,
		`SELECT position_time, position_token FROM sync_cursors WHERE source = ? AND scope = ?`,
		key.Source, key.Scope,
	).Scan(&ts, &token)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("query cursor: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Position{}, false, fmt.Errorf("parse cursor time: %w", err)
	}
	return Position{Time: t, Token: token}, true, nil
}

func (s *SQLiteBackend) Save(ctx context.Context, key Key, pos Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (source, scope, position_time, position_token, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source, scope) DO UPDATE SET
			position_time = excluded.position_time,
			position_token = excluded.position_token,
			updated_at = excluded.updated_at`,
		key.Source, key.Scope,
		pos.Time.UTC().Format(time.RFC3339Nano), pos.Token,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_cursors WHERE source = ? AND scope = ?`, key.Source, key.Scope); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_cursors`); err != nil {
		return fmt.Errorf("delete cursors: %w", err)
	}
	return nil
}
