package service

import (
	"context"
	"sync"

	"synapse.app/ingest/core/db"
	"synapse.app/ingest/internal/store"
)

// StoreProvider exposes only the stores needed by a transactional operation.
type StoreProvider interface {
	Events() store.EventStore
}

// TxRunner runs functions within a transaction and provides stores bound to that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type dbTxRunner struct {
	db *db.DB
}

// NewTxRunner builds a TxRunner backed by the core DB.
func NewTxRunner(db *db.DB) TxRunner {
	return &dbTxRunner{db: db}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.db.WithTx(ctx, func(q *db.Queries) error {
		stores := store.NewStores(q)
		return fn(stores)
	})
}

type memoryStores struct {
	events store.EventStore
}

func (m memoryStores) Events() store.EventStore { return m.events }

// memoryTxRunner serializes operations over an in-process store. Writes are
// not rolled back on error; the only write is a single insert.
type memoryTxRunner struct {
	mu     sync.Mutex
	stores memoryStores
}

// NewMemoryTxRunner builds a TxRunner over an in-memory event store.
func NewMemoryTxRunner(events *store.MemoryEventStore) TxRunner {
	return &memoryTxRunner{stores: memoryStores{events: events}}
}

func (r *memoryTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.stores)
}
