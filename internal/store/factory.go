package store

import (
	"synapse.app/ingest/core/db"
)

type Stores struct {
	queries *db.Queries
}

func NewStores(queries *db.Queries) *Stores {
	return &Stores{queries: queries}
}

func (s *Stores) Events() EventStore {
	return newEventStore(s.queries)
}
