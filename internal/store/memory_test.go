package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"synapse.app/ingest/internal/model"
	"synapse.app/ingest/internal/store"
)

func newEvent(entityID string) *model.Event {
	event, err := model.NewEvent(model.Draft{
		Timestamp:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		SourceSystem:   model.SourceJira,
		SourceEntityID: entityID,
		EventType:      model.EventJiraTicketCreated,
		Payload:        json.RawMessage(`{"title":"Broken build"}`),
	})
	Expect(err).NotTo(HaveOccurred())
	return event
}

var _ = Describe("MemoryEventStore", func() {
	var (
		ctx    context.Context
		events *store.MemoryEventStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		events = store.NewMemoryEventStore()
	})

	It("inserts an event id once", func() {
		e := newEvent("PROJ-1")
		Expect(events.Insert(ctx, e)).To(BeTrue())
		Expect(events.Insert(ctx, e)).To(BeFalse())
		Expect(events.Count(ctx)).To(BeEquivalentTo(1))
	})

	It("returns copies that callers cannot mutate", func() {
		e := newEvent("PROJ-1")
		_, err := events.Insert(ctx, e)
		Expect(err).NotTo(HaveOccurred())
		e.Payload[2] = 'X'

		got, err := events.Get(ctx, e.EventID)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got.Payload)).To(Equal(`{"title":"Broken build"}`))
	})

	It("reports missing events", func() {
		_, err := events.Get(ctx, uuid.New())
		Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
	})

	It("lists events in insertion order", func() {
		for _, id := range []string{"PROJ-3", "PROJ-1", "PROJ-2"} {
			_, err := events.Insert(ctx, newEvent(id))
			Expect(err).NotTo(HaveOccurred())
		}
		var ids []string
		for _, e := range events.All() {
			ids = append(ids, e.SourceEntityID)
		}
		Expect(ids).To(Equal([]string{"PROJ-3", "PROJ-1", "PROJ-2"}))
	})

	It("admits one winner among concurrent inserts of the same id", func() {
		e := newEvent("PROJ-9")
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := events.Insert(ctx, e)
				if err == nil && ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		Expect(created).To(Equal(1))
	})
})
