package delivery_test

import (
	"context"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"synapse.app/ingest/internal/delivery"
	"synapse.app/ingest/internal/model"
	"synapse.app/ingest/internal/service"
	"synapse.app/ingest/internal/store"
)

type mockIngest struct {
	ingestFn func(ctx context.Context, draft model.Draft) (*service.IngestResult, error)
}

func (m *mockIngest) Ingest(ctx context.Context, draft model.Draft) (*service.IngestResult, error) {
	return m.ingestFn(ctx, draft)
}

var _ = Describe("LocalClient", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("stores events once and keeps their id", func() {
		events := store.NewMemoryEventStore()
		client := delivery.NewLocalClient(service.NewEventIngestService(service.NewMemoryTxRunner(events), nil, nil))
		event := sampleEvent()

		Expect(client.Deliver(ctx, event)).To(Succeed())
		Expect(client.Deliver(ctx, event)).To(Succeed())

		Expect(events.Count(ctx)).To(BeEquivalentTo(1))
		stored, err := events.Get(ctx, event.EventID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.SourceEntityID).To(Equal(event.SourceEntityID))
	})

	It("maps validation failures to a permanent 400", func() {
		client := delivery.NewLocalClient(&mockIngest{
			ingestFn: func(ctx context.Context, draft model.Draft) (*service.IngestResult, error) {
				return nil, &model.ValidationError{Problems: []string{"payload is required"}}
			},
		})
		err := client.Deliver(ctx, sampleEvent())

		var derr *delivery.DeliveryError
		Expect(errors.As(err, &derr)).To(BeTrue())
		Expect(derr.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(derr.Retryable).To(BeFalse())
	})

	It("maps persistence failures to a retryable 500", func() {
		client := delivery.NewLocalClient(&mockIngest{
			ingestFn: func(ctx context.Context, draft model.Draft) (*service.IngestResult, error) {
				return nil, service.ErrPersistence
			},
		})
		err := client.Deliver(ctx, sampleEvent())

		var derr *delivery.DeliveryError
		Expect(errors.As(err, &derr)).To(BeTrue())
		Expect(derr.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(derr.Retryable).To(BeTrue())
		Expect(errors.Is(err, service.ErrPersistence)).To(BeTrue())
	})
})
