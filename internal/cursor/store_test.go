package cursor_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"synapse.app/ingest/internal/cursor"
)

type mockBackend struct {
	loadFn func(ctx context.Context, key cursor.Key) (cursor.Position, bool, error)
	saveFn func(ctx context.Context, key cursor.Key, pos cursor.Position) error
	saved  []cursor.Position
}

func (m *mockBackend) Load(ctx context.Context, key cursor.Key) (cursor.Position, bool, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, key)
	}
	return cursor.Position{}, false, nil
}

func (m *mockBackend) Save(ctx context.Context, key cursor.Key, pos cursor.Position) error {
	m.saved = append(m.saved, pos)
	if m.saveFn != nil {
		return m.saveFn(ctx, key, pos)
	}
	return nil
}

func (m *mockBackend) Delete(ctx context.Context, key cursor.Key) error {
	return nil
}

func (m *mockBackend) DeleteAll(ctx context.Context) error {
	return nil
}

var _ = Describe("Store", func() {
	var (
		ctx     context.Context
		now     time.Time
		backend *cursor.MemoryBackend
		store   *cursor.Store
		key     cursor.Key
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
		backend = cursor.NewMemoryBackend()
		store = cursor.NewStore(backend, nil,
			cursor.WithClock(func() time.Time { return now }),
			cursor.WithLookback("slack", 2*time.Hour),
		)
		key = cursor.Key{Source: "github-commits", Scope: "acme/api"}
	})

	Describe("Get", func() {
		It("persists the lookback default for an absent cursor", func() {
			pos := store.Get(ctx, key)
			Expect(pos.Time).To(Equal(now.Add(-cursor.DefaultLookback)))

			stored, ok, err := backend.Load(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(stored).To(Equal(pos))
		})

		It("keeps the first default across later reads", func() {
			first := store.Get(ctx, key)
			now = now.Add(time.Hour)
			Expect(store.Get(ctx, key)).To(Equal(first))
		})

		It("uses the per-adapter lookback", func() {
			pos := store.Get(ctx, cursor.Key{Source: "slack", Scope: "C123"})
			Expect(pos.Time).To(Equal(now.Add(-2 * time.Hour)))
			Expect(store.Lookback("slack")).To(Equal(2 * time.Hour))
			Expect(store.Lookback("jira")).To(Equal(cursor.DefaultLookback))
		})

		It("returns the stored position", func() {
			committed := cursor.Position{Time: now.Add(-time.Minute), Token: "abc"}
			Expect(store.Set(ctx, key, committed)).To(Succeed())
			Expect(store.Get(ctx, key)).To(Equal(committed))
		})

		It("degrades to the default when the backend fails", func() {
			failing := &mockBackend{
				loadFn: func(ctx context.Context, key cursor.Key) (cursor.Position, bool, error) {
					return cursor.Position{}, false, errors.New("connection refused")
				},
			}
			s := cursor.NewStore(failing, nil, cursor.WithClock(func() time.Time { return now }))

			pos := s.Get(ctx, key)
			Expect(pos.Time).To(Equal(now.Add(-cursor.DefaultLookback)))
			Expect(failing.saved).To(BeEmpty())
		})

		It("still returns the default when persisting it fails", func() {
			failing := &mockBackend{
				saveFn: func(ctx context.Context, key cursor.Key, pos cursor.Position) error {
					return errors.New("read-only")
				},
			}
			s := cursor.NewStore(failing, nil, cursor.WithClock(func() time.Time { return now }))

			Expect(s.Get(ctx, key).Time).To(Equal(now.Add(-cursor.DefaultLookback)))
			Expect(failing.saved).To(HaveLen(1))
		})
	})

	Describe("Peek", func() {
		It("does not create absent cursors", func() {
			_, ok, err := store.Peek(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			_, ok, _ = backend.Load(ctx, key)
			Expect(ok).To(BeFalse())
		})

		It("wraps backend errors", func() {
			failing := &mockBackend{
				loadFn: func(ctx context.Context, key cursor.Key) (cursor.Position, bool, error) {
					return cursor.Position{}, false, errors.New("boom")
				},
			}
			_, _, err := cursor.NewStore(failing, nil).Peek(ctx, key)
			Expect(err).To(MatchError(ContainSubstring("loading cursor github-commits|acme/api")))
		})
	})

	Describe("Clear", func() {
		It("makes the next Get start from the lookback window again", func() {
			Expect(store.Set(ctx, key, cursor.At(now))).To(Succeed())
			Expect(store.Clear(ctx, key)).To(Succeed())
			Expect(store.Get(ctx, key).Time).To(Equal(now.Add(-cursor.DefaultLookback)))
		})

		It("removes every cursor", func() {
			other := cursor.Key{Source: "slack", Scope: "C1"}
			Expect(store.Set(ctx, key, cursor.At(now))).To(Succeed())
			Expect(store.Set(ctx, other, cursor.At(now))).To(Succeed())
			Expect(store.ClearAll(ctx)).To(Succeed())

			for _, k := range []cursor.Key{key, other} {
				_, ok, err := store.Peek(ctx, k)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			}
		})
	})
})
