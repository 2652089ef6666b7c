package adapter_test

import (
	"context"
	"errors"
	"iter"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/model"
)

type namedAdapter struct {
	name string
}

func (a namedAdapter) Name() string                             { return a.name }
func (a namedAdapter) Source() model.SourceSystem               { return model.SourceSlack }
func (a namedAdapter) Lookback() time.Duration                  { return time.Hour }
func (a namedAdapter) Scopes(context.Context) ([]string, error) { return nil, nil }
func (a namedAdapter) ListSince(context.Context, string, cursor.Position) (iter.Seq2[adapter.RawItem, error], error) {
	return adapter.Sequence(nil), nil
}
func (a namedAdapter) Normalize(adapter.RawItem) (*model.Event, error) { return nil, nil }

var _ = Describe("Ascending", func() {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	item := func(id string, offset time.Duration) adapter.RawItem {
		return adapter.RawItem{ID: id, Timestamp: base.Add(offset)}
	}
	ids := func(items []adapter.RawItem) []string {
		out := make([]string, 0, len(items))
		for _, i := range items {
			out = append(out, i.ID)
		}
		return out
	}

	It("reverses newest-first input", func() {
		got := adapter.Ascending([]adapter.RawItem{
			item("c", 3*time.Minute), item("b", 2*time.Minute), item("a", time.Minute),
		}, cursor.At(base))
		Expect(ids(got)).To(Equal([]string{"a", "b", "c"}))
	})

	It("drops items at or before the watermark", func() {
		got := adapter.Ascending([]adapter.RawItem{
			item("c", 3*time.Minute), item("b", 2*time.Minute), item("a", time.Minute),
		}, cursor.At(base.Add(2*time.Minute)))
		Expect(ids(got)).To(Equal([]string{"c"}))
	})

	It("orders slightly unsorted pages", func() {
		got := adapter.Ascending([]adapter.RawItem{
			item("b", 2*time.Minute), item("c", 3*time.Minute), item("a", time.Minute),
		}, cursor.At(base))
		Expect(ids(got)).To(Equal([]string{"a", "b", "c"}))
	})
})

var _ = Describe("Sequence", func() {
	It("stops when the consumer stops", func() {
		seq := adapter.Sequence([]adapter.RawItem{{ID: "1"}, {ID: "2"}, {ID: "3"}})
		var seen []string
		for item, err := range seq {
			Expect(err).NotTo(HaveOccurred())
			seen = append(seen, item.ID)
			if len(seen) == 2 {
				break
			}
		}
		Expect(seen).To(Equal([]string{"1", "2"}))
	})
})

var _ = Describe("RawItem", func() {
	It("exposes its position in UTC", func() {
		ts := time.Date(2025, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 7200))
		pos := adapter.RawItem{Timestamp: ts, Token: "t1"}.Position()
		Expect(pos.Time.Location()).To(Equal(time.UTC))
		Expect(pos.Token).To(Equal("t1"))
	})
})

var _ = Describe("NormalizationError", func() {
	It("matches ErrNormalization and the cause", func() {
		cause := errors.New("bad json")
		err := &adapter.NormalizationError{Adapter: "slack", ItemID: "C1:1", Reason: "undecodable", Err: cause}
		Expect(errors.Is(err, adapter.ErrNormalization)).To(BeTrue())
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(Equal("normalize slack item C1:1: undecodable: bad json"))
	})

	It("substitutes unknown for blank optional fields", func() {
		Expect(adapter.OrUnknown("  ")).To(Equal(adapter.Unknown))
		Expect(adapter.OrUnknown("octocat")).To(Equal("octocat"))
	})
})

var _ = Describe("ScopeSet", func() {
	It("drops blanks and duplicates", func() {
		set := adapter.NewScopeSet("acme/api", " ", "acme/web", "acme/api")
		Expect(set.List()).To(Equal([]string{"acme/api", "acme/web"}))
		Expect(set.Len()).To(Equal(2))
	})

	It("hands out copies", func() {
		set := adapter.NewScopeSet("a")
		list := set.List()
		list[0] = "mutated"
		Expect(set.List()).To(Equal([]string{"a"}))
	})

	It("replaces the whole list", func() {
		set := adapter.NewScopeSet("a", "b")
		set.Replace([]string{"c"})
		Expect(set.List()).To(Equal([]string{"c"}))
	})
})

var _ = Describe("Registry", func() {
	It("keeps registration order and replaces by name", func() {
		first := namedAdapter{name: "slack"}
		reg := adapter.NewRegistry(first, namedAdapter{name: "github-commits"})
		reg.Register(namedAdapter{name: "slack"})

		Expect(reg.Names()).To(Equal([]string{"slack", "github-commits"}))
		Expect(reg.Len()).To(Equal(2))
		Expect(reg.All()).To(HaveLen(2))
	})

	It("reports unknown adapters with the configured names", func() {
		reg := adapter.NewRegistry(namedAdapter{name: "slack"})
		_, err := reg.Get("jira")
		Expect(errors.Is(err, adapter.ErrUnknownAdapter)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("configured: slack"))
		Expect(func() { reg.MustGet("jira") }).To(Panic())
	})
})
