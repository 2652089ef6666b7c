package slack_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/slack-go/slack"

	"synapse.app/ingest/internal/adapter"
	adapterslack "synapse.app/ingest/internal/adapter/slack"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/model"
)

type mockHistory struct {
	historyFn func(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	calls     []slack.GetConversationHistoryParameters
}

func (m *mockHistory) GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	m.calls = append(m.calls, *params)
	if m.historyFn != nil {
		return m.historyFn(ctx, params)
	}
	return &slack.GetConversationHistoryResponse{}, nil
}

func message(ts, text string) slack.Message {
	return slack.Message{Msg: slack.Msg{Timestamp: ts, User: "U123", Text: text}}
}

var _ = Describe("MessagesAdapter", func() {
	var (
		ctx     context.Context
		history *mockHistory
		a       *adapterslack.MessagesAdapter
		since   cursor.Position
	)

	BeforeEach(func() {
		ctx = context.Background()
		history = &mockHistory{}
		a = adapterslack.NewMessagesAdapter(history, adapterslack.Config{Scopes: adapter.NewScopeSet("C123")}, nil)
		since = cursor.At(time.Unix(1700000000, 0))
	})

	drain := func(scope string, pos cursor.Position) []adapter.RawItem {
		seq, err := a.ListSince(ctx, scope, pos)
		Expect(err).NotTo(HaveOccurred())
		var items []adapter.RawItem
		for item, err := range seq {
			Expect(err).NotTo(HaveOccurred())
			items = append(items, item)
		}
		return items
	}

	It("follows cursors and returns messages oldest first", func() {
		history.historyFn = func(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
			resp := &slack.GetConversationHistoryResponse{}
			if params.Cursor == "" {
				resp.Messages = []slack.Message{message("1700000300.000100", "third"), message("1700000200.000100", "second")}
				resp.HasMore = true
				resp.ResponseMetaData.NextCursor = "page2"
				return resp, nil
			}
			resp.Messages = []slack.Message{message("1700000100.000100", "first")}
			return resp, nil
		}

		items := drain("C123", since)
		Expect(items).To(HaveLen(3))
		Expect(items[0].Token).To(Equal("1700000100.000100"))
		Expect(items[2].Token).To(Equal("1700000300.000100"))

		Expect(history.calls).To(HaveLen(2))
		Expect(history.calls[0].ChannelID).To(Equal("C123"))
		Expect(history.calls[0].Oldest).To(Equal("1700000000.000000"))
		Expect(history.calls[0].Inclusive).To(BeFalse())
		Expect(history.calls[1].Cursor).To(Equal("page2"))
	})

	It("resumes from the stored token", func() {
		pos := cursor.Position{Time: time.Unix(1700000100, 100000).UTC(), Token: "1700000100.000100"}
		drain("C123", pos)
		Expect(history.calls[0].Oldest).To(Equal("1700000100.000100"))
	})

	It("yields messages with a malformed ts for Normalize to reject", func() {
		history.historyFn = func(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
			return &slack.GetConversationHistoryResponse{
				Messages: []slack.Message{
					message("1700000200.000100", "newer"),
					message("garbage", "x"),
					message("1700000100.000100", "older"),
				},
			}, nil
		}
		items := drain("C123", since)
		Expect(items).To(HaveLen(3))
		Expect(items[0].Token).To(Equal("1700000100.000100"))
		Expect(items[1].ID).To(Equal("garbage"))
		Expect(items[1].Position()).To(Equal(items[0].Position()))
		Expect(items[2].Token).To(Equal("1700000200.000100"))

		_, err := a.Normalize(items[1])
		Expect(errors.Is(err, adapter.ErrNormalization)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("message ts malformed")))
	})

	It("rejects a message without a ts", func() {
		history.historyFn = func(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
			return &slack.GetConversationHistoryResponse{Messages: []slack.Message{message("", "x")}}, nil
		}
		items := drain("C123", since)
		Expect(items).To(HaveLen(1))
		Expect(items[0].Position()).To(Equal(since))

		_, err := a.Normalize(items[0])
		Expect(err).To(MatchError(ContainSubstring("message ts missing")))
	})

	It("fails the fetch when history is unavailable", func() {
		history.historyFn = func(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
			return nil, errors.New("channel_not_found")
		}
		_, err := a.ListSince(ctx, "C999", since)
		Expect(err).To(MatchError(ContainSubstring("channel C999")))
	})

	Describe("Normalize", func() {
		It("keys events by channel and ts", func() {
			history.historyFn = func(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
				return &slack.GetConversationHistoryResponse{Messages: []slack.Message{message("1700000100.000100", "hello")}}, nil
			}
			event, err := a.Normalize(drain("C123", since)[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(event.SourceSystem).To(Equal(model.SourceSlack))
			Expect(event.EventType).To(Equal(model.EventSlackMessagePosted))
			Expect(event.SourceEntityID).To(Equal("C123:1700000100.000100"))
			Expect(event.CorrelationID).To(BeNil())
			Expect(event.Timestamp).To(Equal(time.Unix(1700000100, 100000).UTC()))
		})

		It("correlates thread replies to their parent", func() {
			reply := message("1700000200.000100", "reply")
			reply.ThreadTimestamp = "1700000100.000100"
			history.historyFn = func(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
				return &slack.GetConversationHistoryResponse{Messages: []slack.Message{reply}}, nil
			}
			event, err := a.Normalize(drain("C123", since)[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(event.CorrelationID).NotTo(BeNil())
			Expect(*event.CorrelationID).To(Equal("C123:1700000100.000100"))
		})

		It("rejects foreign item data", func() {
			_, err := a.Normalize(adapter.RawItem{ID: "1"})
			Expect(errors.Is(err, adapter.ErrNormalization)).To(BeTrue())
		})
	})
})

var _ = Describe("ts helpers", func() {
	It("parses and formats with microsecond precision", func() {
		t, err := adapterslack.ParseTS("1700000000.5")
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(Equal(time.Unix(1700000000, 500000000).UTC()))
		Expect(adapterslack.FormatTS(t)).To(Equal("1700000000.500000"))
	})

	It("rejects non-numeric ts", func() {
		_, err := adapterslack.ParseTS("abc.def")
		Expect(err).To(HaveOccurred())
	})
})
