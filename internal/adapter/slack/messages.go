package slack

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/model"
)

const MessagesAdapterName = "slack.messages"

// HistoryAPI is the subset of the Slack Web API the adapter calls.
type HistoryAPI interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
}

// NewClient builds a Slack Web API client. apiURL overrides https://slack.com/api/.
func NewClient(token, apiURL string) *slack.Client {
	if apiURL == "" {
		return slack.New(token)
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	return slack.New(token, slack.OptionAPIURL(apiURL))
}

type Config struct {
	Scopes   *adapter.ScopeSet
	Lookback time.Duration
	PageSize int
}

// MessagesAdapter emits one SlackMessagePostedEvent per channel message.
// Scopes are channel IDs. The position token is the Slack ts of the last
// processed message; the history call's oldest bound is exclusive.
type MessagesAdapter struct {
	api    HistoryAPI
	cfg    Config
	logger *slog.Logger
}

func NewMessagesAdapter(api HistoryAPI, cfg Config, logger *slog.Logger) *MessagesAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scopes == nil {
		cfg.Scopes = adapter.NewScopeSet()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &MessagesAdapter{api: api, cfg: cfg, logger: logger}
}

func (a *MessagesAdapter) Name() string               { return MessagesAdapterName }
func (a *MessagesAdapter) Source() model.SourceSystem { return model.SourceSlack }
func (a *MessagesAdapter) Lookback() time.Duration    { return a.cfg.Lookback }

func (a *MessagesAdapter) Scopes(context.Context) ([]string, error) {
	return a.cfg.Scopes.List(), nil
}

type messageItem struct {
	Channel string
	Message slack.Message
}

func (a *MessagesAdapter) ListSince(ctx context.Context, scope string, since cursor.Position) (iter.Seq2[adapter.RawItem, error], error) {
	oldest := since.Token
	if oldest == "" {
		oldest = FormatTS(since.Time)
	}

	params := &slack.GetConversationHistoryParameters{
		ChannelID: scope,
		Oldest:    oldest,
		Inclusive: false,
		Limit:     a.cfg.PageSize,
	}

	// History pages run newest to oldest within the window.
	var items []adapter.RawItem
	for {
		resp, err := a.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("fetching history for channel %s: %w", scope, err)
		}
		for _, m := range resp.Messages {
			item := adapter.RawItem{
				ID:    m.Timestamp,
				Token: m.Timestamp,
				Data:  &messageItem{Channel: scope, Message: m},
			}
			if ts, err := ParseTS(m.Timestamp); err == nil {
				item.Timestamp = ts
			} else {
				a.logger.WarnContext(ctx, "message with malformed ts", "channel", scope, "ts", m.Timestamp)
			}
			items = append(items, item)
		}
		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}

	return adapter.Sequence(ascending(items, since)), nil
}

// ascending orders a newest-first history window oldest first, dropping
// messages at or before since. A message without a parsable ts takes the
// position of the next older message (or since), so committing past it never
// skips a neighbour. Normalize rejects it.
func ascending(newestFirst []adapter.RawItem, since cursor.Position) []adapter.RawItem {
	out := make([]adapter.RawItem, 0, len(newestFirst))
	prev := since
	for i := len(newestFirst) - 1; i >= 0; i-- {
		item := newestFirst[i]
		if item.Timestamp.IsZero() {
			item.Timestamp, item.Token = prev.Time, prev.Token
			out = append(out, item)
			continue
		}
		if !item.Timestamp.After(since.Time) {
			continue
		}
		prev = item.Position()
		out = append(out, item)
	}
	slices.SortStableFunc(out, func(a, b adapter.RawItem) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

type messagePayload struct {
	User            string `json:"user"`
	Text            string `json:"text"`
	Timestamp       string `json:"timestamp"`
	Channel         string `json:"channel"`
	IsThreadReply   bool   `json:"isThreadReply"`
	ThreadTimestamp string `json:"threadTimestamp,omitempty"`
	SubType         string `json:"subtype,omitempty"`
	BotID           string `json:"botId,omitempty"`
	ReplyCount      int    `json:"replyCount,omitempty"`
}

func (a *MessagesAdapter) Normalize(item adapter.RawItem) (*model.Event, error) {
	mi, ok := item.Data.(*messageItem)
	if !ok {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "unexpected item data")
	}
	m := mi.Message

	if m.Timestamp == "" {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "message ts missing")
	}
	ts, err := ParseTS(m.Timestamp)
	if err != nil {
		return nil, &adapter.NormalizationError{Adapter: a.Name(), ItemID: m.Timestamp, Reason: "message ts malformed", Err: err}
	}

	p := messagePayload{
		User:       adapter.OrUnknown(m.User),
		Text:       m.Text,
		Timestamp:  m.Timestamp,
		Channel:    mi.Channel,
		SubType:    m.SubType,
		BotID:      m.BotID,
		ReplyCount: m.ReplyCount,
	}
	if m.ThreadTimestamp != "" && m.ThreadTimestamp != m.Timestamp {
		p.IsThreadReply = true
		p.ThreadTimestamp = m.ThreadTimestamp
	}

	body, err := model.MarshalPayload(p)
	if err != nil {
		return nil, &adapter.NormalizationError{Adapter: a.Name(), ItemID: m.Timestamp, Reason: "payload encoding", Err: err}
	}

	// ts is unique per channel, not per workspace.
	entityID := mi.Channel + ":" + m.Timestamp
	var correlationID *string
	if p.IsThreadReply {
		thread := mi.Channel + ":" + m.ThreadTimestamp
		correlationID = &thread
	}

	identity := model.Identity{SourceSystem: model.SourceSlack, SourceEntityID: entityID, EventType: model.EventSlackMessagePosted}
	event, err := model.NewEvent(model.Draft{
		EventID:        model.IdentityID(identity),
		CorrelationID:  correlationID,
		Timestamp:      ts,
		SourceSystem:   model.SourceSlack,
		SourceEntityID: entityID,
		EventType:      model.EventSlackMessagePosted,
		Payload:        body,
	})
	if err != nil {
		return nil, &adapter.NormalizationError{Adapter: a.Name(), ItemID: m.Timestamp, Reason: "invalid event", Err: err}
	}
	return event, nil
}

// ParseTS converts a Slack ts ("1700000000.123456") to a time.
func ParseTS(ts string) (time.Time, error) {
	secStr, fracStr, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ts %q: %w", ts, err)
	}
	var micros int64
	if fracStr != "" {
		if len(fracStr) > 6 {
			fracStr = fracStr[:6]
		}
		fracStr += strings.Repeat("0", 6-len(fracStr))
		micros, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse ts %q: %w", ts, err)
		}
	}
	return time.Unix(sec, micros*1000).UTC(), nil
}

// FormatTS renders t as a Slack ts with microsecond precision.
func FormatTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}
