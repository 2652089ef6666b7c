package adapter

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/model"
)

// Unknown is substituted for optional source fields that are absent, so
// payloads keep a stable shape.
const Unknown = "unknown"

// RawItem is one source record as fetched, before normalization. Timestamp
// and Token define the position reached once the item is processed,
// whether or not it normalizes.
type RawItem struct {
	Timestamp time.Time
	ID        string
	Token     string
	Data      any
}

func (r RawItem) Position() cursor.Position {
	return cursor.Position{Time: r.Timestamp.UTC(), Token: r.Token}
}

// Adapter polls one kind of record from one external system.
//
// ListSince returns the items strictly after since, in non-decreasing
// timestamp order. An error from ListSince itself means nothing could be
// fetched; an error yielded by the sequence means the fetch broke after the
// items already yielded. The sequence is single-use.
type Adapter interface {
	Name() string
	Source() model.SourceSystem
	Lookback() time.Duration
	Scopes(ctx context.Context) ([]string, error)
	ListSince(ctx context.Context, scope string, since cursor.Position) (iter.Seq2[RawItem, error], error)
	Normalize(item RawItem) (*model.Event, error)
}

// ErrNormalization matches every NormalizationError via errors.Is.
var ErrNormalization = errors.New("normalization failed")

// NormalizationError reports a source item missing a mandatory field.
type NormalizationError struct {
	Adapter string
	ItemID  string
	Reason  string
	Err     error
}

func (e *NormalizationError) Error() string {
	msg := fmt.Sprintf("normalize %s item %s: %s", e.Adapter, e.ItemID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NormalizationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNormalization, e.Err}
	}
	return []error{ErrNormalization}
}

func NewNormalizationError(adapter, itemID, reason string) *NormalizationError {
	return &NormalizationError{Adapter: adapter, ItemID: itemID, Reason: reason}
}

// OrUnknown returns s, or Unknown when s is blank.
func OrUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}

// Sequence yields items in order. Fetchers that must read a whole window
// before ordering it use this to expose the result lazily.
func Sequence(items []RawItem) iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Ascending takes a newest-first page set, drops items at or before since and
// returns the rest oldest first. Ties stay in reversed source order.
func Ascending(newestFirst []RawItem, since cursor.Position) []RawItem {
	out := make([]RawItem, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		item := newestFirst[i]
		if !item.Timestamp.After(since.Time) {
			continue
		}
		out = append(out, item)
	}
	slices.SortStableFunc(out, func(a, b RawItem) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// ScopeSet is a replaceable list of scopes shared between an adapter and the
// sources file watcher.
type ScopeSet struct {
	mu     sync.RWMutex
	scopes []string
}

func NewScopeSet(scopes ...string) *ScopeSet {
	s := &ScopeSet{}
	s.Replace(scopes)
	return s
}

func (s *ScopeSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scopes)
}

func (s *ScopeSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scopes)
}

// Replace swaps the scope list, dropping blanks and duplicates.
func (s *ScopeSet) Replace(scopes []string) {
	seen := make(map[string]struct{}, len(scopes))
	cleaned := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, dup := seen[scope]; dup {
			continue
		}
		seen[scope] = struct{}{}
		cleaned = append(cleaned, scope)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes = cleaned
}
