package cursor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"synapse.app/ingest/common/logger"
)

// DefaultLookback applies to adapters without their own lookback policy.
const DefaultLookback = 24 * time.Hour

// Store is the single owner of cursor state. A missing cursor resolves to
// now minus the adapter's lookback window.
type Store struct {
	backend         Backend
	logger          *slog.Logger
	now             func() time.Time
	mu              sync.RWMutex
	lookbacks       map[string]time.Duration
	defaultLookback time.Duration
}

type Option func(*Store)

// WithLookback sets the lookback window used for an adapter's absent cursors.
func WithLookback(source string, d time.Duration) Option {
	return func(s *Store) { s.lookbacks[source] = d }
}

func WithDefaultLookback(d time.Duration) Option {
	return func(s *Store) { s.defaultLookback = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(backend Backend, log *slog.Logger, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		backend:         backend,
		logger:          log,
		now:             time.Now,
		lookbacks:       make(map[string]time.Duration),
		defaultLookback: DefaultLookback,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SetLookback(source string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookbacks[source] = d
}

func (s *Store) Lookback(source string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.lookbacks[source]; ok && d > 0 {
		return d
	}
	return s.defaultLookback
}

// Get returns the stored position for key. It never fails: an absent cursor
// is created at the lookback default, and a backend error degrades to that
// default without persisting it.
func (s *Store) Get(ctx context.Context, key Key) Position {
	ctx = logger.WithFields(ctx, logger.Fields{
		Source:    key.Source,
		Scope:     key.Scope,
		Component: "synapse.cursor.store",
	})

	pos, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		fallback := s.defaultFor(key.Source)
		s.logger.WarnContext(ctx, "cursor read failed, using lookback default",
			"error", err, "position", fallback.Time)
		return fallback
	}
	if ok {
		return pos
	}

	pos = s.defaultFor(key.Source)
	if err := s.backend.Save(ctx, key, pos); err != nil {
		s.logger.WarnContext(ctx, "failed to persist default cursor", "error", err)
	} else {
		s.logger.InfoContext(ctx, "cursor initialized", "position", pos.Time, "lookback", s.Lookback(key.Source))
	}
	return pos
}

// Peek reads a cursor without creating it.
func (s *Store) Peek(ctx context.Context, key Key) (Position, bool, error) {
	pos, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		return Position{}, false, fmt.Errorf("loading cursor %s: %w", key, err)
	}
	return pos, ok, nil
}

// Set overwrites the cursor for key.
func (s *Store) Set(ctx context.Context, key Key, pos Position) error {
	pos.Time = pos.Time.UTC()
	if err := s.backend.Save(ctx, key, pos); err != nil {
		return fmt.Errorf("saving cursor %s: %w", key, err)
	}
	return nil
}

// Clear removes one cursor; the next Get recreates it from the lookback window.
func (s *Store) Clear(ctx context.Context, key Key) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("clearing cursor %s: %w", key, err)
	}
	return nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.backend.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clearing all cursors: %w", err)
	}
	return nil
}

func (s *Store) defaultFor(source string) Position {
	return At(s.now().Add(-s.Lookback(source)))
}
