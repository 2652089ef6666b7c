package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"synapse.app/ingest/common/id"
	"synapse.app/ingest/common/logger"
	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/delivery"
	"synapse.app/ingest/internal/metrics"
)

// DefaultMaxConcurrentScopes bounds the scopes of one adapter synced at once.
const DefaultMaxConcurrentScopes = 4

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithMaxConcurrentScopes(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxScopes = n
		}
	}
}

// Orchestrator runs sync cycles. It is the only writer of cursor positions.
type Orchestrator struct {
	cursors  *cursor.Store
	client   delivery.Client
	registry *adapter.Registry
	logger   *slog.Logger
	now      func() time.Time

	maxScopes int

	mu       sync.Mutex
	inFlight map[cursor.Key]struct{}
}

func NewOrchestrator(cursors *cursor.Store, client delivery.Client, registry *adapter.Registry, log *slog.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		cursors:   cursors,
		client:    client,
		registry:  registry,
		logger:    log,
		now:       time.Now,
		maxScopes: DefaultMaxConcurrentScopes,
		inFlight:  make(map[cursor.Key]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) acquire(key cursor.Key) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[key]; busy {
		return false
	}
	o.inFlight[key] = struct{}{}
	return true
}

func (o *Orchestrator) release(key cursor.Key) {
	o.mu.Lock()
	delete(o.inFlight, key)
	o.mu.Unlock()
}

// InFlight reports whether a cycle for key is running.
func (o *Orchestrator) InFlight(key cursor.Key) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inFlight[key]
	return busy
}

// RunCycle performs one cycle for a single scope: read the cursor, fetch,
// normalize and deliver each item in order, then commit the end of the
// contiguous prefix of handled items.
//
// Items that fail normalization are skipped and do not break the prefix.
// The first delivery failure ends the prefix; later items are still
// delivered. A fetch failure before any item aborts without touching the
// cursor, and a canceled context abandons the cycle without a commit.
//
// The returned error is non-nil for skipped, aborted and canceled cycles
// and when the commit fails. Per-item failures are reported on the result.
func (o *Orchestrator) RunCycle(ctx context.Context, a adapter.Adapter, scope string) (*CycleResult, error) {
	res := &CycleResult{
		Adapter:   a.Name(),
		Scope:     scope,
		StartedAt: o.now(),
	}
	res.enter(StateIdle)
	key := res.Key()

	if !o.acquire(key) {
		res.Outcome = OutcomeSkipped
		res.Err = fmt.Errorf("%s: %w", key, ErrCycleInFlight)
		metrics.SyncCycles.WithLabelValues(res.Adapter, string(res.Outcome)).Inc()
		return res, res.Err
	}
	defer o.release(key)

	res.RunID = id.NewRunID()
	ctx = logger.WithCycle(ctx, res.Adapter, scope, res.RunID)
	ctx = logger.WithComponent(ctx, "synapse.syncer.orchestrator")

	sc := logger.StartSpan(ctx, "sync.cycle",
		attribute.String("sync.adapter", res.Adapter),
		attribute.String("sync.scope", scope),
		attribute.String("sync.run_id", res.RunID),
	)
	defer sc.End()
	ctx = sc.Context()

	o.runGuarded(ctx, a, res)

	res.Duration = o.now().Sub(res.StartedAt)
	res.enter(StateIdle)
	sc.SetAttributes(
		attribute.String("sync.outcome", string(res.Outcome)),
		attribute.Int("sync.fetched", res.Fetched),
		attribute.Int("sync.delivered", res.Delivered),
	)
	sc.RecordError(res.Err)
	o.record(ctx, res)

	return res, res.Err
}

// runGuarded contains a panic to its own cycle: the cycle is aborted and the
// scheduler and other scopes keep running.
func (o *Orchestrator) runGuarded(ctx context.Context, a adapter.Adapter, res *CycleResult) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		res.Outcome = OutcomeAborted
		res.Err = fmt.Errorf("%w: %s: %v", ErrCyclePanicked, res.Key(), r)
		o.logger.ErrorContext(ctx, "sync cycle panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	}()
	o.run(ctx, a, res)
}

func (o *Orchestrator) run(ctx context.Context, a adapter.Adapter, res *CycleResult) {
	key := res.Key()
	start := o.cursors.Get(ctx, key)
	res.From = start
	res.To = start

	// An empty batch commits the clock read before the request, so items the
	// source stamps while it answers stay after the watermark.
	fetchedAt := o.now()
	res.enter(StateFetching)
	items, err := a.ListSince(ctx, res.Scope, start)
	if err != nil {
		if ctx.Err() != nil {
			o.cancel(ctx, res)
			return
		}
		res.Outcome = OutcomeAborted
		res.Err = fmt.Errorf("%w: %s: %w", ErrSourceUnreachable, key, err)
		o.logger.WarnContext(ctx, "fetch failed, cursor unchanged", "error", err, "position", start.Time)
		return
	}

	// next is the end of the contiguous handled prefix.
	next := start
	contiguous := true
	saw := false

	for item, err := range items {
		if err != nil {
			res.FetchErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}
		saw = true
		res.Fetched++

		event, err := a.Normalize(item)
		if err != nil {
			res.NormalizationFailed++
			o.logger.WarnContext(ctx, "skipping item that failed normalization", "item_id", item.ID, "error", err)
			if contiguous {
				next = item.Position()
			}
			continue
		}

		res.enter(StateDelivering)
		ectx := logger.WithEvent(ctx, event.EventID.String(), string(event.EventType))
		if err := o.client.Deliver(ectx, event); err != nil {
			if ctx.Err() != nil {
				break
			}
			res.DeliveryFailed++
			if contiguous {
				res.enter(StatePartialFailure)
			}
			contiguous = false
			o.logger.WarnContext(ectx, "delivery failed, cursor held before item", "item_id", item.ID, "error", err)
			continue
		}
		res.Delivered++
		if contiguous {
			next = item.Position()
		}
	}

	if ctx.Err() != nil {
		o.cancel(ctx, res)
		return
	}

	if res.FetchErr != nil {
		res.enter(StatePartialFailure)
		o.logger.WarnContext(ctx, "fetch broke mid-batch, committing delivered prefix",
			"error", res.FetchErr, "fetched", res.Fetched)
	}

	if !saw && res.FetchErr == nil {
		next = cursor.At(fetchedAt)
	}

	res.Outcome = OutcomeSucceeded
	if res.DeliveryFailed > 0 || res.FetchErr != nil {
		res.Outcome = OutcomePartialFailure
	}

	res.enter(StateCommitting)
	if !next.Advances(start) {
		return
	}
	if err := o.cursors.Set(ctx, key, next); err != nil {
		res.Err = fmt.Errorf("committing cursor: %w", err)
		res.Outcome = OutcomePartialFailure
		o.logger.ErrorContext(ctx, "cursor commit failed", "error", err, "position", next.Time)
		return
	}
	res.To = next
	res.Committed = true
}

func (o *Orchestrator) cancel(ctx context.Context, res *CycleResult) {
	res.Outcome = OutcomeCanceled
	res.Err = ctx.Err()
	o.logger.InfoContext(ctx, "cycle canceled, cursor unchanged", "delivered", res.Delivered)
}

func (o *Orchestrator) record(ctx context.Context, res *CycleResult) {
	metrics.SyncCycles.WithLabelValues(res.Adapter, string(res.Outcome)).Inc()
	metrics.SyncCycleDuration.WithLabelValues(res.Adapter).Observe(res.Duration.Seconds())
	metrics.SyncItems.WithLabelValues(res.Adapter, metrics.ItemDelivered).Add(float64(res.Delivered))
	metrics.SyncItems.WithLabelValues(res.Adapter, metrics.ItemNormalizationFailed).Add(float64(res.NormalizationFailed))
	metrics.SyncItems.WithLabelValues(res.Adapter, metrics.ItemDeliveryFailed).Add(float64(res.DeliveryFailed))
	if res.Outcome != OutcomeSkipped && !res.To.Time.IsZero() {
		metrics.CursorLag.WithLabelValues(res.Adapter, res.Scope).Set(o.now().Sub(res.To.Time).Seconds())
	}

	level := slog.LevelInfo
	if res.Outcome == OutcomeAborted || res.Outcome == OutcomePartialFailure {
		level = slog.LevelWarn
	}
	o.logger.Log(ctx, level, "sync cycle finished",
		"outcome", res.Outcome,
		"fetched", res.Fetched,
		"delivered", res.Delivered,
		"normalization_failed", res.NormalizationFailed,
		"delivery_failed", res.DeliveryFailed,
		"committed", res.Committed,
		"duration", res.Duration)
}

// RunSource runs one cycle for every scope of a, concurrently.
func (o *Orchestrator) RunSource(ctx context.Context, a adapter.Adapter) *SourceResult {
	out := &SourceResult{Adapter: a.Name()}

	scopes, err := o.scopes(ctx, a)
	if err != nil {
		out.Err = fmt.Errorf("%w: listing scopes of %s: %w", ErrSourceUnreachable, a.Name(), err)
		o.logger.WarnContext(ctx, "could not resolve scopes", "adapter", a.Name(), "error", err)
		return out
	}

	out.Cycles = make([]*CycleResult, len(scopes))
	var g errgroup.Group
	g.SetLimit(o.maxScopes)
	for i, scope := range scopes {
		g.Go(func() error {
			// errors are reported per scope
			out.Cycles[i], _ = o.RunCycle(ctx, a, scope)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// scopes resolves the scopes of a, turning a panic into an error.
func (o *Orchestrator) scopes(ctx context.Context, a adapter.Adapter) (scopes []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCyclePanicked, r)
			o.logger.ErrorContext(ctx, "scope resolution panicked", "adapter", a.Name(), "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	return a.Scopes(ctx)
}

// RunAll runs RunSource for every registered adapter, concurrently.
func (o *Orchestrator) RunAll(ctx context.Context) []*SourceResult {
	adapters := o.registry.All()
	out := make([]*SourceResult, len(adapters))
	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = o.RunSource(ctx, a)
		}()
	}
	wg.Wait()
	return out
}

// RunAdapter runs RunSource for the named adapter.
func (o *Orchestrator) RunAdapter(ctx context.Context, name string) (*SourceResult, error) {
	a, err := o.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return o.RunSource(ctx, a), nil
}

// Registry exposes the adapters this orchestrator syncs.
func (o *Orchestrator) Registry() *adapter.Registry {
	return o.registry
}

// IsSkipped reports whether err came from a cycle that did not run.
func IsSkipped(err error) bool {
	return errors.Is(err, ErrCycleInFlight)
}
