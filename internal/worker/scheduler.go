package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"synapse.app/ingest/common/logger"
	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/syncer"
)

// SourceRunner runs one cycle over every scope of an adapter.
type SourceRunner interface {
	RunSource(ctx context.Context, a adapter.Adapter) *syncer.SourceResult
}

// Job is one adapter with its polling interval.
type Job struct {
	Adapter  adapter.Adapter
	Interval time.Duration
}

// Scheduler polls each adapter on its own timer. The first cycle of every
// adapter runs as soon as the scheduler starts.
type Scheduler struct {
	runner SourceRunner
	jobs   []Job
	logger *slog.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

func NewScheduler(runner SourceRunner, jobs []Job, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		runner:    runner,
		jobs:      jobs,
		logger:    log,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts one loop per job. Blocks until ctx is done or Stop is called;
// cycles in flight are canceled and awaited before it returns.
func (s *Scheduler) Run(ctx context.Context) {
	ctx = logger.WithComponent(ctx, "synapse.worker.scheduler")
	defer close(s.stoppedCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.WarnContext(ctx, "adapter has no poll interval, not scheduling", "adapter", job.Adapter.Name())
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job)
		}()
	}

	s.logger.InfoContext(ctx, "scheduler started", "jobs", len(s.jobs))

	select {
	case <-ctx.Done():
	case <-s.stopCh:
		s.logger.InfoContext(ctx, "scheduler stopping")
	}
	cancel()
	wg.Wait()
}

// Stop signals the scheduler to stop and waits for Run to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.stoppedCh
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	name := job.Adapter.Name()
	s.logger.InfoContext(ctx, "polling adapter", "adapter", name, "interval", job.Interval)

	s.tick(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, job)
		}
	}
}

// tick runs one cycle and absorbs any panic so later ticks still run.
func (s *Scheduler) tick(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "sync cycle panicked",
				"adapter", job.Adapter.Name(),
				"error", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	res := s.runner.RunSource(ctx, job.Adapter)
	if res != nil && res.Err != nil {
		s.logger.WarnContext(ctx, "sync tick failed", "adapter", job.Adapter.Name(), "error", res.Err)
	}
}
