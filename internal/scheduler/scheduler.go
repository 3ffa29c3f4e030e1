// Package scheduler runs the periodic maintenance tasks: market discovery,
// the resolution sweep, the activity report, and the trade archive.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler ticks each registered job on its own interval. A tick that
// arrives while the previous run is still in flight is skipped, and a tick
// serviced later than the misfire grace is dropped rather than run late.
type Scheduler struct {
	jobs         []Job
	misfireGrace time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// New creates a scheduler. Jobs with a non-positive interval are ignored.
func New(misfireGrace time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		misfireGrace: misfireGrace,
		logger:       logger.With(slog.String("component", "scheduler")),
		running:      make(map[string]bool),
	}
}

// Register adds a job. Must be called before Run.
func (s *Scheduler) Register(job Job) {
	if job.Interval <= 0 {
		s.logger.Warn("job skipped, no interval", slog.String("job", job.Name))
		return
	}
	s.jobs = append(s.jobs, job)
}

// Run ticks every job until ctx is cancelled. Each job fires once at startup
// and then on its interval.
func (s *Scheduler) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		group.Go(func() error {
			s.loop(gctx, job)
			return nil
		})
	}
	return group.Wait()
}

// Trigger runs a job by name outside its schedule, e.g. from the control
// surface. It reports whether the job exists; a run already in flight
// coalesces like a regular tick.
func (s *Scheduler) Trigger(ctx context.Context, name string) bool {
	for _, job := range s.jobs {
		if job.Name == name {
			go s.fire(ctx, job, time.Now())
			return true
		}
	}
	return false
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.fire(ctx, job, time.Now())

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			s.fire(ctx, job, tick)
		}
	}
}

// fire runs one job invocation, honoring the coalesce and misfire rules.
func (s *Scheduler) fire(ctx context.Context, job Job, scheduled time.Time) {
	if s.misfireGrace > 0 && time.Since(scheduled) > s.misfireGrace {
		s.logger.Warn("misfired tick dropped",
			slog.String("job", job.Name),
			slog.Duration("late_by", time.Since(scheduled)),
		)
		return
	}

	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		s.logger.Debug("tick coalesced, previous run in flight", slog.String("job", job.Name))
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[job.Name] = false
		s.mu.Unlock()
	}()

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("job failed",
			slog.String("job", job.Name),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("job finished",
		slog.String("job", job.Name),
		slog.Duration("elapsed", time.Since(started)),
	)
}
