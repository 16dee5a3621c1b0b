// Package jobs runs periodic tasks on cron schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is the unit of periodic work.
type Task func(ctx context.Context) error

// Job binds a task to a standard five-field cron spec.
type Job struct {
	Name string
	Spec string
	Task Task
}

// Entry describes a registered job.
type Entry struct {
	Name string
	Next time.Time
	Prev time.Time
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[cron.EntryID]string
}

func New(loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With("component", "jobs")
	adapter := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.SkipIfStillRunning(adapter), cron.Recover(adapter)),
		),
		logger:  logger,
		ctx:     context.Background(),
		entries: make(map[cron.EntryID]string),
	}
}

// Add registers job. The spec is validated immediately.
func (s *Scheduler) Add(job Job) error {
	if s == nil {
		return fmt.Errorf("scheduler is nil")
	}
	if job.Task == nil {
		return fmt.Errorf("job %q has no task", job.Name)
	}
	if _, err := cron.ParseStandard(job.Spec); err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", job.Name, job.Spec, err)
	}

	id, err := s.cron.AddJob(job.Spec, s.wrap(job))
	if err != nil {
		return fmt.Errorf("job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	s.entries[id] = job.Name
	s.mu.Unlock()
	s.logger.Info("job registered", "job", job.Name, "spec", job.Spec)
	return nil
}

// Start begins scheduling. Tasks receive ctx, which should outlive the
// scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if ctx != nil {
		s.ctx = ctx
	}
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts scheduling and waits for running tasks until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries lists registered jobs ordered by next activation.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.cron.Entries() {
		out = append(out, Entry{Name: s.entries[e.ID], Next: e.Next, Prev: e.Prev})
	}
	return out
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) wrap(job Job) cron.Job {
	return cron.FuncJob(func() {
		ctx := s.baseContext()
		if ctx.Err() != nil {
			return
		}

		logger := s.logger.With("job", job.Name)
		start := time.Now()
		logger.InfoContext(ctx, "job started")
		if err := job.Task(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.WarnContext(ctx, "job cancelled", "duration", time.Since(start))
				return
			}
			logger.ErrorContext(ctx, "job failed", "error", err, "duration", time.Since(start))
			return
		}
		logger.InfoContext(ctx, "job finished", "duration", time.Since(start))
	})
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
