package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/ports"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/pkg/logger"
)

// CronScheduler runs named jobs at fixed intervals on robfig/cron. A job
// whose previous run is still in flight is skipped for that tick.
type CronScheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	ids     map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	kicks   sync.WaitGroup
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler evaluating schedules in loc.
func NewCronScheduler(loc *time.Location, log *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	cl := logger.Cron(log, "cron")
	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: log,
		ids:    make(map[string]cron.EntryID),
	}
}

// Every registers job under name. Intervals below one second are rounded
// up to one second by cron. Jobs registered after Start run immediately.
func (s *CronScheduler) Every(interval time.Duration, name string, job func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive, got %s", name, interval)
	}
	if job == nil {
		return fmt.Errorf("schedule %s: nil job", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[name]; dup {
		return fmt.Errorf("schedule %s: already registered", name)
	}

	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		job(s.jobContext())
	}))
	s.ids[name] = id
	s.logger.Debug("job scheduled", "job", name, "interval", interval)

	if s.started {
		s.kick(id)
	}
	return nil
}

// Start launches the cron loop and runs every registered job once right away.
func (s *CronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.cron.Start()
	for _, id := range s.ids {
		s.kick(id)
	}
	s.logger.Info("scheduler started", "jobs", len(s.ids))
	return nil
}

// Stop cancels running jobs and waits for them to return or for ctx to end.
func (s *CronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	kicksDone := make(chan struct{})
	go func() {
		s.kicks.Wait()
		close(kicksDone)
	}()

	for _, done := range []<-chan struct{}{cronDone.Done(), kicksDone} {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("scheduler stop: %w", ctx.Err())
		}
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// kick runs the wrapped job outside the cron loop so the chain still applies.
func (s *CronScheduler) kick(id cron.EntryID) {
	entry := s.cron.Entry(id)
	if entry.WrappedJob == nil {
		return
	}
	s.kicks.Add(1)
	go func() {
		defer s.kicks.Done()
		entry.WrappedJob.Run()
	}()
}

func (s *CronScheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}
