package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/ports"
)

// Scheduler registers one recurring poll per feed with the driver.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring feed polls.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, interval: interval, logger: log}
}

// Start registers every feed and starts the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	feeds := s.pipeline.Feeds()
	if len(feeds) == 0 {
		s.logger.Warn("no feeds configured")
	}

	for _, feed := range feeds {
		if err := s.driver.Every(s.interval, jobName(feed), s.pollJob(feed)); err != nil {
			return fmt.Errorf("schedule feed %d: %w", feed.ID, err)
		}
	}

	return s.driver.Start(ctx)
}

// RunOnce polls every feed a single time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.pipeline == nil {
		return nil
	}
	_, err := s.pipeline.PollAll(ctx)
	return err
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) pollJob(feed domain.FeedDefinition) func(context.Context) {
	return func(ctx context.Context) {
		// PollFeed logs its own failures; the next tick retries regardless.
		_, _ = s.pipeline.PollFeed(ctx, feed)
	}
}

func jobName(feed domain.FeedDefinition) string {
	return fmt.Sprintf("feed-%d", feed.ID)
}
