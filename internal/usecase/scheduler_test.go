package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDriver struct {
	jobs     map[string]func(context.Context)
	interval time.Duration
	started  bool
	stopped  bool
	everyErr error
}

func (d *recordingDriver) Every(interval time.Duration, name string, job func(ctx context.Context)) error {
	if d.everyErr != nil {
		return d.everyErr
	}
	if d.jobs == nil {
		d.jobs = map[string]func(context.Context){}
	}
	d.interval = interval
	d.jobs[name] = job
	return nil
}

func (d *recordingDriver) Start(context.Context) error {
	d.started = true
	return nil
}

func (d *recordingDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRegistersOneJobPerFeed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, singleEntryFeed)
	driver := &recordingDriver{}
	s := NewScheduler(driver, h.pipeline, 5*time.Minute, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, driver.started)
	assert.Equal(t, 5*time.Minute, driver.interval)
	require.Contains(t, driver.jobs, "feed-7")

	driver.jobs["feed-7"](context.Background())
	h.clock.Advance(31 * time.Minute)
	driver.jobs["feed-7"](context.Background())
	assert.Len(t, h.repo.records, 1)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

func TestSchedulerStartPropagatesRegistrationError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, singleEntryFeed)
	driver := &recordingDriver{everyErr: errors.New("bad interval")}
	s := NewScheduler(driver, h.pipeline, 0, nil)

	assert.Error(t, s.Start(context.Background()))
	assert.False(t, driver.started)
}

func TestSchedulerRunOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, singleEntryFeed)
	s := NewScheduler(nil, h.pipeline, time.Minute, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	h.clock.Advance(31 * time.Minute)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), h.summarizer.calls.Load())
}
