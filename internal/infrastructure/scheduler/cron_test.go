package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, nil)
	assert.Error(t, s.Every(0, "zero", func(context.Context) {}))
	assert.Error(t, s.Every(time.Second, "nil", nil))
	require.NoError(t, s.Every(time.Second, "feed-1", func(context.Context) {}))
	assert.Error(t, s.Every(time.Second, "feed-1", func(context.Context) {}))
}

func TestStartRunsJobsImmediately(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, nil)
	var runs atomic.Int32
	require.NoError(t, s.Every(time.Hour, "feed-1", func(context.Context) { runs.Add(1) }))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(1), runs.Load())
}

func TestStopCancelsRunningJobs(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, nil)
	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, s.Every(time.Hour, "slow", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
	}))

	require.NoError(t, s.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, finished.Load())
}

func TestOverlappingTicksAreSkipped(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, nil)
	var runs atomic.Int32
	release := make(chan struct{})
	require.NoError(t, s.Every(time.Second, "busy", func(ctx context.Context) {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.NoError(t, s.Stop(context.Background()))
}

func TestJobsRegisteredAfterStartRunImmediately(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, nil)
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()

	done := make(chan struct{})
	require.NoError(t, s.Every(time.Hour, "late", func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("late job did not run")
	}
}
