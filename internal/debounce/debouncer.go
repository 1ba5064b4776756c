// Package debounce suppresses re-processing of articles whose source keeps
// updating them, so that enrichment runs once an article has settled.
//
// State is an in-memory map keyed by article reference. It grows with the
// number of distinct references ever observed and is never evicted here;
// retention is left to the caller (process restart or an external sweep).
// Losing the state on restart costs at most one extra processing burst.
package debounce

import (
	"math/rand/v2"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type bucket struct {
	maxAge time.Duration
	mean   time.Duration
}

var buckets = []bucket{
	{maxAge: time.Hour, mean: 30 * time.Minute},
	{maxAge: 6 * time.Hour, mean: time.Hour},
	{maxAge: 24 * time.Hour, mean: 3 * time.Hour},
	{maxAge: 7 * 24 * time.Hour, mean: 6 * time.Hour},
}

const oldestMean = 24 * time.Hour

// Debouncer tracks a ready-at timestamp per article reference.
type Debouncer struct {
	readyAt cmap.ConcurrentMap[string, time.Time]
	random  func() float64
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithRandom replaces the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(d *Debouncer) {
		if fn != nil {
			d.random = fn
		}
	}
}

// New creates an empty debouncer.
func New(opts ...Option) *Debouncer {
	d := &Debouncer{
		readyAt: cmap.New[time.Time](),
		random:  rand.Float64,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsReady reports whether the reference may be processed now. Every call
// reschedules the reference; only a call landing at or after the previous
// ready-at returns true. A reference seen for the first time is never ready.
func (d *Debouncer) IsReady(reference string, updated, now time.Time) bool {
	next := now.Add(d.Window(now.Sub(updated)))

	var ready bool
	d.readyAt.Upsert(reference, next, func(exist bool, current, fresh time.Time) time.Time {
		ready = exist && !now.Before(current)
		return fresh
	})
	return ready
}

// Retry makes a tracked reference ready again at the given instant, so a
// failed processing attempt is repeated on the next poll instead of waiting
// out a full window. Untracked references are left alone.
func (d *Debouncer) Retry(reference string, at time.Time) {
	// Entries are never removed, so Has followed by Upsert cannot resurrect one.
	if !d.readyAt.Has(reference) {
		return
	}
	d.readyAt.Upsert(reference, at, func(exist bool, current, fresh time.Time) time.Time {
		if exist && fresh.Before(current) {
			return fresh
		}
		return current
	})
}

// ReadyAt returns the scheduled ready-at timestamp of a tracked reference.
func (d *Debouncer) ReadyAt(reference string) (time.Time, bool) {
	return d.readyAt.Get(reference)
}

// Len returns the number of tracked references.
func (d *Debouncer) Len() int {
	return d.readyAt.Count()
}

// Window returns the mean window for age with uniform jitter in [-mean/2, +mean/2).
func (d *Debouncer) Window(age time.Duration) time.Duration {
	mean := MeanWindow(age)
	jitter := time.Duration(float64(mean) * (d.random() - 0.5))
	return mean + jitter
}

// MeanWindow selects the mean debounce duration by article age.
func MeanWindow(age time.Duration) time.Duration {
	for _, b := range buckets {
		if age < b.maxAge {
			return b.mean
		}
	}
	return oldestMean
}
