package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
)

// deadlockCode is the Postgres SQLSTATE for deadlock_detected.
const deadlockCode pq.ErrorCode = "40P01"

type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

var defaultRetryPolicy = retryPolicy{attempts: 3, backoff: 50 * time.Millisecond}

// run calls fn until it succeeds, fails with a non-deadlock error or the
// attempts run out. The wait before attempt n+1 is backoff*n. It returns
// the number of attempts made.
func (p retryPolicy) run(ctx context.Context, fn func(attempt int) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if !isDeadlock(err) {
			return attempt, err
		}
		lastErr = err

		if attempt == p.attempts {
			break
		}

		timer := time.NewTimer(p.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("deadlock retry interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return p.attempts, fmt.Errorf("%w: %w", domain.ErrDeadlockRetryExhausted, lastErr)
}

func isDeadlock(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == deadlockCode
}
