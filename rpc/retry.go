package rpc

import (
	"context"
	"time"
)

// RetryPolicy configures retries for backing-store reads. Writes are
// never retried (spec.md §4.3 "Retry policy"): the caller surfaces
// the error.
type RetryPolicy struct {
	MaxAttempts    int
	InitialTimeout time.Duration
	Backoff        float64
	Pause          time.Duration
}

// DefaultGetRetry matches spec.md §6's recognized get_retry defaults:
// up to 3 attempts, exponential backoff starting at 2s, factor 2, with
// a 500ms pause between attempts.
var DefaultGetRetry = RetryPolicy{
	MaxAttempts:    3,
	InitialTimeout: 2 * time.Second,
	Backoff:        2.0,
	Pause:          500 * time.Millisecond,
}

// do runs fn up to p.MaxAttempts times, each attempt bounded by a
// per-attempt timeout that grows by p.Backoff, pausing p.Pause between
// attempts. It returns the last error if every attempt fails.
func (p RetryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	timeout := p.InitialTimeout
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = fn(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < p.MaxAttempts-1 {
			select {
			case <-time.After(p.Pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		timeout = time.Duration(float64(timeout) * p.Backoff)
	}
	return lastErr
}
