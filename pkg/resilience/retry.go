package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds exponential backoff for infrastructure calls (backup
// stores, object storage). Conversation turns never retry.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxElapsed time.Duration
}

func NewRetryPolicy(maxRetries int, initial time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: initial, MaxElapsed: 10 * time.Second}
}

// Do runs fn until it succeeds, the retries are spent, or ctx is done.
// Errors wrapped with backoff.Permanent stop immediately.
func (r RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.Backoff
	if r.MaxElapsed > 0 {
		bo.MaxElapsedTime = r.MaxElapsed
	}
	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithMaxRetries(bo, uint64(retries))
	return backoff.Retry(fn, backoff.WithContext(policy, ctx))
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
