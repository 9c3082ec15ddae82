package workerpool

import (
	"context"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
)

const (
	defaultAttempts     = 3
	defaultInitialRetry = 200 * time.Millisecond
	defaultMaxRetry     = 5 * time.Second
)

// RetryPolicy describes how many times and how often a producing call
// should be retried inside a single task run.
// Zero values are treated as "single attempt, no backoff".
type RetryPolicy struct {
	// Attempts is the maximum number of tries.
	Attempts int

	// Initial is the first backoff duration.
	Initial time.Duration

	// Max is the cap for backoff duration.
	Max time.Duration
}

// GetDefaultRP returns a pointer to the default retry policy.
func GetDefaultRP() *RetryPolicy {
	rp := RetryPolicy{
		Attempts: defaultAttempts,
		Initial:  defaultInitialRetry,
		Max:      defaultMaxRetry,
	}
	return &rp
}

// Do calls fn until it succeeds, the attempts are exhausted or ctx is done.
// onRetry, if set, is called before every backoff sleep.
// A nil policy performs exactly one attempt.
func (rp *RetryPolicy) Do(ctx context.Context, fn func() error, onRetry func(attempt int, delay time.Duration, err error)) error {
	attempts := 1
	initial, maxDelay := defaultInitialRetry, defaultMaxRetry
	if rp != nil {
		if rp.Attempts > 0 {
			attempts = rp.Attempts
		}
		if rp.Initial > 0 {
			initial = rp.Initial
		}
		if rp.Max > 0 {
			maxDelay = rp.Max
		}
	}

	bo := boff.New(initial, maxDelay, time.Now().UnixNano())
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		delay := bo.Next()
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
	return err
}
