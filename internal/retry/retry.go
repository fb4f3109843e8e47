package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

type Policy struct {
	Attempts int           // total tries, including the first
	Base     time.Duration // delay before the second try
	Max      time.Duration // cap for a single delay
}

func (p Policy) backoff() goretry.Backoff {
	base := p.Base
	if base <= 0 {
		base = time.Nanosecond
	}
	b := goretry.NewExponential(base)
	if p.Max > 0 {
		b = goretry.WithCappedDuration(p.Max, b)
	}
	b = goretry.WithJitterPercent(20, b)
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return goretry.WithMaxRetries(uint64(attempts-1), b)
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx ends. The last error from fn is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var last error
	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		last = fn(ctx)
		if last != nil && retryable(last) {
			return goretry.RetryableError(last)
		}
		return last
	})
	if err != nil && last != nil {
		return last
	}
	return err
}
