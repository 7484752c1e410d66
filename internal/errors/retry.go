package errors

import (
	"context"
	"time"
)

// BackoffFunc returns the delay to wait after the given failed attempt (1-based).
type BackoffFunc func(attempt int, base time.Duration) time.Duration

// LinearBackoff waits base, 2*base, 3*base, ...
func LinearBackoff(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt) * base
}

// ExponentialBackoff waits base, 2*base, 4*base, ...
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// RetryPolicy is the single bounded-retry value shared by the extractor and
// the object store gateway.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Backoff     BackoffFunc

	// Retryable decides whether a failed attempt may be repeated. Defaults to
	// IsRecoverableError on the classified error.
	Retryable func(error) bool

	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, delay time.Duration, err error)

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns three attempts with linearly increasing delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Backoff:     LinearBackoff,
	}
}

// WithoutDelay returns a copy of the policy that never sleeps.
func (p RetryPolicy) WithoutDelay() RetryPolicy {
	p.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

// Do runs operation until it succeeds, returns a non-retryable error, or the
// attempt bound is reached. The last error is returned classified, with the
// attempt count attached.
func (p RetryPolicy) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewAppError(ErrorTypeInterruption, "Operation canceled", err)
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.retryable(err) || attempt == attempts {
			break
		}

		delay := p.delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := p.wait(ctx, delay); err != nil {
			return NewAppError(ErrorTypeInterruption, "Operation canceled during retry", err)
		}
	}

	return Classify(lastErr).WithContext("attempts", attempts)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return Classify(err).IsRecoverable()
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	backoff := p.Backoff
	if backoff == nil {
		backoff = LinearBackoff
	}
	d := backoff(attempt, p.BaseDelay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
