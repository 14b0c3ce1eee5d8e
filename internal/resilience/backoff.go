package resilience

import (
	"math/rand"
	"time"
)

// RetryPolicy describes automatic retries for idempotent reads. MaxRetries
// counts retries after the first attempt; zero means a single attempt.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Jitter     float64
}

// DefaultReadPolicy masks an order service cold start: 1s, 2s, 4s, capped at 8s.
func DefaultReadPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Second, MaxDelay: 8 * time.Second, MaxRetries: 3}
}

// NoRetry is the write-path policy: exactly one attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// Attempts returns the total number of attempts the policy permits.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	return CappedBackoff(p.BaseDelay, p.MaxDelay, retry, p.Jitter)
}

// Backoff returns an exponential backoff duration for the provided attempt.
// Jitter is expressed as a fraction (e.g. 0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * jitterPct
	delta := (rand.Float64()*2 - 1) * jitter
	return d + time.Duration(delta)
}

// CappedBackoff is Backoff limited to max (when max > 0).
func CappedBackoff(base, max time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := Backoff(base, attempt, jitterPct)
	if max > 0 && d > max {
		return max
	}
	return d
}
