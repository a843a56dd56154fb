// Package outbox contains pure policy types for the SMS outbox queue.
// It is free of store and transport concerns.
package outbox

import "time"

const (
	// DefaultBaseDelay is the first retry delay.
	DefaultBaseDelay = 5 * time.Second
	// DefaultMaxDelay caps the exponential growth of retry delays.
	DefaultMaxDelay = 5 * time.Minute

	// maxExponent bounds 2^n growth so the multiplier never overflows.
	maxExponent = 10
)

// BackoffPolicy computes the delay before a failed job becomes claimable
// again. Deterministic: delay = min(max, base * 2^clamp(attempt-1, 0, 10)).
type BackoffPolicy struct {
	base time.Duration
	max  time.Duration
}

// NewBackoffPolicy constructs a BackoffPolicy, substituting defaults for
// non-positive durations and ensuring max is never below base.
func NewBackoffPolicy(base, max time.Duration) BackoffPolicy {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if max < base {
		max = base
	}
	return BackoffPolicy{base: base, max: max}
}

// Delay returns the retry delay for the given attempt count. The count is
// the attempts made so far including the one just reported failed, so the
// first retry uses the base delay.
func (p BackoffPolicy) Delay(attemptCount int) time.Duration {
	exp := attemptCount - 1
	if exp < 0 {
		exp = 0
	}
	if exp > maxExponent {
		exp = maxExponent
	}

	delay := p.base * (1 << exp)
	if delay > p.max || delay <= 0 {
		return p.max
	}
	return delay
}

// Base returns the configured base delay.
func (p BackoffPolicy) Base() time.Duration { return p.base }

// Max returns the configured delay cap.
func (p BackoffPolicy) Max() time.Duration { return p.max }
