package util

import (
	"math/rand"
	"time"
)

// CalculateExponentialBackoff computes backoff = min(base * multiplier^attempt, maxDelay),
// per spec.md §4.1. attempt is zero-based (the first retry uses attempt=0).
func CalculateExponentialBackoff(attempt int, base, multiplier float64, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	seconds := base
	for i := 0; i < attempt; i++ {
		seconds *= multiplier
	}

	backoff := time.Duration(seconds * float64(time.Second))
	if backoff > maxDelay {
		backoff = maxDelay
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}

// JitterMillis returns a random duration in [0, maxMillis) for the
// Fetcher's up-to-500ms jitter layered on top of the exponential backoff.
func JitterMillis(maxMillis int) time.Duration {
	if maxMillis <= 0 {
		return 0
	}
	return time.Duration(rand.Intn(maxMillis)) * time.Millisecond
}
