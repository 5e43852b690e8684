package fetcher

import (
	"context"
	"errors"
	"math"
	"time"
)

// BackoffDuration is the sleep after the failed attempt with 0-based index
// attempt: 2^attempt seconds plus jitter seconds, jitter in [0,1).
func BackoffDuration(attempt int, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	seconds := math.Pow(2, float64(attempt)) + jitter
	return time.Duration(seconds * float64(time.Second))
}

// ShouldRetry decides whether the error is transient. Network errors,
// timeouts and non-2xx statuses are; caller cancellation and robots.txt
// refusals are not.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrDisallowed)
}
