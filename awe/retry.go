package awe

import (
	"math"
	"math/rand"
	"time"
)

// RetryTracker counts restarts per task tag and decides whether another
// is allowed under the configured cap (SPEC_FULL.md §7: TaskExecutionFailure
// and MarshalFailure are absorbed by restart up to MaxRestarts).
type RetryTracker struct {
	max     float64
	base    time.Duration
	maxWait time.Duration
	rng     *rand.Rand

	counts map[string]int
}

// NewRetryTracker returns a tracker allowing up to max restarts per tag
// (math.Inf(1) disables the cap), with exponential backoff based on base
// and capped at maxWait.
func NewRetryTracker(max float64, base, maxWait time.Duration, rng *rand.Rand) *RetryTracker {
	return &RetryTracker{
		max:     max,
		base:    base,
		maxWait: maxWait,
		rng:     rng,
		counts:  make(map[string]int),
	}
}

// Attempt records a restart attempt for tag and reports whether it is
// permitted along with the backoff delay to wait before resubmitting.
func (r *RetryTracker) Attempt(tag string) (allowed bool, backoff time.Duration) {
	n := r.counts[tag]
	if !math.IsInf(r.max, 1) && float64(n) >= r.max {
		return false, 0
	}
	r.counts[tag] = n + 1
	return true, computeBackoff(n, r.base, r.maxWait, r.rng)
}

// Forget drops the restart count for tag, called once its result is
// accepted so the tag can be reused without inheriting stale history.
func (r *RetryTracker) Forget(tag string) {
	delete(r.counts, tag)
}

// computeBackoff returns base*2^attempt (capped at maxWait) plus jitter
// uniformly distributed in [0, base).
func computeBackoff(attempt int, base, maxWait time.Duration, rng *rand.Rand) time.Duration {
	delay := base
	for i := 0; i < attempt && delay < maxWait; i++ {
		delay *= 2
	}
	if delay > maxWait {
		delay = maxWait
	}
	if base > 0 {
		delay += time.Duration(rng.Int63n(int64(base)))
	}
	return delay
}
