package awe

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestRetryTrackerEnforcesCap(t *testing.T) {
	rt := NewRetryTracker(2, time.Millisecond, time.Second, rand.New(rand.NewSource(1)))

	for i := 0; i < 2; i++ {
		allowed, _ := rt.Attempt("tag-a")
		if !allowed {
			t.Fatalf("Attempt() #%d = false, want true (under cap)", i)
		}
	}
	allowed, _ := rt.Attempt("tag-a")
	if allowed {
		t.Fatal("Attempt() after cap reached = true, want false")
	}
}

func TestRetryTrackerUnboundedWithInfinity(t *testing.T) {
	rt := NewRetryTracker(math.Inf(1), time.Millisecond, time.Second, rand.New(rand.NewSource(1)))
	for i := 0; i < 50; i++ {
		allowed, _ := rt.Attempt("tag-a")
		if !allowed {
			t.Fatalf("Attempt() #%d = false, want true (unbounded)", i)
		}
	}
}

func TestRetryTrackerForgetResetsCount(t *testing.T) {
	rt := NewRetryTracker(1, time.Millisecond, time.Second, rand.New(rand.NewSource(1)))
	rt.Attempt("tag-a")
	if allowed, _ := rt.Attempt("tag-a"); allowed {
		t.Fatal("Attempt() should be denied at cap before Forget")
	}
	rt.Forget("tag-a")
	if allowed, _ := rt.Attempt("tag-a"); !allowed {
		t.Fatal("Attempt() after Forget should be allowed again")
	}
}

func TestComputeBackoffCapsAtMaxWait(t *testing.T) {
	base := 10 * time.Millisecond
	maxWait := 40 * time.Millisecond
	rng := rand.New(rand.NewSource(1))

	d := computeBackoff(10, base, maxWait, rng)
	if d < maxWait || d >= maxWait+base {
		t.Fatalf("computeBackoff(10) = %v, want in [%v, %v)", d, maxWait, maxWait+base)
	}
}

func TestComputeBackoffGrowsWithAttempt(t *testing.T) {
	base := 10 * time.Millisecond
	maxWait := time.Hour
	rng := rand.New(rand.NewSource(1))

	d0 := computeBackoff(0, base, maxWait, rng)
	d3 := computeBackoff(3, base, maxWait, rng)
	if d3 < d0 {
		t.Fatalf("computeBackoff(3) = %v, should not be smaller than computeBackoff(0) = %v", d3, d0)
	}
}
