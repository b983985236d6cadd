package awe

import (
	"math/rand"
	"testing"
)

func TestTagSetAddMovesBetweenBuckets(t *testing.T) {
	ts := NewTagSet(2, rand.New(rand.NewSource(1)))
	ts.Add("a")
	if got := ts.Len(); got != 1 {
		t.Fatalf("Len() after one Add = %d, want 1", got)
	}
	if !ts.CanDuplicate() {
		t.Fatal("CanDuplicate() = false, want true after first Add with maxReps=2")
	}

	ts.Add("a")
	if got := ts.Len(); got != 1 {
		t.Fatalf("Len() after duplicate Add = %d, want 1 (still one tag)", got)
	}
	if !ts.CanDuplicate() {
		t.Fatal("CanDuplicate() = false, want true (bucket 1 < maxReps 2)")
	}

	ts.Add("a")
	if ts.CanDuplicate() {
		t.Fatal("CanDuplicate() = true, want false once bucket reaches maxReps")
	}
}

func TestTagSetMaxRepsZeroForbidsDuplication(t *testing.T) {
	ts := NewTagSet(0, rand.New(rand.NewSource(1)))
	ts.Add("a")
	if ts.CanDuplicate() {
		t.Fatal("CanDuplicate() = true, want false with maxReps=0")
	}
	if _, ok := ts.Select(); ok {
		t.Fatal("Select() returned a tag, want none with maxReps=0")
	}
}

func TestTagSetMaxRepsNegativeIsUnbounded(t *testing.T) {
	ts := NewTagSet(-1, rand.New(rand.NewSource(1)))
	ts.Add("a")
	for i := 0; i < 10; i++ {
		ts.Add("a")
	}
	if !ts.CanDuplicate() {
		t.Fatal("CanDuplicate() = false, want true with maxReps=-1 (unbounded)")
	}
}

func TestTagSetSelectPicksLeastDuplicated(t *testing.T) {
	ts := NewTagSet(5, rand.New(rand.NewSource(1)))
	ts.Add("a")
	ts.Add("a") // a now at bucket 1
	ts.Add("b") // b at bucket 0

	tag, ok := ts.Select()
	if !ok {
		t.Fatal("Select() returned ok=false, want true")
	}
	if tag != "b" {
		t.Fatalf("Select() = %q, want %q (least-duplicated bucket)", tag, "b")
	}
}

func TestTagSetDiscardRemovesRegardlessOfBucket(t *testing.T) {
	ts := NewTagSet(5, rand.New(rand.NewSource(1)))
	ts.Add("a")
	ts.Add("a")
	ts.Discard("a")
	if got := ts.Len(); got != 0 {
		t.Fatalf("Len() after Discard = %d, want 0", got)
	}
}

func TestTagSetCleanRemovesEmptyBuckets(t *testing.T) {
	ts := NewTagSet(5, rand.New(rand.NewSource(1)))
	ts.Add("a")
	ts.Discard("a")
	ts.Clean()
	if got := len(ts.buckets); got != 0 {
		t.Fatalf("len(buckets) after Clean = %d, want 0", got)
	}
}
