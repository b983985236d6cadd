package awe

import (
	"math/rand"
	"sort"
	"sync"
)

// TagSet tracks the set of task tags currently in flight, bucketed by how
// many outstanding duplicates exist for each tag. A tag with zero
// duplicates lives in bucket 0; submitting a speculative copy of it moves
// it to bucket 1, and so on. This lets the engine cheaply find the least-
// duplicated tag to speculatively resubmit when a straggler is suspected
// (SPEC_FULL.md §4.2, grounded on the original TagSet in workqueue.py).
type TagSet struct {
	mu      sync.Mutex
	buckets map[int]map[string]struct{}
	maxReps int
	rng     *rand.Rand
}

// NewTagSet returns an empty TagSet that allows up to maxReps outstanding
// duplicates per tag. A maxReps of 0 means no tag may ever be duplicated;
// a negative maxReps removes the cap.
func NewTagSet(maxReps int, rng *rand.Rand) *TagSet {
	return &TagSet{
		buckets: make(map[int]map[string]struct{}),
		maxReps: maxReps,
		rng:     rng,
	}
}

// findBucket returns the bucket key currently holding tag, or -1 if tag is
// not tracked. Callers must hold t.mu.
func (t *TagSet) findBucket(tag string) int {
	for key, tags := range t.buckets {
		if _, ok := tags[tag]; ok {
			return key
		}
	}
	return -1
}

// Add inserts tag into the set, or moves it into the next duplicate bucket
// if it is already tracked.
func (t *TagSet) Add(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.findBucket(tag)
	if key < 0 {
		t.insert(0, tag)
		return
	}
	t.insert(key+1, tag)
	t.remove(key, tag)
	if len(t.buckets[key]) == 0 {
		delete(t.buckets, key)
	}
}

func (t *TagSet) insert(key int, tag string) {
	set, ok := t.buckets[key]
	if !ok {
		set = make(map[string]struct{})
		t.buckets[key] = set
	}
	set[tag] = struct{}{}
}

func (t *TagSet) remove(key int, tag string) {
	if set, ok := t.buckets[key]; ok {
		delete(set, tag)
	}
}

// Discard removes tag from the set entirely, regardless of its duplicate
// count.
func (t *TagSet) Discard(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.findBucket(tag)
	if key < 0 {
		return
	}
	t.remove(key, tag)
	if len(t.buckets[key]) == 0 {
		delete(t.buckets, key)
	}
}

// CanDuplicate reports whether any bucket holds a duplicate count below
// maxReps, i.e. whether Select has anything it is allowed to return.
func (t *TagSet) CanDuplicate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.buckets {
		if t.maxReps < 0 || key < t.maxReps {
			return true
		}
	}
	return false
}

// Select returns a random tag from the least-duplicated nonempty bucket
// whose key is below maxReps, or "", false if no such tag exists.
func (t *TagSet) Select() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	minKey := -1
	for key, tags := range t.buckets {
		if len(tags) == 0 {
			continue
		}
		if t.maxReps >= 0 && key >= t.maxReps {
			continue
		}
		if minKey < 0 || key < minKey {
			minKey = key
		}
	}
	if minKey < 0 {
		return "", false
	}

	set := t.buckets[minKey]
	candidates := make([]string, 0, len(set))
	for tag := range set {
		candidates = append(candidates, tag)
	}
	sort.Strings(candidates)
	return candidates[t.rng.Intn(len(candidates))], true
}

// Clean removes every bucket left empty by prior Add/Discard calls.
func (t *TagSet) Clean() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, tags := range t.buckets {
		if len(tags) == 0 {
			delete(t.buckets, key)
		}
	}
}

// Len returns the total number of tags tracked across all buckets.
func (t *TagSet) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, tags := range t.buckets {
		total += len(tags)
	}
	return total
}
