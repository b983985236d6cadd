// Package awe implements the core iteration engine of an Accelerated
// Weighted Ensemble master: the task-scheduling loop over an opportunistic
// worker pool, the merge/split resampling algorithm, and the walker/cell/
// color data model with its transactional checkpointing.
package awe

import (
	"fmt"
	"sync/atomic"
)

// DefaultColor is the sentinel color assigned to a walker that has never
// entered a sink cell.
const DefaultColor = -1

// NoCore is the sentinel core value for a Cell that is not a sink for any
// color.
const NoCore = -1

// NoAssignment marks a walker with no cell membership yet. System.AddWalker
// rejects it: every walker entering a System must already carry a valid
// cell assignment (original aweclasses.py's add_walker asserts
// assignment >= 0).
const NoAssignment = -1

// Coords holds the N x 3 atomic coordinates carried by a walker between
// start and end of a task.
type Coords [][3]float64

// Clone returns a deep copy of c.
func (c Coords) Clone() Coords {
	if c == nil {
		return nil
	}
	out := make(Coords, len(c))
	copy(out, c)
	return out
}

// IDGenerator issues monotonically increasing walker ids. It is
// engine-scoped rather than a process-wide global so that its state can be
// captured by a Checkpoint and restored exactly on recovery (see
// SPEC_FULL.md §3 and the DESIGN NOTES in spec.md §9).
type IDGenerator struct {
	next atomic.Int64
}

// NewIDGenerator returns a generator whose first Next() call yields start.
func NewIDGenerator(start int) *IDGenerator {
	g := &IDGenerator{}
	g.next.Store(int64(start))
	return g
}

// Next returns the next unused id and advances the counter.
func (g *IDGenerator) Next() int {
	return int(g.next.Add(1)) - 1
}

// Peek returns the id that Next() would return, without consuming it.
func (g *IDGenerator) Peek() int {
	return int(g.next.Load())
}

// Restore resets the generator so that the next call to Next() returns n.
// Used only during checkpoint recovery.
func (g *IDGenerator) Restore(n int) {
	g.next.Store(int64(n))
}

// Walker is one stochastic trajectory: its coordinates, weight, cell
// assignment, and color. Assignment is the single source of truth for cell
// membership (spec.md §3; original aweclasses.py's walker.assignment) —
// there is no separate cell-id field to drift out of sync with it.
// See SPEC_FULL.md §3 for the full invariant list.
type Walker struct {
	ID         int
	InitID     int
	Start      Coords
	End        Coords
	Assignment int
	Color      int
	Weight     float64
	Valid      bool
}

// NAtoms returns the number of atoms represented by the walker, derived
// from whichever of Start/End is present.
func (w *Walker) NAtoms() int {
	if w.Start != nil {
		return len(w.Start)
	}
	if w.End != nil {
		return len(w.End)
	}
	return 0
}

// NDim returns the coordinate dimensionality (always 3 for Cartesian
// coordinates, but derived rather than hardcoded so the invariant is
// checkable).
func (w *Walker) NDim() int {
	if w.Start != nil && len(w.Start) > 0 {
		return len(w.Start[0])
	}
	if w.End != nil && len(w.End) > 0 {
		return len(w.End[0])
	}
	return 0
}

// Validate checks the invariants from SPEC_FULL.md §3: at least one of
// Start/End present, and nonnegative weight.
func (w *Walker) Validate() error {
	if w.Start == nil && w.End == nil {
		return fmt.Errorf("walker %d: both start and end are absent", w.ID)
	}
	if w.Weight < 0 {
		return fmt.Errorf("walker %d: negative weight %g", w.ID, w.Weight)
	}
	return nil
}

// Restart produces a new Walker representing a resampled copy of w: its
// start coordinates are w's end coordinates, its end is absent, and it
// carries a fresh id from gen while retaining w's InitID. This is the only
// factory the resampler uses (spec.md §4.1).
func (w *Walker) Restart(gen *IDGenerator, weight float64) *Walker {
	return &Walker{
		ID:         gen.Next(),
		InitID:     w.InitID,
		Start:      w.End.Clone(),
		End:        nil,
		Assignment: w.Assignment,
		Color:      w.Color,
		Weight:     weight,
		Valid:      true,
	}
}

// Clone returns a deep copy of w.
func (w *Walker) Clone() *Walker {
	cp := *w
	cp.Start = w.Start.Clone()
	cp.End = w.End.Clone()
	return &cp
}
