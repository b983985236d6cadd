package awe

import (
	"fmt"
	"math/rand"
	"sort"
)

// Resampler turns a post-task System into the next generation's System.
// Implementations never mutate the System they are given.
type Resampler interface {
	Resample(sys *System, gen *IDGenerator) (*System, error)
}

// historyEntry is one line of the walker-history sink: which walker a new
// restart copy descended from.
type historyEntry struct {
	OrigID    int
	ParentID  int
	CurrentID int
}

// HistorySink receives one row per restart copy committed by the
// resampler: origID, parentID, currentID (SPEC_FULL.md §4.6, implemented
// by sinks.WalkerHistorySink).
type HistorySink interface {
	Write(origID, parentID, currentID int) error
}

// OneColorResampler implements the split/merge algorithm from Darve & Ryu,
// assuming the whole population occupies a single macro-state. Every cell
// independently converges its walkers to TargetWalkers copies of equal
// weight (SPEC_FULL.md §4.3.1, grounded on resample.py's OneColor class).
type OneColorResampler struct {
	TargetWalkers int
	rng           *rand.Rand

	history     []historyEntry
	historySink HistorySink
}

// NewOneColorResampler returns a resampler that drives every cell toward
// targetWalkers equal-weight walkers, using rng for the merge coin flip.
func NewOneColorResampler(targetWalkers int, rng *rand.Rand) *OneColorResampler {
	return &OneColorResampler{TargetWalkers: targetWalkers, rng: rng}
}

// SetHistorySink installs sink, called once per restart copy committed by
// every subsequent Resample call (SPEC_FULL.md §4.6).
func (r *OneColorResampler) SetHistorySink(sink HistorySink) { r.historySink = sink }

// History returns the walker-history entries recorded by every Resample
// call so far: (origID, parentID, currentID) for each restart copy
// committed.
func (r *OneColorResampler) History() []historyEntry {
	return r.history
}

// Resample implements Resampler.
func (r *OneColorResampler) Resample(sys *System, gen *IDGenerator) (*System, error) {
	out := sys.Clone()
	var next []*Walker
	for _, cellID := range sys.CellIDs() {
		local := sys.FilterByCell(cellID)
		walkers := local.Walkers()
		if len(walkers) == 0 {
			continue
		}
		committed, err := r.resampleCell(walkers, gen)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", cellID, err)
		}
		for _, w := range walkers {
			out.RemoveWalker(w.ID)
		}
		next = append(next, committed...)
	}
	// New walkers are added only after every resampled cell's old walkers
	// are gone, so a fresh id never collides with another cell's old id.
	for _, w := range next {
		if err := out.AddWalker(*w); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// resampleCell runs the split/merge loop over one cell's walkers and
// returns the TargetWalkers restart copies that replace them.
func (r *OneColorResampler) resampleCell(walkers []Walker, gen *IDGenerator) ([]*Walker, error) {
	n := r.TargetWalkers

	sort.Slice(walkers, func(i, j int) bool { return walkers[i].Weight > walkers[j].Weight })
	prev := -1.0
	for _, w := range walkers {
		if prev >= 0 && w.Weight > prev {
			return nil, fmt.Errorf("weights not sorted descending")
		}
		prev = w.Weight
	}

	total := 0.0
	for _, w := range walkers {
		total += w.Weight
	}
	tw := total / float64(n)

	// pending holds (walker, current working weight) pairs; the back of
	// the slice is popped first, so index 0 is the largest weight and
	// the tail is the smallest, matching argsort(-weights) + list.pop().
	type entry struct {
		w Walker
		W float64
	}
	pending := make([]entry, len(walkers))
	for i, w := range walkers {
		pending[i] = entry{w: w, W: w.Weight}
	}

	pop := func() entry {
		last := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		return last
	}

	committed := make([]*Walker, 0, n)
	active := 0

	cur := pop()
	for {
		if cur.W >= tw || len(pending) == 0 {
			rr := int(cur.W / tw)
			if rr < 1 {
				rr = 1
			}
			if max := n - active; rr > max {
				rr = max
			}
			active += rr

			for i := 0; i < rr; i++ {
				child := cur.w.Restart(gen, tw)
				committed = append(committed, child)
				r.history = append(r.history, historyEntry{
					OrigID:    child.InitID,
					ParentID:  cur.w.ID,
					CurrentID: child.ID,
				})
				if r.historySink != nil {
					if err := r.historySink.Write(child.InitID, cur.w.ID, child.ID); err != nil {
						return nil, fmt.Errorf("history sink: %w", err)
					}
				}
			}

			if active < n && cur.W-float64(rr)*tw > 0 {
				cur.W -= float64(rr) * tw
				pending = append(pending, cur)
			}

			if len(pending) == 0 {
				break
			}
			cur = pop()
			continue
		}

		// Merge: pop another walker and probabilistically keep one.
		other := pop()
		combined := cur.W + other.W
		if r.rng.Float64() < other.W/combined {
			cur = other
		}
		cur.W = combined
	}

	return committed, nil
}

// CellWeightSink receives one row per nonempty cell per color, once per
// resampling call (SPEC_FULL.md §4.7, implemented by sinks.CellWeightSink).
type CellWeightSink interface {
	Write(iteration, cellID, color int, totalWeight float64) error
}

// ColorTransitionSink receives one dense color-transition matrix per
// resampling call (implemented by sinks.ColorTransitionSink).
type ColorTransitionSink interface {
	WriteIteration(transitions [][]float64) error
}

// MultiColorResampler tracks walker color transitions against a partition
// of sink cells, then delegates per-color resampling to an embedded
// OneColorResampler restricted to each color's walkers (SPEC_FULL.md
// §4.3.2, grounded on resample.py's MultiColor class).
type MultiColorResampler struct {
	one       *OneColorResampler
	partition *SinkStates

	// transitions[old][new] accumulates the weight that moved from old
	// color to new color during the most recent Resample call.
	transitions map[int]map[int]float64

	cellWeightSink CellWeightSink
	colorSink      ColorTransitionSink
	ncolors        int
	iteration      int
}

// NewMultiColorResampler returns a resampler targeting targetWalkers per
// cell per color, tracking transitions against partition.
func NewMultiColorResampler(targetWalkers int, partition *SinkStates, rng *rand.Rand) *MultiColorResampler {
	return &MultiColorResampler{
		one:         NewOneColorResampler(targetWalkers, rng),
		partition:   partition,
		transitions: make(map[int]map[int]float64),
	}
}

// SetCellWeightSink installs sink, called once per nonempty cell per color
// on every subsequent Resample call (SPEC_FULL.md §4.7).
func (r *MultiColorResampler) SetCellWeightSink(sink CellWeightSink) { r.cellWeightSink = sink }

// SetColorTransitionSink installs sink, called once per Resample call with
// a dense ncolors x ncolors transition matrix.
func (r *MultiColorResampler) SetColorTransitionSink(sink ColorTransitionSink, ncolors int) {
	r.colorSink = sink
	r.ncolors = ncolors
}

// Transitions returns the weight that moved from each old color to each
// new color during the most recent Resample call.
func (r *MultiColorResampler) Transitions() map[int]map[int]float64 {
	return r.transitions
}

// Resample implements Resampler.
func (r *MultiColorResampler) Resample(sys *System, gen *IDGenerator) (*System, error) {
	r.transitions = make(map[int]map[int]float64)
	r.iteration++

	working := sys.Clone()
	for _, w := range sys.Walkers() {
		if w.Assignment < 0 {
			continue
		}
		cell, ok := sys.Cell(w.Assignment)
		if !ok {
			return nil, newEngineError(CodeMissingCell, ErrMissingCell, "%d", w.Assignment)
		}
		if cell.Core == NoCore || cell.Core == w.Color {
			continue
		}
		oldColor := w.Color
		w.Color = cell.Core
		working.SetWalker(w)

		row, ok := r.transitions[oldColor]
		if !ok {
			row = make(map[int]float64)
			r.transitions[oldColor] = row
		}
		row[w.Color] += w.Weight
	}

	colors := make(map[int]struct{})
	for _, w := range working.Walkers() {
		colors[w.Color] = struct{}{}
	}

	out := working.Clone()
	for color := range colors {
		sub := working.FilterByColor(color)
		if sub.NWalkers() == 0 {
			continue
		}

		if r.cellWeightSink != nil {
			cellTotals := make(map[int]float64)
			for _, w := range sub.Walkers() {
				cellTotals[w.Assignment] += w.Weight
			}
			for cellID, total := range cellTotals {
				if err := r.cellWeightSink.Write(r.iteration, cellID, color, total); err != nil {
					return nil, fmt.Errorf("cell weight sink: %w", err)
				}
			}
		}

		resampled, err := r.one.Resample(sub, gen)
		if err != nil {
			return nil, fmt.Errorf("color %d: %w", color, err)
		}
		for _, w := range sub.Walkers() {
			out.RemoveWalker(w.ID)
		}
		for _, w := range resampled.Walkers() {
			if err := out.AddWalker(w); err != nil {
				return nil, err
			}
		}
	}

	if r.colorSink != nil && r.ncolors > 0 {
		matrix := make([][]float64, r.ncolors)
		for i := range matrix {
			matrix[i] = make([]float64, r.ncolors)
		}
		for old, row := range r.transitions {
			for newColor, weight := range row {
				if old >= 0 && old < r.ncolors && newColor >= 0 && newColor < r.ncolors {
					matrix[old][newColor] = weight
				}
			}
		}
		if err := r.colorSink.WriteIteration(matrix); err != nil {
			return nil, fmt.Errorf("color transition sink: %w", err)
		}
	}

	return out, nil
}

// SaveWeightsResampler wraps a Resampler and appends one CSV line per
// walker to a sink after each call, writing a header exactly once
// (SPEC_FULL.md §4.3.3, grounded on resample.py's SaveWeights class).
type SaveWeightsResampler struct {
	inner     Resampler
	sink      WeightSink
	iteration int
}

// WeightSink receives one row per walker per resampling call.
type WeightSink interface {
	WriteWeightRow(iteration, walkerID, cellID int, weight float64, color int) error
}

// NewSaveWeightsResampler wraps inner with sink.
func NewSaveWeightsResampler(inner Resampler, sink WeightSink) *SaveWeightsResampler {
	return &SaveWeightsResampler{inner: inner, sink: sink}
}

// Resample implements Resampler.
func (r *SaveWeightsResampler) Resample(sys *System, gen *IDGenerator) (*System, error) {
	out, err := r.inner.Resample(sys, gen)
	if err != nil {
		return nil, err
	}
	r.iteration++
	for _, w := range out.Walkers() {
		if err := r.sink.WriteWeightRow(r.iteration, w.ID, w.Assignment, w.Weight, w.Color); err != nil {
			return nil, fmt.Errorf("save weights: %w", err)
		}
	}
	return out, nil
}
