package awe

import (
	"math/rand"
	"testing"
)

func buildCellSystem(cellID int, weights []float64) *System {
	sys := NewSystem(nil)
	sys.SetCell(Cell{ID: cellID, Core: NoCore})
	for i, w := range weights {
		sys.SetWalker(Walker{
			ID:         i,
			InitID:     i,
			End:        Coords{{float64(i), 0, 0}},
			Weight:     w,
			Assignment: cellID,
			Valid:      true,
		})
	}
	return sys
}

func TestOneColorResamplerConservesWeight(t *testing.T) {
	sys := buildCellSystem(0, []float64{0.5, 0.3, 0.1, 0.1})
	r := NewOneColorResampler(4, rand.New(rand.NewSource(1)))
	gen := NewIDGenerator(100)

	out, err := r.Resample(sys, gen)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}

	const epsilon = 1e-9
	if got := out.TotalWeight(); got < sys.TotalWeight()-epsilon || got > sys.TotalWeight()+epsilon {
		t.Fatalf("TotalWeight() = %v, want %v (conserved)", got, sys.TotalWeight())
	}
}

func TestOneColorResamplerHitsTargetPopulation(t *testing.T) {
	sys := buildCellSystem(0, []float64{0.4, 0.3, 0.2, 0.1})
	r := NewOneColorResampler(4, rand.New(rand.NewSource(7)))
	gen := NewIDGenerator(0)

	out, err := r.Resample(sys, gen)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if got := out.NWalkers(); got != 4 {
		t.Fatalf("NWalkers() = %d, want 4 (target population)", got)
	}
}

func TestOneColorResamplerProducesEqualWeightsWithinCell(t *testing.T) {
	sys := buildCellSystem(0, []float64{0.7, 0.2, 0.1})
	r := NewOneColorResampler(3, rand.New(rand.NewSource(3)))
	gen := NewIDGenerator(0)

	out, err := r.Resample(sys, gen)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}

	const epsilon = 1e-9
	want := sys.TotalWeight() / 3
	for _, w := range out.Walkers() {
		if w.Weight < want-epsilon || w.Weight > want+epsilon {
			t.Fatalf("walker %d weight = %v, want %v (equal split)", w.ID, w.Weight, want)
		}
	}
}

func TestOneColorResamplerAssignsFreshMonotonicIDs(t *testing.T) {
	sys := buildCellSystem(0, []float64{0.5, 0.5})
	r := NewOneColorResampler(2, rand.New(rand.NewSource(1)))
	gen := NewIDGenerator(50)

	out, err := r.Resample(sys, gen)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	for _, w := range out.Walkers() {
		if w.ID < 50 {
			t.Fatalf("walker id %d should have come from the generator (>= 50)", w.ID)
		}
	}
}

func TestOneColorResamplerMultipleCellsIndependent(t *testing.T) {
	sys := NewSystem(nil)
	sys.SetCell(Cell{ID: 0, Core: NoCore})
	sys.SetCell(Cell{ID: 1, Core: NoCore})
	sys.SetWalker(Walker{ID: 0, End: Coords{{0, 0, 0}}, Weight: 0.6, Assignment: 0, Valid: true})
	sys.SetWalker(Walker{ID: 1, End: Coords{{1, 0, 0}}, Weight: 0.4, Assignment: 0, Valid: true})
	sys.SetWalker(Walker{ID: 2, End: Coords{{2, 0, 0}}, Weight: 1.0, Assignment: 1, Valid: true})

	r := NewOneColorResampler(2, rand.New(rand.NewSource(1)))
	gen := NewIDGenerator(0)

	out, err := r.Resample(sys, gen)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if got := out.FilterByCell(0).NWalkers(); got != 2 {
		t.Fatalf("cell 0 NWalkers() = %d, want 2", got)
	}
	if got := out.FilterByCell(1).NWalkers(); got != 2 {
		t.Fatalf("cell 1 NWalkers() = %d, want 2", got)
	}
}

func TestMultiColorResamplerTracksTransitions(t *testing.T) {
	sys := NewSystem(nil)
	sys.SetCell(Cell{ID: 0, Core: NoCore})
	sys.SetCell(Cell{ID: 1, Core: 1})
	sys.SetWalker(Walker{ID: 0, End: Coords{{0, 0, 0}}, Weight: 0.5, Color: DefaultColor, Assignment: 1, Valid: true})
	sys.SetWalker(Walker{ID: 1, End: Coords{{1, 0, 0}}, Weight: 0.5, Color: 1, Assignment: 0, Valid: true})

	partition := NewSinkStates()
	partition.Add(1, 1)

	r := NewMultiColorResampler(2, partition, rand.New(rand.NewSource(1)))
	gen := NewIDGenerator(0)

	out, err := r.Resample(sys, gen)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}

	transitions := r.Transitions()
	row, ok := transitions[DefaultColor]
	if !ok {
		t.Fatalf("transitions missing entry for origin color %d: %v", DefaultColor, transitions)
	}
	if got := row[1]; got != 0.5 {
		t.Fatalf("transitions[DefaultColor][1] = %v, want 0.5", got)
	}

	for _, w := range out.Walkers() {
		if w.Assignment == 1 && w.Color != 1 {
			t.Fatalf("walker %d in sink cell 1 carries color %d, want 1", w.ID, w.Color)
		}
	}
}

type recordingWeightSink struct {
	rows []struct {
		iteration, walkerID, cellID int
		weight                      float64
		color                       int
	}
}

func (s *recordingWeightSink) WriteWeightRow(iteration, walkerID, cellID int, weight float64, color int) error {
	s.rows = append(s.rows, struct {
		iteration, walkerID, cellID int
		weight                      float64
		color                       int
	}{iteration, walkerID, cellID, weight, color})
	return nil
}

func TestSaveWeightsResamplerWritesOneRowPerWalker(t *testing.T) {
	sys := buildCellSystem(0, []float64{0.5, 0.5})
	sink := &recordingWeightSink{}
	r := NewSaveWeightsResampler(NewOneColorResampler(2, rand.New(rand.NewSource(1))), sink)
	gen := NewIDGenerator(0)

	out, err := r.Resample(sys, gen)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if len(sink.rows) != out.NWalkers() {
		t.Fatalf("sink recorded %d rows, want %d (one per walker)", len(sink.rows), out.NWalkers())
	}
	for _, row := range sink.rows {
		if row.iteration != 1 {
			t.Fatalf("row iteration = %d, want 1 on first call", row.iteration)
		}
	}
}

type recordingHistorySink struct {
	rows [][3]int
}

func (s *recordingHistorySink) Write(origID, parentID, currentID int) error {
	s.rows = append(s.rows, [3]int{origID, parentID, currentID})
	return nil
}

func TestOneColorResamplerWritesHistorySink(t *testing.T) {
	sys := buildCellSystem(0, []float64{0.5, 0.5})
	r := NewOneColorResampler(2, rand.New(rand.NewSource(1)))
	sink := &recordingHistorySink{}
	r.SetHistorySink(sink)
	gen := NewIDGenerator(0)

	out, err := r.Resample(sys, gen)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if len(sink.rows) != out.NWalkers() {
		t.Fatalf("history sink recorded %d rows, want %d (one per committed walker)", len(sink.rows), out.NWalkers())
	}
	if len(sink.rows) != len(r.History()) {
		t.Fatalf("history sink rows = %d, in-memory history = %d, want equal", len(sink.rows), len(r.History()))
	}
}

type recordingCellWeightSink struct {
	rows []struct {
		iteration, cellID, color int
		total                    float64
	}
}

func (s *recordingCellWeightSink) Write(iteration, cellID, color int, totalWeight float64) error {
	s.rows = append(s.rows, struct {
		iteration, cellID, color int
		total                    float64
	}{iteration, cellID, color, totalWeight})
	return nil
}

type recordingColorTransitionSink struct {
	matrices [][][]float64
}

func (s *recordingColorTransitionSink) WriteIteration(transitions [][]float64) error {
	s.matrices = append(s.matrices, transitions)
	return nil
}

func TestMultiColorResamplerWritesCellWeightAndColorTransitionSinks(t *testing.T) {
	sys := NewSystem(nil)
	sys.SetCell(Cell{ID: 0, Core: NoCore})
	sys.SetCell(Cell{ID: 1, Core: 1})
	sys.SetWalker(Walker{ID: 0, End: Coords{{0, 0, 0}}, Weight: 0.5, Color: 0, Assignment: 1, Valid: true})
	sys.SetWalker(Walker{ID: 1, End: Coords{{1, 0, 0}}, Weight: 0.5, Color: 1, Assignment: 0, Valid: true})

	partition := NewSinkStates()
	partition.Add(1, 1)

	r := NewMultiColorResampler(2, partition, rand.New(rand.NewSource(1)))
	cellSink := &recordingCellWeightSink{}
	colorSink := &recordingColorTransitionSink{}
	r.SetCellWeightSink(cellSink)
	r.SetColorTransitionSink(colorSink, 2)
	gen := NewIDGenerator(0)

	if _, err := r.Resample(sys, gen); err != nil {
		t.Fatalf("Resample() error = %v", err)
	}

	if len(cellSink.rows) == 0 {
		t.Fatal("cell weight sink recorded no rows, want one per nonempty cell")
	}
	if len(colorSink.matrices) != 1 {
		t.Fatalf("color transition sink recorded %d matrices, want 1", len(colorSink.matrices))
	}
	if got := colorSink.matrices[0][0][1]; got != 0.5 {
		t.Fatalf("transition matrix[0][1] = %v, want 0.5", got)
	}
}
