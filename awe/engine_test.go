package awe

import (
	"context"
	"encoding/json"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/ccl-awe/awe-go/awe/store"
	"github.com/ccl-awe/awe-go/awe/topology"
	"github.com/ccl-awe/awe-go/awe/transport"
	"github.com/ccl-awe/awe-go/awe/transport/mock"
)

func sampleSingleAtomTopology() *topology.Topology {
	return &topology.Topology{Atoms: []topology.Atom{
		{Serial: 1, Name: "CA", ResName: "ALA", Chain: 'A', ResSeq: 1, Element: "C"},
	}}
}

func TestEngineRunsIterationsEndToEnd(t *testing.T) {
	top := sampleSingleAtomTopology()

	sys := NewSystem(nil)
	sys.SetCell(Cell{ID: 0, Core: NoCore})
	sys.SetWalker(Walker{ID: 0, Start: Coords{{0, 0, 0}}, Weight: 1, Assignment: 0, Valid: true})

	handler := func(task transport.Task) transport.Result {
		_, cellID, _, _, err := decodeTaskTag(task.Tag)
		if err != nil {
			t.Fatalf("handler: decodeTaskTag() error = %v", err)
		}
		blob, err := top.Rebind([][3]float64{{1, 2, 3}})
		if err != nil {
			t.Fatalf("handler: Rebind() error = %v", err)
		}
		data, err := json.Marshal(walkerOutput{Structure: blob, CellID: cellID})
		if err != nil {
			t.Fatalf("handler: Marshal() error = %v", err)
		}
		return transport.Result{Output: data}
	}

	tr := mock.New(handler, 1)
	st := store.NewMemoryStore()
	resampler := NewOneColorResampler(1, rand.New(rand.NewSource(1)))

	engine, err := NewEngine("run-1", sys, top, tr, resampler, st,
		WithIterations(2),
		WithCheckpointPath(filepath.Join(t.TempDir(), "checkpoint.dat")),
	)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := engine.Iteration(); got != 2 {
		t.Fatalf("Iteration() = %d, want 2", got)
	}

	final := engine.System()
	if got := final.NWalkers(); got != 1 {
		t.Fatalf("final System NWalkers() = %d, want 1", got)
	}
	if got := final.TotalWeight(); got != 1 {
		t.Fatalf("final System TotalWeight() = %v, want 1", got)
	}
}

func TestEngineRecoversFromCheckpoint(t *testing.T) {
	top := sampleSingleAtomTopology()
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.dat")

	sys := NewSystem(nil)
	sys.SetCell(Cell{ID: 0, Core: NoCore})
	sys.SetWalker(Walker{ID: 0, Start: Coords{{0, 0, 0}}, Weight: 1, Assignment: 0, Valid: true})

	cp := &Checkpoint{
		System:           sys,
		Iteration:        5,
		Iterations:       5,
		CheckpointPeriod: 1,
		NextWalkerID:     9,
		Resampler:        ResamplerState{TargetWalkers: 1},
	}
	if err := writeCheckpointAtomic(checkpointPath, cp); err != nil {
		t.Fatalf("writeCheckpointAtomic() error = %v", err)
	}

	tr := mock.New(func(task transport.Task) transport.Result { return transport.Result{} }, 1)
	resampler := NewOneColorResampler(1, rand.New(rand.NewSource(1)))
	st := store.NewMemoryStore()

	engine, err := NewEngine("run-1", NewSystem(nil), top, tr, resampler, st,
		WithCheckpointPath(checkpointPath),
	)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	// Run() should see iteration already at 5 out of 5 configured
	// iterations recovered from the checkpoint, and exit immediately.
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := engine.Iteration(); got != 5 {
		t.Fatalf("Iteration() after recovery = %d, want 5", got)
	}
	if got := engine.System().NWalkers(); got != 1 {
		t.Fatalf("System().NWalkers() after recovery = %d, want 1", got)
	}
}

func TestEngineStopReturnsErrEngineStopped(t *testing.T) {
	top := sampleSingleAtomTopology()
	sys := NewSystem(nil)
	sys.SetCell(Cell{ID: 0, Core: NoCore})
	sys.SetWalker(Walker{ID: 0, Start: Coords{{0, 0, 0}}, Weight: 1, Assignment: 0, Valid: true})

	tr := mock.New(func(task transport.Task) transport.Result { return transport.Result{} }, 1)
	resampler := NewOneColorResampler(1, rand.New(rand.NewSource(1)))
	st := store.NewMemoryStore()

	engine, err := NewEngine("run-1", sys, top, tr, resampler, st,
		WithIterations(1000),
		WithCheckpointPath(filepath.Join(t.TempDir(), "checkpoint.dat")),
	)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.Stop()

	err = engine.Run(context.Background())
	if err != ErrEngineStopped {
		t.Fatalf("Run() error = %v, want ErrEngineStopped", err)
	}
}
