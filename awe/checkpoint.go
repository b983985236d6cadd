package awe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Checkpoint is a durable snapshot of the engine's state, sufficient to
// resume a run from the moment it was taken (SPEC_FULL.md §4.4 step 1).
type Checkpoint struct {
	System           *System        `json:"system"`
	Iteration        int            `json:"iteration"`
	Iterations       int            `json:"iterations"`
	CheckpointPeriod int            `json:"checkpoint_period"`
	NextWalkerID     int            `json:"next_walker_id"`
	Resampler        ResamplerState `json:"resampler"`
}

// ResamplerState captures whatever a resampler needs restored across a
// checkpoint: the target population and, for multi-color runs, the
// accumulated color-transition matrix.
type ResamplerState struct {
	TargetWalkers int                     `json:"target_walkers"`
	Transitions   map[int]map[int]float64 `json:"transitions,omitempty"`
}

// writeCheckpointAtomic serializes cp to path by writing a temp file in
// the same directory and renaming it over path, so a reader never
// observes a partial write. Any existing file at path is first rotated to
// a ".last" sibling (SPEC_FULL.md §4.4 step 1).
func writeCheckpointAtomic(path string, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		lastPath := path + ".last"
		if err := os.Rename(path, lastPath); err != nil {
			return fmt.Errorf("rotate previous checkpoint: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return nil
}

// readCheckpoint loads and decodes the checkpoint at path. A decode
// failure is reported as ErrCheckpointCorruption; the caller is expected
// to fall back to the ".last" sibling rather than attempt repair.
func readCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointCorruption, err)
	}
	return &cp, nil
}
