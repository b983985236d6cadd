package awe

import (
	"math"
	"time"
)

// Option configures an Engine at construction time.
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	opts Options
}

// Options holds every tunable knob recognized by SPEC_FULL.md §6. The
// zero value is not meant to be used directly; NewEngine fills in
// defaults for anything left unset.
type Options struct {
	Iterations         int
	TargetWalkersCell  int
	MaxRestarts        float64 // math.Inf(1) disables the cap
	MaxReps            int     // negative disables the cap
	CheckpointPeriod   int
	WaitTimeout        time.Duration
	CheckpointPath     string
	TransactionLogPath string
}

func defaultOptions() Options {
	return Options{
		Iterations:        0,
		TargetWalkersCell: 1,
		MaxRestarts:       math.Inf(1),
		MaxReps:           -1,
		CheckpointPeriod:  1,
		WaitTimeout:       10 * time.Second,
		CheckpointPath:    "checkpoint.dat",
	}
}

// WithIterations sets the number of iterations the engine will run before
// Run returns.
func WithIterations(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Iterations = n
		return nil
	}
}

// WithTargetWalkersPerCell sets N, the per-cell population the resampler
// converges toward.
func WithTargetWalkersPerCell(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.TargetWalkersCell = n
		return nil
	}
}

// WithMaxRestarts bounds how many times a single task may be restarted
// after TaskExecutionFailure or MarshalFailure before the run is declared
// fatal. Pass math.Inf(1) to disable the cap.
func WithMaxRestarts(n float64) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.MaxRestarts = n
		return nil
	}
}

// WithMaxReps bounds how many outstanding speculative duplicates a single
// task tag may accumulate. Pass a negative value to disable the cap.
func WithMaxReps(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.MaxReps = n
		return nil
	}
}

// WithCheckpointPeriod sets how many iterations elapse between automatic
// checkpoints.
func WithCheckpointPeriod(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.CheckpointPeriod = n
		return nil
	}
}

// WithWaitTimeout sets how long a single transport Wait call may block
// before the engine loops back to check for other work.
func WithWaitTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.WaitTimeout = d
		return nil
	}
}

// WithCheckpointPath overrides the default checkpoint file location.
func WithCheckpointPath(path string) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.CheckpointPath = path
		return nil
	}
}

// WithTransactionLogPath records path in Options.TransactionLogPath. The
// engine does not read this field: its transactional log is the Store
// passed to NewEngine.
func WithTransactionLogPath(path string) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.TransactionLogPath = path
		return nil
	}
}
