package awe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ccl-awe/awe-go/awe/store"
	"github.com/ccl-awe/awe-go/awe/statslog"
	"github.com/ccl-awe/awe-go/awe/topology"
	"github.com/ccl-awe/awe-go/awe/transport"
)

// Engine drives the simulate/resample loop described in SPEC_FULL.md §4.4.
// Scheduling is single-threaded cooperative at the master: parallelism
// lives entirely in the remote worker pool behind Transport, and the only
// suspension point is Transport.Wait.
type Engine struct {
	mu sync.Mutex

	runID     string
	system    *System
	topology  *topology.Topology
	iteration int
	opts      Options

	resampler Resampler
	transport transport.Transport
	store     store.Store
	stats     statslog.StatsLogger
	metrics   *Metrics

	idgen  *IDGenerator
	tagset *TagSet
	retry  *RetryTracker

	stopRequested bool
}

// NewEngine constructs an Engine over sys using transport t for task
// dispatch, resampler for the per-iteration population update, and st for
// the transactional log. Options tune the knobs in SPEC_FULL.md §6;
// unset fields take the defaults from defaultOptions.
func NewEngine(runID string, sys *System, top *topology.Topology, t transport.Transport, resampler Resampler, st store.Store, options ...Option) (*Engine, error) {
	cfg := &engineConfig{opts: defaultOptions()}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("engine: apply option: %w", err)
		}
	}

	rng := initRNG(runID)
	e := &Engine{
		runID:     runID,
		system:    sys,
		topology:  top,
		opts:      cfg.opts,
		resampler: resampler,
		transport: t,
		store:     st,
		stats:     statslog.NullStatsLogger{},
		idgen:     NewIDGenerator(0),
		tagset:    NewTagSet(cfg.opts.MaxReps, rng),
		retry:     NewRetryTracker(cfg.opts.MaxRestarts, 100*time.Millisecond, 10*time.Second, rng),
	}
	return e, nil
}

// SetStatsLogger installs the logger events are reported through. The
// default is a no-op logger.
func (e *Engine) SetStatsLogger(s statslog.StatsLogger) { e.stats = s }

// SetMetrics installs the Prometheus metrics collector. The default is
// nil, under which every Metrics method call is a no-op.
func (e *Engine) SetMetrics(m *Metrics) { e.metrics = m }

// Iteration returns the current iteration counter.
func (e *Engine) Iteration() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.iteration
}

// System returns the engine's current System. Callers must not mutate
// the returned value.
func (e *Engine) System() *System {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.system
}

// Stop requests a clean stop (SPEC_FULL.md §5, the keyboard-interrupt
// case). Run checks the request only at the start of each iteration: an
// iteration already under way runs to the end of its resample phase, then
// Run writes a checkpoint and returns ErrEngineStopped. Run does not close
// the stats logger.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopRequested = true
}

func (e *Engine) stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopRequested
}

// Run executes iterations until the configured count is reached, a clean
// stop is requested, or a fatal error occurs. On a clean stop, Run
// returns ErrEngineStopped wrapping nothing harmful — callers should
// treat it as a normal exit, not a failure.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.recover(ctx); err != nil {
		return fmt.Errorf("engine: recovery: %w", err)
	}

	for e.iteration < e.opts.Iterations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.stopped() {
			if err := e.checkpoint(ctx); err != nil {
				return fmt.Errorf("engine: checkpoint on stop: %w", err)
			}
			return ErrEngineStopped
		}

		if e.opts.CheckpointPeriod > 0 && e.iteration%e.opts.CheckpointPeriod == 0 {
			if err := e.checkpoint(ctx); err != nil {
				return fmt.Errorf("engine: checkpoint: %w", err)
			}
		}

		e.iteration++

		if err := e.resubmitInvalidWalkers(ctx); err != nil {
			return fmt.Errorf("engine: invalid walker recovery: %w", err)
		}

		start := time.Now()
		if err := e.submitPhase(ctx); err != nil {
			return fmt.Errorf("engine: submit phase: %w", err)
		}
		e.stats.Log(statslog.Event{Iteration: e.iteration, Msg: "phase", Phase: "submit", Duration: time.Since(start)})

		if err := ctx.Err(); err != nil {
			return err
		}
		start = time.Now()
		if err := e.receivePhase(ctx); err != nil {
			return fmt.Errorf("engine: receive phase: %w", err)
		}
		e.stats.Log(statslog.Event{Iteration: e.iteration, Msg: "phase", Phase: "barrier", Duration: time.Since(start)})

		if err := ctx.Err(); err != nil {
			return err
		}
		start = time.Now()
		if err := e.resamplePhase(ctx); err != nil {
			return fmt.Errorf("engine: resample phase: %w", err)
		}
		e.stats.Log(statslog.Event{Iteration: e.iteration, Msg: "phase", Phase: "resample", Duration: time.Since(start)})
	}

	return e.checkpoint(ctx)
}

// submitPhase builds and submits a task for every walker whose End is
// absent (SPEC_FULL.md §4.4 step 3).
func (e *Engine) submitPhase(ctx context.Context) error {
	for _, w := range e.system.Walkers() {
		if w.End != nil {
			continue
		}
		if err := e.submitWalker(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) submitWalker(ctx context.Context, w Walker) error {
	payload, err := e.topology.Rebind(w.Start)
	if err != nil {
		return fmt.Errorf("rebind walker %d: %w", w.ID, err)
	}
	outfile := fmt.Sprintf("result-%d-%d.tar", e.iteration, w.ID)
	tag := encodeTaskTag(outfile, w.Assignment, w.Weight, w.ID)

	if err := e.transport.Submit(ctx, transport.Task{Tag: tag, Payload: payload}); err != nil {
		return fmt.Errorf("submit task for walker %d: %w", w.ID, err)
	}
	e.tagset.Add(tag)
	if e.metrics != nil {
		e.metrics.SetTagSetLen(e.tagset.Len())
	}
	return nil
}

// receivePhase loops until the transport has nothing outstanding,
// applying accepted results, restarting failed tasks, and opportunistically
// duplicating under-replicated tags (SPEC_FULL.md §4.4 step 4).
func (e *Engine) receivePhase(ctx context.Context) error {
	for !e.transport.Empty() {
		result, err := e.transport.Wait(ctx, e.opts.WaitTimeout)
		if errors.Is(err, transport.ErrEmpty) {
			continue
		}
		if err != nil {
			return err
		}

		if err := e.handleResult(ctx, result); err != nil {
			return err
		}

		for e.tagset.CanDuplicate() && e.transport.TasksInQueue() < e.transport.ActiveWorkers() {
			tag, ok := e.tagset.Select()
			if !ok {
				break
			}
			if err := e.duplicateTag(ctx, tag); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) handleResult(ctx context.Context, result transport.Result) error {
	_, _, _, walkerID, err := decodeTaskTag(result.Tag)
	if err != nil {
		return err
	}

	if result.OK() {
		coords, parseErr := parseWalkerOutput(result.Output)
		if parseErr != nil {
			marshalErr := newEngineError(CodeMarshalFailure, ErrMarshalFailure, "%v", parseErr)
			marshalErr.Tag = result.Tag
			return e.onTaskFailure(ctx, result.Tag, marshalErr)
		}
		w, ok := e.system.Walker(walkerID)
		if !ok {
			return newEngineError(CodeMissingCell, ErrMissingCell, "walker %d", walkerID)
		}
		w.End = coords.Coords
		w.Assignment = coords.CellID

		if isInvalidModel(coords) {
			w.Valid = false
			e.system.SetWalker(w)
			if e.metrics != nil {
				e.metrics.IncInvalidModels()
			}
			e.tagset.Discard(result.Tag)
			e.transport.CancelByTag(result.Tag)
			e.retry.Forget(result.Tag)
			return nil
		}

		w.Valid = true
		e.system.SetWalker(w)
		if err := e.logWalker(ctx, w); err != nil {
			return err
		}

		e.tagset.Discard(result.Tag)
		e.transport.CancelByTag(result.Tag)
		e.retry.Forget(result.Tag)
		if e.metrics != nil {
			e.metrics.ObserveTaskLatency(result.Completed.Sub(result.Submitted))
			e.metrics.SetTagSetLen(e.tagset.Len())
		}
		return nil
	}

	execErr := newEngineError(CodeTaskExecutionFailure, ErrTaskExecutionFailure, "return_status=%d result=%d", result.ReturnStatus, result.ResultCode)
	execErr.Tag = result.Tag
	return e.onTaskFailure(ctx, result.Tag, execErr)
}

func (e *Engine) onTaskFailure(ctx context.Context, tag string, cause error) error {
	allowed, backoff := e.retry.Attempt(tag)
	if !allowed {
		exceeded := newEngineError(CodeMaxRestartsExceeded, ErrMaxRestartsExceeded, "%v", cause)
		exceeded.Tag = tag
		return exceeded
	}
	if e.metrics != nil {
		e.metrics.IncRestarts()
	}
	e.stats.Log(statslog.Event{Iteration: e.iteration, Msg: "task_restart", Tag: tag, Meta: map[string]any{"error": cause.Error()}})

	_, _, _, walkerID, err := decodeTaskTag(tag)
	if err != nil {
		return err
	}
	w, ok := e.system.Walker(walkerID)
	if !ok {
		return newEngineError(CodeMissingCell, ErrMissingCell, "walker %d", walkerID)
	}

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.submitWalker(ctx, w)
}

func (e *Engine) duplicateTag(ctx context.Context, tag string) error {
	_, _, _, walkerID, err := decodeTaskTag(tag)
	if err != nil {
		return err
	}
	w, ok := e.system.Walker(walkerID)
	if !ok {
		return newEngineError(CodeMissingCell, ErrMissingCell, "walker %d", walkerID)
	}

	payload, err := e.topology.Rebind(w.Start)
	if err != nil {
		return fmt.Errorf("rebind duplicate of walker %d: %w", w.ID, err)
	}
	if err := e.transport.Submit(ctx, transport.Task{Tag: tag, Payload: payload}); err != nil {
		return fmt.Errorf("submit duplicate task for walker %d: %w", w.ID, err)
	}
	e.tagset.Add(tag)
	if e.metrics != nil {
		e.metrics.IncDuplications()
		e.metrics.SetTagSetLen(e.tagset.Len())
	}
	return nil
}

// resamplePhase hands the current System to the resampler and installs
// the result as the engine's new System (SPEC_FULL.md §4.4 step 5).
func (e *Engine) resamplePhase(ctx context.Context) error {
	next, err := e.resampler.Resample(e.system, e.idgen)
	if err != nil {
		return fmt.Errorf("resample: %w", err)
	}
	e.system = next
	return nil
}

// resubmitInvalidWalkers scans for walkers marked invalid by a prior
// bad-model result and donates start coordinates from a valid walker in
// the same cell before the next submit (SPEC_FULL.md §4.4, "Invalid
// walkers").
func (e *Engine) resubmitInvalidWalkers(ctx context.Context) error {
	for {
		invalid := make([]Walker, 0)
		for _, w := range e.system.Walkers() {
			if !w.Valid {
				invalid = append(invalid, w)
			}
		}
		if len(invalid) == 0 {
			return nil
		}

		for _, w := range invalid {
			donor, ok := e.findDonor(w.Assignment, w.ID)
			if !ok {
				return newEngineError(CodeNoValidDonor, ErrNoValidDonor, "cell %d", w.Assignment)
			}
			w.Start = donor.Start.Clone()
			w.End = nil
			w.Valid = true
			e.system.SetWalker(w)
		}
	}
}

func (e *Engine) findDonor(cellID, excludeWalkerID int) (Walker, bool) {
	for _, w := range e.system.Walkers() {
		if w.ID == excludeWalkerID {
			continue
		}
		if w.Assignment == cellID && w.Valid && w.Start != nil {
			return w, true
		}
	}
	return Walker{}, false
}

func (e *Engine) logWalker(ctx context.Context, w Walker) error {
	if e.store == nil {
		return nil
	}
	blob, err := marshalWalker(w)
	if err != nil {
		return fmt.Errorf("marshal walker %d: %w", w.ID, err)
	}
	return e.store.Append(ctx, e.runID, store.WalkerRecord{
		Iteration: e.iteration,
		WalkerID:  w.ID,
		Blob:      blob,
	})
}

// checkpoint atomically writes the engine's state and truncates the
// transactional log, which has become redundant (SPEC_FULL.md §4.4 step 1).
func (e *Engine) checkpoint(ctx context.Context) error {
	cp := &Checkpoint{
		System:           e.system,
		Iteration:        e.iteration,
		Iterations:       e.opts.Iterations,
		CheckpointPeriod: e.opts.CheckpointPeriod,
		NextWalkerID:     e.idgen.Peek(),
		Resampler:        ResamplerState{TargetWalkers: e.opts.TargetWalkersCell},
	}
	if mc, ok := e.resampler.(*MultiColorResampler); ok {
		cp.Resampler.Transitions = mc.Transitions()
	}

	if err := writeCheckpointAtomic(e.opts.CheckpointPath, cp); err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.Truncate(ctx, e.runID); err != nil {
			return fmt.Errorf("truncate transactional log: %w", err)
		}
	}
	return nil
}

// recover loads the last checkpoint (if any) and replays the
// transactional log recorded after it, producing a System byte-identical
// to the one that existed just before the interruption (SPEC_FULL.md §4.5).
func (e *Engine) recover(ctx context.Context) error {
	cp, err := readCheckpoint(e.opts.CheckpointPath)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return err
	}

	e.system = cp.System
	e.iteration = cp.Iteration
	e.idgen.Restore(cp.NextWalkerID)
	if e.opts.Iterations == 0 {
		e.opts.Iterations = cp.Iterations
	}
	if e.opts.CheckpointPeriod == 0 {
		e.opts.CheckpointPeriod = cp.CheckpointPeriod
	}
	if mc, ok := e.resampler.(*MultiColorResampler); ok && cp.Resampler.Transitions != nil {
		mc.transitions = cp.Resampler.Transitions
	}

	if e.store == nil {
		return nil
	}
	records, err := e.store.Replay(ctx, e.runID)
	if err != nil {
		return fmt.Errorf("replay transactional log: %w", err)
	}
	for _, rec := range records {
		w, err := unmarshalWalker(rec.Blob)
		if err != nil {
			return fmt.Errorf("unmarshal walker record: %w", err)
		}
		e.system.SetWalker(w)
	}
	return nil
}
