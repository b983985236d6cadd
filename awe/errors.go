package awe

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy in SPEC_FULL.md §7. Kinds, not types:
// callers distinguish them with errors.Is. Every sentinel below is also
// raised wrapped in an EngineError, whose Code field lets callers dispatch
// without string matching.
var (
	// ErrTaskExecutionFailure means the transport returned a task with a
	// nonzero exit code or nonzero result code. Absorbed by restart up to
	// the configured cap; fatal to the run beyond that.
	ErrTaskExecutionFailure = errors.New("task execution failure")

	// ErrMarshalFailure means a task reported ok but its result payload
	// could not be parsed (missing members, corrupt archive). Absorbed by
	// restart up to the cap; fatal beyond that.
	ErrMarshalFailure = errors.New("result marshal failure")

	// ErrInvalidModel means a task's output coordinates contain a
	// domain-specific NaN indicator. Always absorbed by marking the
	// producing walker invalid and donor-resubmitting; fatal only if no
	// valid donor exists in the same cell.
	ErrInvalidModel = errors.New("invalid model output")

	// ErrNoValidDonor means every walker in a cell was marked invalid and
	// none could donate start coordinates for resubmission.
	ErrNoValidDonor = errors.New("no valid donor walker in cell")

	// ErrTransportLost means the transport failed to yield any task
	// within wait_timeout across repeated calls. The engine does not
	// treat this as fatal on its own; it keeps waiting, since long MD
	// tasks legitimately run for hours.
	ErrTransportLost = errors.New("transport yielded nothing within wait timeout")

	// ErrDuplicateCellID is raised eagerly when a caller tries to add a
	// cell id that is already registered.
	ErrDuplicateCellID = errors.New("duplicate cell id")

	// ErrMissingCell is raised when an operation references a cell id
	// that was never registered.
	ErrMissingCell = errors.New("missing cell")

	// ErrDuplicateWalkerID is raised eagerly when a caller tries to add a
	// walker id that is already registered.
	ErrDuplicateWalkerID = errors.New("duplicate walker id")

	// ErrInvalidAssignment is raised eagerly when a caller tries to add a
	// walker whose Assignment is negative. Every walker entering a System
	// must already carry a valid cell assignment (original
	// aweclasses.py's add_walker asserts assignment >= 0); there is no
	// "unassigned" state once a walker is tracked.
	ErrInvalidAssignment = errors.New("walker assignment must be >= 0")

	// ErrCheckpointCorruption is surfaced at recovery time when the
	// primary checkpoint cannot be decoded. No automatic rollback is
	// attempted; the operator is expected to fall back to the .last file.
	ErrCheckpointCorruption = errors.New("checkpoint corrupted")

	// ErrMaxRestartsExceeded means a task exhausted its restart budget.
	ErrMaxRestartsExceeded = errors.New("task exceeded restart budget")

	// ErrEngineStopped means Run returned because of a clean stop request
	// (the keyboard-interrupt case in SPEC_FULL.md §7), not a failure.
	ErrEngineStopped = errors.New("engine stopped")
)

// Machine-readable codes for EngineError, mirroring the teacher's
// EngineError.Code / NodeError.Code string constants.
const (
	CodeTaskExecutionFailure = "TASK_EXECUTION_FAILURE"
	CodeMarshalFailure       = "MARSHAL_FAILURE"
	CodeInvalidModel         = "INVALID_MODEL"
	CodeNoValidDonor         = "NO_VALID_DONOR"
	CodeTransportLost        = "TRANSPORT_LOST"
	CodeDuplicateCellID      = "DUPLICATE_CELL_ID"
	CodeMissingCell          = "MISSING_CELL"
	CodeDuplicateWalkerID    = "DUPLICATE_WALKER_ID"
	CodeInvalidAssignment    = "INVALID_ASSIGNMENT"
	CodeCheckpointCorruption = "CHECKPOINT_CORRUPTION"
	CodeMaxRestartsExceeded  = "MAX_RESTARTS_EXCEEDED"
	CodeEngineStopped        = "ENGINE_STOPPED"
)

// EngineError carries a machine-readable Code alongside the sentinel it
// wraps, mirroring the teacher's EngineError/NodeError pair (SPEC_FULL.md
// §2.1). Tag identifies the task in flight when the error occurred, if
// any — the AWE analogue of NodeError's NodeID.
type EngineError struct {
	Code    string
	Tag     string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("%s: tag %s: %s", e.Code, e.Tag, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the sentinel error so errors.Is(err, ErrXxx) still works
// through an EngineError wrapper.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// newEngineError builds an EngineError whose Message is format/args
// formatted, and whose Cause is the sentinel cause for errors.Is.
func newEngineError(code string, cause error, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}
