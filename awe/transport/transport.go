// Package transport abstracts the opportunistic worker pool that executes
// a walker's trajectory remotely. It plays the role the teacher corpus
// gives to a pluggable chat-model provider: the engine never knows
// whether tasks run on a cctools-style work queue, a local process pool,
// or a mock used in tests, only that Transport answers this interface.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Wait when no completed task is available within
// its timeout; tasks may still be outstanding.
var ErrEmpty = errors.New("transport: no tasks outstanding")

// Task is one unit of remote work: the serialized structure blob a walker
// should start from, tagged so its result can be matched back to the
// walker that produced it.
type Task struct {
	Tag     string
	Payload []byte

	// Cached names the worker-local filenames holding whatever auxiliary
	// files (topology, executable) should be reused across tasks.
	Cached []string
}

// Result is what a worker reports back for one Task.
type Result struct {
	Tag          string
	ReturnStatus int
	ResultCode   int
	Output       []byte
	Host         string
	Submitted    time.Time
	Completed    time.Time
}

// OK reports whether the result represents success: ResultCode == 0 and
// ReturnStatus == 0 (SPEC_FULL.md §6).
func (r Result) OK() bool {
	return r.ResultCode == 0 && r.ReturnStatus == 0
}

// Transport is the engine's only window onto the remote worker pool. At
// most one Transport is used per process; the engine treats it as
// process-wide shared state and never runs two Submit/Wait cycles
// concurrently against the same instance.
type Transport interface {
	// Submit enqueues task for execution. It does not block.
	Submit(ctx context.Context, task Task) error

	// Wait blocks for up to timeout for one completed task, returning
	// ErrEmpty if none arrives in time.
	Wait(ctx context.Context, timeout time.Duration) (Result, error)

	// CancelByTag cancels every outstanding task sharing tag, used when a
	// duplicate's sibling has already produced an accepted result.
	CancelByTag(tag string) error

	// Empty reports whether any task is outstanding.
	Empty() bool

	// TasksInQueue reports how many tasks are queued but not yet
	// dispatched to a worker.
	TasksInQueue() int

	// ActiveWorkers reports how many workers are currently connected.
	ActiveWorkers() int

	// Clear cancels every outstanding task and resets internal state.
	Clear()
}
