// Package mock provides a deterministic in-memory Transport for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/ccl-awe/awe-go/awe/transport"
)

// Handler computes the result a worker would return for a submitted
// task. Tests install one to control what each tag resolves to.
type Handler func(task transport.Task) transport.Result

// Transport is a single-process stand-in for a real worker pool: every
// Submit is answered synchronously by Handler and queued for Wait to
// return, with no real concurrency or network involved.
type Transport struct {
	Handler Handler
	Workers int

	mu      sync.Mutex
	pending map[string]transport.Task
	ready   []transport.Result
}

// New returns a Transport that resolves every submitted task through
// handler, reporting workers active workers.
func New(handler Handler, workers int) *Transport {
	return &Transport{
		Handler: handler,
		Workers: workers,
		pending: make(map[string]transport.Task),
	}
}

// Submit implements transport.Transport.
func (t *Transport) Submit(ctx context.Context, task transport.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending[task.Tag] = task
	result := t.Handler(task)
	result.Tag = task.Tag
	result.Submitted = time.Now()
	result.Completed = result.Submitted
	t.ready = append(t.ready, result)
	return nil
}

// Wait implements transport.Transport.
func (t *Transport) Wait(ctx context.Context, timeout time.Duration) (transport.Result, error) {
	if err := ctx.Err(); err != nil {
		return transport.Result{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ready) == 0 {
		return transport.Result{}, transport.ErrEmpty
	}
	result := t.ready[0]
	t.ready = t.ready[1:]
	delete(t.pending, result.Tag)
	return result, nil
}

// CancelByTag implements transport.Transport.
func (t *Transport) CancelByTag(tag string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.pending, tag)
	filtered := t.ready[:0]
	for _, r := range t.ready {
		if r.Tag != tag {
			filtered = append(filtered, r)
		}
	}
	t.ready = filtered
	return nil
}

// Empty implements transport.Transport.
func (t *Transport) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending) == 0 && len(t.ready) == 0
}

// TasksInQueue implements transport.Transport. The mock resolves tasks
// synchronously, so nothing ever sits in a dispatch queue.
func (t *Transport) TasksInQueue() int {
	return 0
}

// ActiveWorkers implements transport.Transport.
func (t *Transport) ActiveWorkers() int {
	return t.Workers
}

// Clear implements transport.Transport.
func (t *Transport) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = make(map[string]transport.Task)
	t.ready = nil
}
