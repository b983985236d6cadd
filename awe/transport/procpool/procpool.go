// Package procpool implements a local worker pool Transport: each task
// runs the configured executable as a child process, writing its payload
// to a temp input file and reading the worker's result back from a temp
// output file. It stands in for the real cctools work-queue deployment
// when running a single machine's worth of simulation.
package procpool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ccl-awe/awe-go/awe/transport"
)

// Config describes how to invoke one task's worker process.
type Config struct {
	// Executable is the program run for every task; it receives the
	// input and output file paths as its first two arguments.
	Executable string
	BaseDir    string
	Workers    int
}

// Pool runs tasks as local child processes, up to Workers concurrently.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	pending map[string]struct{}
	results chan transport.Result
	sem     chan struct{}
}

// New returns a Pool configured per cfg. BaseDir is created if absent.
func New(cfg Config) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("procpool: create base dir: %w", err)
	}
	return &Pool{
		cfg:     cfg,
		pending: make(map[string]struct{}),
		results: make(chan transport.Result, cfg.Workers*4),
		sem:     make(chan struct{}, cfg.Workers),
	}, nil
}

// Submit implements transport.Transport by launching task.Tag's worker
// process in a new goroutine and publishing its Result once it exits.
func (p *Pool) Submit(ctx context.Context, task transport.Task) error {
	p.mu.Lock()
	p.pending[task.Tag] = struct{}{}
	p.mu.Unlock()

	go p.run(ctx, task)
	return nil
}

func (p *Pool) run(ctx context.Context, task transport.Task) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	submitted := time.Now()
	dir, err := os.MkdirTemp(p.cfg.BaseDir, "task-*")
	if err != nil {
		p.publish(transport.Result{Tag: task.Tag, ResultCode: -1, Submitted: submitted, Completed: time.Now()})
		return
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input.pdb")
	outPath := filepath.Join(dir, "output.tar")
	if err := os.WriteFile(inPath, task.Payload, 0o644); err != nil {
		p.publish(transport.Result{Tag: task.Tag, ResultCode: -1, Submitted: submitted, Completed: time.Now()})
		return
	}

	cmd := exec.CommandContext(ctx, p.cfg.Executable, inPath, outPath)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	runErr := cmd.Run()
	result := transport.Result{
		Tag:       task.Tag,
		Output:    stdout.Bytes(),
		Submitted: submitted,
		Completed: time.Now(),
	}
	if runErr != nil {
		result.ReturnStatus = -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ReturnStatus = exitErr.ExitCode()
		}
	} else if data, err := os.ReadFile(outPath); err == nil {
		result.Output = data
	} else {
		result.ResultCode = -1
	}

	p.publish(result)
}

func (p *Pool) publish(result transport.Result) {
	p.mu.Lock()
	delete(p.pending, result.Tag)
	p.mu.Unlock()
	p.results <- result
}

// Wait implements transport.Transport.
func (p *Pool) Wait(ctx context.Context, timeout time.Duration) (transport.Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-p.results:
		return result, nil
	case <-timer.C:
		return transport.Result{}, transport.ErrEmpty
	case <-ctx.Done():
		return transport.Result{}, ctx.Err()
	}
}

// CancelByTag implements transport.Transport. Local child processes run
// to completion; cancellation only suppresses the tag from future
// bookkeeping since we do not track one context per task.
func (p *Pool) CancelByTag(tag string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, tag)
	return nil
}

// Empty implements transport.Transport.
func (p *Pool) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending) == 0 && len(p.results) == 0
}

// TasksInQueue implements transport.Transport. It reports the number of
// distinct tags with a task still outstanding: tasks already running in a
// child process count along with those waiting for a worker slot, and
// duplicates sharing a tag count once.
func (p *Pool) TasksInQueue() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// ActiveWorkers implements transport.Transport.
func (p *Pool) ActiveWorkers() int {
	return p.cfg.Workers
}

// Clear implements transport.Transport.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = make(map[string]struct{})
	for len(p.results) > 0 {
		<-p.results
	}
}
