package procpool

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/ccl-awe/awe-go/awe/transport"
)

func requireCP(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("cp")
	if err != nil {
		t.Skip("cp not available on PATH")
	}
	return path
}

func TestPoolSubmitAndWaitEchoesPayload(t *testing.T) {
	cp := requireCP(t)
	pool, err := New(Config{Executable: cp, BaseDir: t.TempDir(), Workers: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := pool.Submit(ctx, transport.Task{Tag: "t1", Payload: []byte("ATOM payload")}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	result, err := pool.Wait(ctx, 5*time.Second)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result.Tag != "t1" {
		t.Fatalf("result.Tag = %q, want t1", result.Tag)
	}
	if !result.OK() {
		t.Fatalf("result.OK() = false, want true (cp should exit 0); result = %+v", result)
	}
	if string(result.Output) != "ATOM payload" {
		t.Fatalf("result.Output = %q, want %q", result.Output, "ATOM payload")
	}
}

func TestPoolWaitTimesOutWhenNothingSubmitted(t *testing.T) {
	cp := requireCP(t)
	pool, err := New(Config{Executable: cp, BaseDir: t.TempDir(), Workers: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = pool.Wait(context.Background(), 50*time.Millisecond)
	if err != transport.ErrEmpty {
		t.Fatalf("Wait() error = %v, want transport.ErrEmpty", err)
	}
}

func TestPoolReportsNonzeroExitAsTaskExecutionFailure(t *testing.T) {
	falsePath, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not available on PATH")
	}
	pool, err := New(Config{Executable: falsePath, BaseDir: t.TempDir(), Workers: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := pool.Submit(ctx, transport.Task{Tag: "t1", Payload: []byte("x")}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	result, err := pool.Wait(ctx, 5*time.Second)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result.OK() {
		t.Fatal("result.OK() = true, want false (false(1) exits nonzero)")
	}
}

func TestPoolActiveWorkersDefaultsToOne(t *testing.T) {
	pool, err := New(Config{Executable: "/bin/true", BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := pool.ActiveWorkers(); got != 1 {
		t.Fatalf("ActiveWorkers() = %d, want 1 (default)", got)
	}
}
