package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitSynchronousRunsInline(t *testing.T) {
	s := New(0)
	ran := false
	s.Submit(func() { ran = true }, true)
	if !ran {
		t.Fatal("synchronous Submit did not run the task before returning")
	}
}

func TestSubmitAsynchronousRunsEventually(t *testing.T) {
	s := New(0)
	var ran int32
	done := make(chan struct{})
	s.Submit(func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	}, false)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async Submit did not run the task")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("task did not run")
	}
}

func TestScheduleSynchronousBlocksForDelay(t *testing.T) {
	s := New(0)
	start := time.Now()
	s.Schedule(context.Background(), func() {}, 30*time.Millisecond, true)
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("synchronous Schedule returned after %v, want >= 30ms", elapsed)
	}
}

func TestScheduleRespectsContextCancellation(t *testing.T) {
	s := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	cancel()
	s.Schedule(ctx, func() { ran <- struct{}{} }, time.Hour, false)

	select {
	case <-ran:
		t.Fatal("task ran despite cancelled context")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubmitOnCompleteSynchronousWaitsForPending(t *testing.T) {
	s := New(0)
	p := NewPending[int]()
	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Complete(42)
	}()

	var got int
	SubmitOnComplete(s, p, func(v int, err error) {
		got = v
	}, true)

	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestSubmitOnCompletePropagatesError(t *testing.T) {
	s := New(0)
	p := NewPending[int]()
	wantErr := errors.New("boom")
	p.Fail(wantErr)

	var gotErr error
	SubmitOnComplete(s, p, func(v int, err error) {
		gotErr = err
	}, true)

	if !errors.Is(gotErr, wantErr) {
		t.Fatalf("gotErr = %v, want %v", gotErr, wantErr)
	}
}

func TestBoundedWorkerPoolNeverRejects(t *testing.T) {
	s := New(2)
	const n = 10
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		s.Submit(func() { done <- struct{}{} }, false)
	}
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("task %d never ran; bounded pool must never reject", i)
		}
	}
}

func TestPendingAwaitMultipleReaders(t *testing.T) {
	p := NewPending[string]()
	p.Complete("ok")

	for i := 0; i < 3; i++ {
		v, err := p.Await()
		if err != nil || v != "ok" {
			t.Fatalf("Await() = (%q, %v), want (ok, nil)", v, err)
		}
	}
}
