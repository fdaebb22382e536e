package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"scribe/internal/logging"
	"scribe/internal/scheduler"
)

func TestSubmitRejectsDuplicates(t *testing.T) {
	s := scheduler.New(context.Background(), logging.NewNop())
	defer s.Shutdown(time.Second)

	release := make(chan struct{})
	var runs atomic.Int64
	task := func(ctx context.Context) {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}

	if !s.Submit("item-1", task) {
		t.Fatal("first submit must be accepted")
	}
	if s.Submit("item-1", task) {
		t.Fatal("duplicate submit must be a no-op")
	}
	close(release)

	waitFor(t, func() bool { return s.Active() == 0 })
	if got := runs.Load(); got != 1 {
		t.Fatalf("task ran %d times", got)
	}
}

func TestKeyReusableAfterCompletion(t *testing.T) {
	s := scheduler.New(context.Background(), logging.NewNop())
	defer s.Shutdown(time.Second)

	ran := make(chan struct{}, 2)
	task := func(context.Context) { ran <- struct{}{} }

	if !s.Submit("item-1", task) {
		t.Fatal("first submit rejected")
	}
	<-ran
	waitFor(t, func() bool { return !s.Running("item-1") })

	if !s.Submit("item-1", task) {
		t.Fatal("key must be reusable after the task finishes")
	}
	<-ran
}

func TestCancelStopsOnlyTargetTask(t *testing.T) {
	s := scheduler.New(context.Background(), logging.NewNop())
	defer s.Shutdown(time.Second)

	firstDone := make(chan struct{})
	secondCanceled := make(chan struct{})

	s.Submit("keep", func(ctx context.Context) {
		<-firstDone
	})
	s.Submit("drop", func(ctx context.Context) {
		<-ctx.Done()
		close(secondCanceled)
	})

	if !s.Cancel("drop") {
		t.Fatal("expected cancel to find the task")
	}
	select {
	case <-secondCanceled:
	case <-time.After(2 * time.Second):
		t.Fatal("canceled task did not observe ctx.Done")
	}
	if !s.Running("keep") {
		t.Fatal("unrelated task must keep running")
	}
	close(firstDone)
}

func TestPanicIsContainedAndTrackingCleared(t *testing.T) {
	s := scheduler.New(context.Background(), logging.NewNop())
	defer s.Shutdown(time.Second)

	s.Submit("bad", func(context.Context) { panic("kaboom") })
	waitFor(t, func() bool { return !s.Running("bad") })

	// The key must be free again after the fault.
	ran := make(chan struct{})
	if !s.Submit("bad", func(context.Context) { close(ran) }) {
		t.Fatal("key still held after panic")
	}
	<-ran
}

func TestShutdownGracefulAndTimeout(t *testing.T) {
	s := scheduler.New(context.Background(), logging.NewNop())
	s.Submit("cooperative", func(ctx context.Context) { <-ctx.Done() })
	if !s.Shutdown(2 * time.Second) {
		t.Fatal("cooperative task should allow graceful shutdown")
	}
	if s.Submit("late", func(context.Context) {}) {
		t.Fatal("submit after shutdown must be rejected")
	}

	stubborn := scheduler.New(context.Background(), logging.NewNop())
	blocked := make(chan struct{})
	stubborn.Submit("stuck", func(context.Context) { <-blocked })
	if stubborn.Shutdown(50 * time.Millisecond) {
		t.Fatal("expected shutdown timeout with a non-cooperative task")
	}
	close(blocked)
}

func TestShutdownCancelsTaskContexts(t *testing.T) {
	s := scheduler.New(context.Background(), logging.NewNop())
	observed := make(chan struct{})
	s.Submit("item-1", func(ctx context.Context) {
		<-ctx.Done()
		close(observed)
	})
	if !s.Shutdown(2 * time.Second) {
		t.Fatal("graceful shutdown expected")
	}
	select {
	case <-observed:
	default:
		t.Fatal("task context was not canceled on shutdown")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
