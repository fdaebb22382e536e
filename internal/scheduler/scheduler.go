// Package scheduler runs item processing tasks as tracked goroutines. Each
// task gets its own cancelable context derived from a shared shutdown
// context, duplicate submissions for an in-flight key are rejected, and
// Shutdown waits a bounded time for stragglers.
package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"scribe/internal/logging"
)

// Task is a unit of work bound to an item. The context is canceled on
// per-task cancellation and on scheduler shutdown; tasks are expected to
// return promptly once it fires.
type Task func(ctx context.Context)

type taskState struct {
	cancel context.CancelFunc
}

// Scheduler tracks running tasks keyed by item id.
type Scheduler struct {
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*taskState
	closed bool
	wg     sync.WaitGroup
}

// New creates a scheduler whose tasks live under the given parent context.
func New(parent context.Context, logger *slog.Logger) *Scheduler {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		logger:  logging.NewComponentLogger(logger, "scheduler"),
		baseCtx: ctx,
		cancel:  cancel,
		tasks:   make(map[string]*taskState),
	}
}

// Submit starts the task in its own goroutine. It reports false without
// running anything when a task with the same key is already in flight or the
// scheduler has shut down.
func (s *Scheduler) Submit(key string, task Task) bool {
	if key == "" || task == nil {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if _, exists := s.tasks[key]; exists {
		s.mu.Unlock()
		return false
	}
	taskCtx, taskCancel := context.WithCancel(s.baseCtx)
	s.tasks[key] = &taskState{cancel: taskCancel}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.remove(key)
		defer taskCancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("task panicked",
					logging.String("task_key", key),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())))
			}
		}()
		task(taskCtx)
	}()
	return true
}

// Cancel stops a single in-flight task. It reports whether a task with the
// key was running.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	state, ok := s.tasks[key]
	s.mu.Unlock()
	if ok {
		state.cancel()
	}
	return ok
}

// Running reports whether a task with the key is currently in flight.
func (s *Scheduler) Running(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Active returns the number of in-flight tasks.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown cancels every task context and waits up to timeout for the tasks
// to drain. It reports whether the stop was graceful; on timeout the still
// running keys are logged and left to die with the process.
func (s *Scheduler) Shutdown(timeout time.Duration) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		s.mu.Lock()
		remaining := make([]string, 0, len(s.tasks))
		for key := range s.tasks {
			remaining = append(remaining, key)
		}
		s.mu.Unlock()
		s.logger.Warn("shutdown timed out with tasks still running",
			logging.Int("count", len(remaining)),
			logging.Any("task_keys", remaining))
		return false
	}
}

func (s *Scheduler) remove(key string) {
	s.mu.Lock()
	delete(s.tasks, key)
	s.mu.Unlock()
}
