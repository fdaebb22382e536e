// Package monitor polls the item store for queued work, claims items with a
// conditional status transition and hands each claim to the scheduler. The
// claim is the only cross-instance synchronization: losing the race is not
// an error, the item is simply skipped.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/scheduler"
	"scribe/internal/services"
)

// Runner executes the processing stages for one claimed item.
type Runner interface {
	Run(ctx context.Context, item *queue.Item) error
}

// Option adjusts monitor behavior.
type Option func(*Monitor)

// WithPollInterval overrides the configured poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		m.pollInterval = interval
	}
}

// Monitor drives the claim-and-process loop.
type Monitor struct {
	store     *queue.Store
	scheduler *scheduler.Scheduler
	runner    Runner
	logger    *slog.Logger

	pollInterval  time.Duration
	retryInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a monitor over the shared store.
func New(cfg *config.Config, store *queue.Store, sched *scheduler.Scheduler, runner Runner, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Monitor{
		store:         store,
		scheduler:     sched,
		runner:        runner,
		logger:        logging.NewComponentLogger(logger, "monitor"),
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 5 * time.Second
	}
	if m.retryInterval <= 0 {
		m.retryInterval = m.pollInterval
	}
	return m
}

// Start launches the poll loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("monitor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.pollLoop(runCtx)
	}()
	return nil
}

// Stop ends polling and waits for the loop to exit. In-flight pipeline work
// is owned by the scheduler and drains during its shutdown.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Monitor) pollLoop(ctx context.Context) {
	for {
		if err := m.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("queue poll failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_poll_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"))
			if !sleepCtx(ctx, m.retryInterval) {
				return
			}
			continue
		}
		if !sleepCtx(ctx, m.pollInterval) {
			return
		}
	}
}

// pollOnce claims every currently queued item and submits it for
// processing.
func (m *Monitor) pollOnce(ctx context.Context) error {
	items, err := m.store.ItemsByStatus(ctx, queue.StatusQueued)
	if err != nil {
		return err
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return nil
		}
		claimed, err := m.store.TryClaim(ctx, item.ID, queue.StatusQueued, queue.StatusProcessing)
		if err != nil {
			m.logger.Error("claim attempt failed",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err))
			continue
		}
		if !claimed {
			// Another instance won the race.
			continue
		}
		item.Status = queue.StatusProcessing

		item := item
		if !m.scheduler.Submit(item.ID, func(taskCtx context.Context) {
			m.process(taskCtx, item)
		}) {
			m.logger.Warn("scheduler rejected claimed item",
				logging.String(logging.FieldItemID, item.ID))
		}
	}
	return nil
}

// process runs the pipeline for a claimed item and always records a terminal
// status, even when the task context was cancelled or the runner panicked.
func (m *Monitor) process(ctx context.Context, item *queue.Item) {
	requestID := uuid.NewString()
	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithRequestID(ctx, requestID)

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("pipeline panic: %v", r)
		}
		m.writeTerminal(ctx, item, runErr)
	}()

	m.logger.Info("processing item",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldRequestID, requestID),
		logging.String("file", item.FileName))
	runErr = m.runner.Run(ctx, item)
}

func (m *Monitor) writeTerminal(ctx context.Context, item *queue.Item, runErr error) {
	// The terminal write must survive task cancellation.
	base := context.WithoutCancel(ctx)

	switch {
	case runErr == nil:
		if err := m.store.SetStatus(base, item.ID, queue.StatusCompleted); err != nil {
			m.logger.Error("failed to mark item completed",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err))
			return
		}
		m.logger.Info("item completed", logging.String(logging.FieldItemID, item.ID))
	case errors.Is(runErr, context.Canceled) || ctx.Err() != nil:
		// Killing an external tool mid-run surfaces as an exit error
		// ("signal: killed"), not context.Canceled, so the task context
		// is the authoritative cancellation signal.
		if err := m.store.SetStatus(base, item.ID, queue.StatusCancelled); err != nil {
			m.logger.Error("failed to mark item cancelled",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err))
			return
		}
		m.logger.Info("item cancelled", logging.String(logging.FieldItemID, item.ID))
	default:
		if err := m.store.SetFailure(base, item.ID, runErr.Error()); err != nil {
			m.logger.Error("failed to mark item failed",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err))
			return
		}
		hint := "inspect the media file before retrying"
		if services.IsTransient(runErr) {
			hint = "transient failure, retry with scribed queue retry"
		}
		m.logger.Error("item failed",
			logging.String(logging.FieldItemID, item.ID),
			logging.String(logging.FieldErrorHint, hint),
			logging.Error(runErr))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
