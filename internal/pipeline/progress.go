package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"scribe/internal/logging"
	"scribe/internal/queue"
)

// Stage checkpoint percentages. Transcription consumes the span between
// checkpointThumbnail and checkpointTranscribed.
const (
	checkpointInitialized = 10
	checkpointThumbnail   = 30
	checkpointTranscribed = 80
	checkpointIndexed     = 85
	checkpointFinalizing  = 95
	checkpointDone        = 100
)

// progressTracker persists monotonic progress for one item. Reported values
// never go backwards; persistence failures are logged and ignored since
// progress is observability, not correctness.
type progressTracker struct {
	store  *queue.Store
	itemID string
	logger *slog.Logger

	mu      sync.Mutex
	current float64
}

func newProgressTracker(store *queue.Store, itemID string, logger *slog.Logger) *progressTracker {
	return &progressTracker{store: store, itemID: itemID, logger: logger}
}

// Set records progress for a stage, clamped so it never regresses.
func (p *progressTracker) Set(ctx context.Context, stage, message string, percent float64) {
	p.mu.Lock()
	if percent < p.current {
		percent = p.current
	}
	if percent > checkpointDone {
		percent = checkpointDone
	}
	p.current = percent
	p.mu.Unlock()

	if err := p.store.SetProgress(ctx, p.itemID, stage, message, percent); err != nil {
		p.logger.Warn("failed to persist progress",
			logging.String(logging.FieldItemID, p.itemID),
			logging.String(logging.FieldStage, stage),
			logging.Error(err))
	}
}

// Finish drives progress to 100 on a non-cancellable context. It runs on
// success, failure and cancellation alike.
func (p *progressTracker) Finish(ctx context.Context, message string) {
	p.Set(context.WithoutCancel(ctx), "finalize", message, checkpointDone)
}
