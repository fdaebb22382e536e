// Package pipeline runs the ordered processing stages for one claimed item:
// thumbnail, transcription, indexing. Thumbnail and indexing failures are
// logged and swallowed; transcription failure fails the item. The
// verification store short-circuits work that already produced a trusted
// transcript.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/whisper"
	"scribe/internal/transcript"
	"scribe/internal/verification"
)

// Transcriber produces a transcript for a media file, reporting phase
// transitions as it goes.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath, workDir string, onProgress whisper.ProgressFunc) (whisper.Result, error)
}

// Thumbnailer produces a preview image for a media file.
type Thumbnailer interface {
	Generate(ctx context.Context, mediaPath string) (string, error)
}

// Indexer makes a finished transcript searchable.
type Indexer interface {
	IndexTranscript(ctx context.Context, itemID, mediaPath string, tr *transcript.Transcript) error
}

// Pipeline executes the processing stages for claimed items.
type Pipeline struct {
	cfg          *config.Config
	store        *queue.Store
	verification *verification.Store
	transcriber  Transcriber
	thumbnailer  Thumbnailer
	indexer      Indexer
	logger       *slog.Logger
}

// New assembles a pipeline. Thumbnailer and indexer may be nil; their stages
// are skipped. The transcriber is required.
func New(cfg *config.Config, store *queue.Store, vstore *verification.Store, transcriber Transcriber, thumbnailer Thumbnailer, indexer Indexer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg:          cfg,
		store:        store,
		verification: vstore,
		transcriber:  transcriber,
		thumbnailer:  thumbnailer,
		indexer:      indexer,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Initialize resolves the item record for a media path, importing it when
// none exists. A missing file is fatal. An import failure is not: processing
// can still run against an ephemeral record, it just will not be tracked.
func (p *Pipeline) Initialize(ctx context.Context, path string) (*queue.Item, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "initialize", "media file missing", err)
	}

	item, err := p.store.GetByFileName(ctx, filepath.Base(path))
	if err == nil && item == nil {
		item, err = p.store.Insert(ctx, path)
	}
	if err != nil {
		p.logger.Warn("item import failed; continuing untracked",
			logging.String("path", path),
			logging.Error(err))
		return &queue.Item{
			FilePath: path,
			FileName: filepath.Base(path),
			Status:   queue.StatusProcessing,
		}, nil
	}
	return item, nil
}

// Run executes the stages for a claimed item. The returned error is the
// item's failure cause; a nil return means the item completed. Progress
// always reaches 100, even on failure or cancellation.
func (p *Pipeline) Run(ctx context.Context, item *queue.Item) (err error) {
	ctx = services.WithItemID(ctx, item.ID)
	logger := services.ContextLogger(ctx, p.logger).With(
		logging.String("file", item.FileName))
	tracker := newProgressTracker(p.store, item.ID, logger)
	defer func() {
		message := "completed"
		if err != nil {
			message = "finished with error"
		}
		tracker.Finish(ctx, message)
	}()

	// The file can vanish between queueing and claim. Catch that before
	// any external tool is spawned against the dead path.
	if _, statErr := os.Stat(item.FilePath); statErr != nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "run", "media file missing", statErr)
	}
	tracker.Set(ctx, "initialize", "starting processing", checkpointInitialized)

	p.runThumbnailStage(ctx, item, logger)
	tracker.Set(ctx, "thumbnail", "thumbnail stage done", checkpointThumbnail)
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := p.runTranscriptionStage(ctx, item, tracker, logger)
	if err != nil {
		return err
	}
	tracker.Set(ctx, "transcription", "transcript ready", checkpointTranscribed)
	if err := ctx.Err(); err != nil {
		return err
	}

	p.runIndexingStage(ctx, item, result, logger)
	tracker.Set(ctx, "indexing", "indexing triggered", checkpointIndexed)

	tracker.Set(ctx, "finalize", "finalizing", checkpointFinalizing)
	return ctx.Err()
}

// runThumbnailStage is strictly best-effort. A missing thumbnail is
// cosmetic.
func (p *Pipeline) runThumbnailStage(ctx context.Context, item *queue.Item, logger *slog.Logger) {
	if p.thumbnailer == nil || !p.cfg.Thumbnails.Enabled {
		return
	}
	thumbPath, err := p.thumbnailer.Generate(ctx, item.FilePath)
	if err != nil {
		logger.Warn("thumbnail generation failed; continuing",
			logging.String(logging.FieldStage, "thumbnail"),
			logging.Error(err))
		return
	}
	item.ThumbnailPath = thumbPath
	if item.ID != "" {
		if err := p.store.Update(ctx, item); err != nil {
			logger.Warn("failed to record thumbnail path", logging.Error(err))
		}
	}
}

// runTranscriptionStage is the critical stage. It consults the verification
// store first and reuses a trusted prior transcript when one exists.
func (p *Pipeline) runTranscriptionStage(ctx context.Context, item *queue.Item, tracker *progressTracker, logger *slog.Logger) (whisper.Result, error) {
	var result whisper.Result
	if p.transcriber == nil {
		return result, services.Wrap(services.ErrConfiguration, "pipeline", "transcribe", "no transcriber configured", nil)
	}

	contentHash, err := verification.ComputeHash(item.FilePath)
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "pipeline", "transcribe", "content hash failed", err)
	}
	item.ContentHash = contentHash

	if p.verification.IsAlreadyProcessed(item.FilePath, contentHash) {
		logger.Info("transcription skipped, verified output exists",
			logging.String("content_hash", contentHash))
		result = p.cachedResult(item, contentHash)
		return result, nil
	}

	expectedOutput := transcript.SiblingPath(item.FilePath)
	if err := p.verification.Register(item.FilePath, contentHash, "", expectedOutput, "processing"); err != nil {
		logger.Warn("verification register failed; continuing", logging.Error(err))
	}

	ctx = services.WithStage(ctx, "transcription")
	result, err = p.transcriber.Transcribe(ctx, item.FilePath, p.workDir(item), func(phase whisper.Phase, fraction float64, message string) {
		p.applyPhase(ctx, item, phase, logger)
		percent := checkpointThumbnail + fraction*(checkpointTranscribed-checkpointThumbnail)
		tracker.Set(ctx, "transcription", message, percent)
	})
	if err != nil {
		return result, err
	}

	// Back to the neutral processing state after the sub-phases.
	p.setStatus(ctx, item, queue.StatusProcessing, logger)

	item.TranscriptPath = result.TranscriptPath
	if item.ID != "" {
		if updateErr := p.store.Update(ctx, item); updateErr != nil {
			logger.Warn("failed to record transcript path", logging.Error(updateErr))
		}
	}
	if err := p.verification.UpdateStatus(contentHash, result.JobID, verification.StatusCompleted, true); err != nil {
		logger.Warn("verification update failed; continuing", logging.Error(err))
	}
	return result, nil
}

// cachedResult rebuilds a transcription result from a prior verified run so
// the indexing stage still gets a transcript.
func (p *Pipeline) cachedResult(item *queue.Item, contentHash string) whisper.Result {
	result := whisper.Result{}
	if record, found := p.verification.Lookup(contentHash); found && record.OutputPath != "" {
		result.TranscriptPath = record.OutputPath
		result.JobID = record.TranscriptionID
	}
	if result.TranscriptPath == "" {
		result.TranscriptPath = transcript.SiblingPath(item.FilePath)
	}
	if tr, err := transcript.Load(result.TranscriptPath); err == nil {
		result.Transcript = tr
	}
	item.TranscriptPath = result.TranscriptPath
	return result
}

// runIndexingStage is best-effort. Search visibility lagging is acceptable.
func (p *Pipeline) runIndexingStage(ctx context.Context, item *queue.Item, result whisper.Result, logger *slog.Logger) {
	if p.indexer == nil || result.Transcript == nil {
		return
	}
	ctx = services.WithStage(ctx, "indexing")
	if err := p.indexer.IndexTranscript(ctx, item.ID, item.FilePath, result.Transcript); err != nil {
		logger.Warn("indexing failed; continuing",
			logging.String(logging.FieldStage, "indexing"),
			logging.Error(err))
	}
}

func (p *Pipeline) applyPhase(ctx context.Context, item *queue.Item, phase whisper.Phase, logger *slog.Logger) {
	status, ok := phaseStatus(phase)
	if !ok {
		return
	}
	p.setStatus(ctx, item, status, logger)
}

func (p *Pipeline) setStatus(ctx context.Context, item *queue.Item, status queue.Status, logger *slog.Logger) {
	if item.ID == "" {
		return
	}
	if err := p.store.SetStatus(ctx, item.ID, status); err != nil {
		logger.Warn("status update failed",
			logging.String("status", string(status)),
			logging.Error(err))
		return
	}
	item.Status = status
}

func phaseStatus(phase whisper.Phase) (queue.Status, bool) {
	switch phase {
	case whisper.PhaseExtracting:
		return queue.StatusExtracting, true
	case whisper.PhaseRemovingSilence:
		return queue.StatusRemovingSilence, true
	case whisper.PhaseTranscribing:
		return queue.StatusTranscribing, true
	case whisper.PhasePostprocessing:
		return queue.StatusPostprocessing, true
	default:
		return "", false
	}
}

func (p *Pipeline) workDir(item *queue.Item) string {
	key := item.ID
	if key == "" {
		key = item.FileName
	}
	return filepath.Join(p.cfg.Paths.StagingDir, key)
}
