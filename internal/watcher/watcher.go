// Package watcher observes configured media roots and feeds ready files into
// the item store. A startup scan covers files dropped while the daemon was
// down; live fsnotify events cover everything after. Transcript files named
// by item id short-circuit straight to indexing.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/transcript"
)

// mediaExtensions are the file types the watcher imports.
var mediaExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".webm": {},
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".flac": {},
	".ogg":  {},
}

// Indexer receives transcripts that arrived without going through the
// pipeline.
type Indexer interface {
	IndexTranscript(ctx context.Context, itemID, mediaPath string, tr *transcript.Transcript) error
}

// Importer resolves or creates the item record for a ready media file.
type Importer interface {
	Initialize(ctx context.Context, path string) (*queue.Item, error)
}

// Watcher wires fsnotify events and startup scans into item ingestion.
type Watcher struct {
	cfg      *config.Config
	store    *queue.Store
	indexer  Indexer
	importer Importer
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New builds a watcher over the configured roots. The indexer may be nil, in
// which case transcript drops are ignored. The importer is required; it owns
// the lookup-or-insert of item records for discovered media.
func New(cfg *config.Config, store *queue.Store, indexer Indexer, importer Importer, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		cfg:      cfg,
		store:    store,
		indexer:  indexer,
		importer: importer,
		logger:   logging.NewComponentLogger(logger, "watcher"),
		inFlight: make(map[string]struct{}),
	}
}

// Start registers filesystem watches and launches the event loop plus the
// startup scan. It returns once watches are registered; ingestion continues
// in the background until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	for _, watch := range w.cfg.Watches {
		if err := w.addWatches(watch.Path, watch.Recursive); err != nil {
			w.logger.Warn("failed to register watch",
				logging.String("path", watch.Path),
				logging.Error(err))
		}
	}

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.eventLoop(runCtx)
	}()
	go func() {
		defer w.wg.Done()
		w.startupScan(runCtx)
	}()
	return nil
}

// Stop ends event processing and waits for in-flight handlers to return.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) addWatches(root string, recursive bool) error {
	if !recursive {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		// The transcripts subfolder is part of the contract even for
		// non-recursive roots.
		transcripts := filepath.Join(root, transcript.DirName)
		if info, err := os.Stat(transcripts); err == nil && info.IsDir() {
			return w.fsw.Add(transcripts)
		}
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// startupScan feeds pre-existing files through the same ingestion path as
// live events so nothing dropped during downtime is lost.
func (w *Watcher) startupScan(ctx context.Context) {
	for _, watch := range w.cfg.Watches {
		watch := watch
		err := filepath.WalkDir(watch.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if path != watch.Path && !watch.Recursive && !isTranscriptDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			w.dispatch(ctx, path)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("startup scan failed",
				logging.String("path", watch.Path),
				logging.Error(err))
		}
	}
}

func (w *Watcher) scanDirectory(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !entry.IsDir() {
			w.dispatch(ctx, filepath.Join(dir, entry.Name()))
		}
	}
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		// New directories under a recursive root join the watch set so
		// files created inside them are seen.
		if event.Op&fsnotify.Create != 0 && (w.isRecursivePath(event.Name) || isTranscriptDir(event.Name)) {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					logging.String("path", event.Name),
					logging.Error(err))
				return
			}
			// Files may have landed before the watch took effect.
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.scanDirectory(ctx, event.Name)
			}()
		}
		return
	}

	// Handlers block on readability retries, so they run off the event
	// goroutine. The in-flight set keeps duplicate events harmless.
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.dispatch(ctx, event.Name)
	}()
}

// dispatch routes one path to the media or transcript flow.
func (w *Watcher) dispatch(ctx context.Context, path string) {
	switch {
	case isMediaFile(path):
		w.handleMediaFile(ctx, path)
	case isTranscriptFile(path):
		w.handleTranscriptFile(ctx, path)
	}
}

func (w *Watcher) handleMediaFile(ctx context.Context, path string) {
	if !w.tryBegin(path) {
		return
	}
	defer w.end(path)

	if !w.waitUntilReadable(ctx, path) {
		return
	}

	item, err := w.importer.Initialize(ctx, path)
	if err != nil {
		w.logger.Error("item import failed",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	// An untracked record cannot be queued; a tracked one is only queued
	// from its initial state.
	if item.ID == "" || item.Status != queue.StatusNotStarted {
		return
	}
	w.logger.Info("media file imported",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("path", path))

	claimed, err := w.store.TryClaim(ctx, item.ID, queue.StatusNotStarted, queue.StatusQueued)
	if err != nil {
		w.logger.Error("failed to queue item",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
		return
	}
	if claimed {
		w.logger.Info("item queued",
			logging.String(logging.FieldItemID, item.ID),
			logging.String("path", path))
	}
}

// handleTranscriptFile indexes a transcript dropped for an existing item.
// File names that do not parse as item ids are ignored; that covers the
// pipeline's own base-name keyed outputs landing in the same directory.
func (w *Watcher) handleTranscriptFile(ctx context.Context, path string) {
	if w.indexer == nil {
		return
	}
	itemID := strings.TrimSuffix(filepath.Base(path), ".json")
	if _, err := uuid.Parse(itemID); err != nil {
		return
	}

	if !w.tryBegin(path) {
		return
	}
	defer w.end(path)

	if !w.waitUntilReadable(ctx, path) {
		return
	}

	item, err := w.store.GetByID(ctx, itemID)
	if err != nil || item == nil {
		return
	}

	tr, err := transcript.Load(path)
	if err != nil {
		w.logger.Warn("dropped transcript is not readable",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	if err := tr.Validate(); err != nil {
		w.logger.Warn("dropped transcript is invalid",
			logging.String("path", path),
			logging.Error(err))
		return
	}

	if err := w.indexer.IndexTranscript(ctx, item.ID, item.FilePath, tr); err != nil {
		w.logger.Warn("direct indexing failed",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
		return
	}

	item.TranscriptPath = path
	if err := w.store.Update(ctx, item); err != nil {
		w.logger.Warn("failed to record transcript path",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
	w.logger.Info("transcript indexed directly",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("path", path))
}

// waitUntilReadable retries until the file opens and its size holds steady
// between attempts. Exhausting the budget is not an error; the file is
// treated as not ready yet and a later event will try again.
func (w *Watcher) waitUntilReadable(ctx context.Context, path string) bool {
	// Stability needs at least two observations of the same size.
	retries := w.cfg.Workflow.FileReadyRetries
	if retries < 2 {
		retries = 2
	}
	delay := time.Duration(w.cfg.Workflow.FileReadyDelayMS) * time.Millisecond

	var lastSize int64 = -1
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		size := info.Size()
		if size == 0 || size != lastSize {
			lastSize = size
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		_ = f.Close()
		return true
	}

	w.logger.Debug("file never became readable",
		logging.String("path", path),
		logging.Int("retries", retries))
	return false
}

func (w *Watcher) tryBegin(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[path]; busy {
		return false
	}
	w.inFlight[path] = struct{}{}
	return true
}

func (w *Watcher) end(path string) {
	w.mu.Lock()
	delete(w.inFlight, path)
	w.mu.Unlock()
}

func (w *Watcher) isRecursivePath(path string) bool {
	for _, watch := range w.cfg.Watches {
		if watch.Recursive && strings.HasPrefix(path, watch.Path+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isMediaFile(path string) bool {
	_, ok := mediaExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func isTranscriptFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json") && isTranscriptDir(filepath.Dir(path))
}

func isTranscriptDir(path string) bool {
	return filepath.Base(path) == transcript.DirName
}
