// Package daemon is the composition root: it opens the stores, builds the
// collaborators and wires watcher, monitor, scheduler and pipeline together.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/config"
	"scribe/internal/index"
	"scribe/internal/logging"
	"scribe/internal/monitor"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/scheduler"
	"scribe/internal/services/ffmpeg"
	"scribe/internal/services/whisper"
	"scribe/internal/verification"
	"scribe/internal/watcher"
)

// Daemon owns every long-running component of a scribe instance. Multiple
// instances may share the same database and verification directory; the
// store's conditional claim keeps them from processing the same item twice.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store  *queue.Store
	vstore *verification.Store
	search *index.Store
	pipe   *pipeline.Pipeline

	mu      sync.Mutex
	running bool
	sched   *scheduler.Scheduler
	watch   *watcher.Watcher
	mon     *monitor.Monitor
}

// New opens the stores and builds the processing pipeline. Start must be
// called before the daemon does any work.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}

	search, err := index.NewStore(store.DB(), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	vstore := verification.NewStore(cfg.Paths.VerificationDir, logger)

	transcriber := whisper.NewService(whisper.Config{
		Binary:        cfg.Transcriber.Binary,
		FFmpegBinary:  cfg.Transcriber.FFmpegBinary,
		Model:         cfg.Transcriber.Model,
		Language:      cfg.Transcriber.Language,
		RemoveSilence: cfg.Transcriber.RemoveSilence,
	})
	thumbnailer := ffmpeg.NewThumbnailer(ffmpeg.ThumbnailConfig{
		Binary:      cfg.Transcriber.FFmpegBinary,
		SeekSeconds: cfg.Thumbnails.SeekSeconds,
		Width:       cfg.Thumbnails.Width,
	})

	pipe := pipeline.New(cfg, store, vstore, transcriber, thumbnailer, search, logger)

	return &Daemon{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "daemon"),
		store:  store,
		vstore: vstore,
		search: search,
		pipe:   pipe,
	}, nil
}

// Store exposes the item store for operator commands sharing a daemon.
func (d *Daemon) Store() *queue.Store {
	return d.store
}

// Start requeues stranded items from a previous run, then launches the
// monitor and the folder watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	requeued, err := d.store.RequeueStuck(ctx)
	if err != nil {
		return err
	}
	if requeued > 0 {
		d.logger.Info("requeued items stranded by previous shutdown",
			logging.Int64("count", requeued))
	}

	d.sched = scheduler.New(ctx, d.logger)
	d.mon = monitor.New(d.cfg, d.store, d.sched, d.pipe, d.logger)
	d.watch = watcher.New(d.cfg, d.store, d.search, d.pipe, d.logger)

	if err := d.mon.Start(ctx); err != nil {
		return err
	}
	if err := d.watch.Start(ctx); err != nil {
		d.mon.Stop()
		return err
	}
	d.running = true

	d.logger.Info("daemon started",
		logging.Int("watched_roots", len(d.cfg.Watches)))
	return nil
}

// Stop halts intake first, then drains in-flight pipelines within the
// configured shutdown budget and closes the store.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		_ = d.store.Close()
		return
	}
	d.running = false
	watch, mon, sched := d.watch, d.mon, d.sched
	d.mu.Unlock()

	watch.Stop()
	mon.Stop()

	timeout := time.Duration(d.cfg.Workflow.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if graceful := sched.Shutdown(timeout); !graceful {
		d.logger.Warn("shutdown timed out; some pipelines were abandoned")
	}

	if err := d.store.Close(); err != nil {
		d.logger.Warn("closing item store failed", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}
