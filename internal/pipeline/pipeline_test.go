package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/whisper"
	"scribe/internal/testsupport"
	"scribe/internal/transcript"
	"scribe/internal/verification"
)

type fakeTranscriber struct {
	calls atomic.Int64
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, mediaPath, _ string, onProgress whisper.ProgressFunc) (whisper.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return whisper.Result{}, f.err
	}
	if onProgress != nil {
		onProgress(whisper.PhaseExtracting, 0.0, "extracting audio")
		onProgress(whisper.PhaseTranscribing, 0.5, "running whisper")
		onProgress(whisper.PhasePostprocessing, 0.9, "writing transcript")
	}
	tr := &transcript.Transcript{
		Language: "en",
		Text:     "fake transcript",
		Segments: []transcript.Segment{{Start: 0, End: 1, Text: "fake transcript"}},
	}
	dest := transcript.SiblingPath(mediaPath)
	if err := tr.Save(dest); err != nil {
		return whisper.Result{}, err
	}
	return whisper.Result{TranscriptPath: dest, JobID: "job-fake", Transcript: tr}, nil
}

type fakeThumbnailer struct {
	calls atomic.Int64
	err   error
	path  string
}

func (f *fakeThumbnailer) Generate(context.Context, string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

type fakeIndexer struct {
	calls atomic.Int64
	err   error
}

func (f *fakeIndexer) IndexTranscript(context.Context, string, string, *transcript.Transcript) error {
	f.calls.Add(1)
	return f.err
}

type fixture struct {
	cfg         *config.Config
	store       *queue.Store
	vstore      *verification.Store
	transcriber *fakeTranscriber
	thumbnailer *fakeThumbnailer
	indexer     *fakeIndexer
	pipeline    *pipeline.Pipeline
	mediaPath   string
	item        *queue.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	vstore := verification.NewStore(cfg.Paths.VerificationDir, logging.NewNop())

	mediaPath := filepath.Join(cfg.Watches[0].Path, "talk.mkv")
	testsupport.WriteFile(t, mediaPath, 8192)

	f := &fixture{
		cfg:         cfg,
		store:       store,
		vstore:      vstore,
		transcriber: &fakeTranscriber{},
		thumbnailer: &fakeThumbnailer{path: filepath.Join(testsupport.BaseDir(cfg), "thumb.jpg")},
		indexer:     &fakeIndexer{},
		mediaPath:   mediaPath,
	}
	f.pipeline = pipeline.New(cfg, store, vstore, f.transcriber, f.thumbnailer, f.indexer, logging.NewNop())

	item := testsupport.NewQueuedItem(t, store, mediaPath)
	claimed, err := store.TryClaim(context.Background(), item.ID, queue.StatusQueued, queue.StatusProcessing)
	if err != nil || !claimed {
		t.Fatalf("claim: %v %v", claimed, err)
	}
	item.Status = queue.StatusProcessing
	f.item = item
	return f
}

func (f *fixture) reload(t *testing.T) *queue.Item {
	t.Helper()
	item, err := f.store.GetByID(context.Background(), f.item.ID)
	if err != nil || item == nil {
		t.Fatalf("reload item: %v", err)
	}
	return item
}

func TestRunCompletesWithFullProgress(t *testing.T) {
	f := newFixture(t)

	if err := f.pipeline.Run(context.Background(), f.item); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored := f.reload(t)
	if stored.ProgressPercent != 100 {
		t.Fatalf("progress = %v, want 100", stored.ProgressPercent)
	}
	if stored.TranscriptPath != transcript.SiblingPath(f.mediaPath) {
		t.Fatalf("transcript path = %q", stored.TranscriptPath)
	}
	if stored.ThumbnailPath == "" {
		t.Fatal("thumbnail path not recorded")
	}
	if f.indexer.calls.Load() != 1 {
		t.Fatalf("indexer called %d times", f.indexer.calls.Load())
	}

	record, found := f.vstore.Lookup(stored.ContentHash)
	if !found || !record.Trusted() {
		t.Fatalf("verification record not trusted: %#v", record)
	}
	if record.TranscriptionID != "job-fake" {
		t.Fatalf("job id not recorded: %#v", record)
	}
}

func TestRunFailureStillFinishesProgress(t *testing.T) {
	f := newFixture(t)
	f.transcriber.err = services.Wrap(services.ErrExternalTool, "whisper", "transcribe", "model crashed", nil)

	err := f.pipeline.Run(context.Background(), f.item)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected transcription failure, got %v", err)
	}

	stored := f.reload(t)
	if stored.ProgressPercent != 100 {
		t.Fatalf("progress must finish at 100 on failure, got %v", stored.ProgressPercent)
	}
	if f.indexer.calls.Load() != 0 {
		t.Fatal("indexing must not run after a transcription failure")
	}
}

func TestTrustedRecordSkipsTranscription(t *testing.T) {
	f := newFixture(t)

	// A prior verified run left its transcript and record behind.
	first := newFakeRun(t, f)
	if err := f.vstore.Register(f.mediaPath, first, "job-old", transcript.SiblingPath(f.mediaPath), "processing"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.vstore.UpdateStatus(first, "job-old", verification.StatusCompleted, true); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if err := f.pipeline.Run(context.Background(), f.item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.transcriber.calls.Load() != 0 {
		t.Fatal("transcriber must not run for a trusted hash")
	}
	if f.indexer.calls.Load() != 1 {
		t.Fatal("cached transcript should still be indexed")
	}
	if f.reload(t).ProgressPercent != 100 {
		t.Fatal("progress must still reach 100")
	}
}

// newFakeRun writes the cached transcript and returns the media hash.
func newFakeRun(t *testing.T, f *fixture) string {
	t.Helper()
	tr := &transcript.Transcript{
		Language: "en",
		Text:     "cached words",
		Segments: []transcript.Segment{{Start: 0, End: 1, Text: "cached words"}},
	}
	if err := tr.Save(transcript.SiblingPath(f.mediaPath)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	hash, err := verification.ComputeHash(f.mediaPath)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	return hash
}

func TestThumbnailFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.thumbnailer.err = errors.New("no video stream")

	if err := f.pipeline.Run(context.Background(), f.item); err != nil {
		t.Fatalf("Run must succeed despite thumbnail failure: %v", err)
	}
	if f.reload(t).ThumbnailPath != "" {
		t.Fatal("no thumbnail path expected")
	}
}

func TestIndexingFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.indexer.err = errors.New("index table locked")

	if err := f.pipeline.Run(context.Background(), f.item); err != nil {
		t.Fatalf("Run must succeed despite indexing failure: %v", err)
	}
}

func TestCancellationFinalizesProgress(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.pipeline.Run(ctx, f.item)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.reload(t).ProgressPercent != 100 {
		t.Fatal("cancelled run must still finalize progress")
	}
}

func TestRunRefusesVanishedFile(t *testing.T) {
	f := newFixture(t)
	if err := os.Remove(f.mediaPath); err != nil {
		t.Fatalf("remove media: %v", err)
	}

	err := f.pipeline.Run(context.Background(), f.item)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.thumbnailer.calls.Load() != 0 || f.transcriber.calls.Load() != 0 {
		t.Fatal("no tool may be spawned against a missing file")
	}
	if f.reload(t).ProgressPercent != 100 {
		t.Fatal("failed run must still finalize progress")
	}
}

func TestInitializeMissingFileIsFatal(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Initialize(context.Background(), filepath.Join(t.TempDir(), "gone.mkv"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInitializeImportsUnknownFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.cfg.Watches[0].Path, "fresh.mkv")
	testsupport.WriteFile(t, path, 1024)

	item, err := f.pipeline.Initialize(context.Background(), path)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if item.ID == "" || item.FileName != "fresh.mkv" {
		t.Fatalf("unexpected item: %#v", item)
	}
	if stored, _ := f.store.GetByFileName(context.Background(), "fresh.mkv"); stored == nil {
		t.Fatal("item was not persisted")
	}
}

func TestSubPhaseStatusesObserved(t *testing.T) {
	f := newFixture(t)

	if err := f.pipeline.Run(context.Background(), f.item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The last sub-phase write is followed by a reset to processing.
	if got := f.reload(t).Status; got != queue.StatusProcessing {
		t.Fatalf("status after run = %s, want processing", got)
	}
}
