package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/testsupport"
	"scribe/internal/transcript"
	"scribe/internal/watcher"
)

// newImporter builds the same item importer the daemon hands the watcher.
func newImporter(cfg *config.Config, store *queue.Store) watcher.Importer {
	return pipeline.New(cfg, store, nil, nil, nil, nil, logging.NewNop())
}

type recordingIndexer struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingIndexer) IndexTranscript(_ context.Context, itemID, _ string, _ *transcript.Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, itemID)
	return nil
}

func (r *recordingIndexer) indexed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func startWatcher(t *testing.T) (*watcher.Watcher, *queue.Store, string, *recordingIndexer) {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithFileReadyBudget(5, 20))
	store := testsupport.MustOpenStore(t, cfg)
	idx := &recordingIndexer{}

	w := watcher.New(cfg, store, idx, newImporter(cfg, store), logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return w, store, cfg.Watches[0].Path, idx
}

func waitForItem(t *testing.T, store *queue.Store, fileName string, status queue.Status) *queue.Item {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		item, err := store.GetByFileName(context.Background(), fileName)
		if err != nil {
			t.Fatalf("GetByFileName: %v", err)
		}
		if item != nil && item.Status == status {
			return item
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("item %s never reached %s", fileName, status)
	return nil
}

func TestStartupScanImportsExistingFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFileReadyBudget(5, 20))
	store := testsupport.MustOpenStore(t, cfg)
	root := cfg.Watches[0].Path

	testsupport.WriteFile(t, filepath.Join(root, "preexisting.mkv"), 2048)
	testsupport.WriteFile(t, filepath.Join(root, "nested", "deeper.mp4"), 2048)
	testsupport.WriteFile(t, filepath.Join(root, "notes.txt"), 128)

	w := watcher.New(cfg, store, nil, newImporter(cfg, store), logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitForItem(t, store, "preexisting.mkv", queue.StatusQueued)
	waitForItem(t, store, "deeper.mp4", queue.StatusQueued)

	if item, _ := store.GetByFileName(context.Background(), "notes.txt"); item != nil {
		t.Fatal("non-media file must not be imported")
	}
}

func TestLiveEventQueuesNewMedia(t *testing.T) {
	_, store, root, _ := startWatcher(t)

	testsupport.WriteFile(t, filepath.Join(root, "dropped.mkv"), 4096)
	waitForItem(t, store, "dropped.mkv", queue.StatusQueued)
}

func TestDuplicateEventsYieldOneItem(t *testing.T) {
	_, store, root, _ := startWatcher(t)

	path := filepath.Join(root, "twice.mkv")
	testsupport.WriteFile(t, path, 1024)
	waitForItem(t, store, "twice.mkv", queue.StatusQueued)

	// Rewriting the same file fires more events but must not create a
	// second item or disturb the existing one.
	testsupport.WriteFile(t, path, 1024)
	time.Sleep(300 * time.Millisecond)

	items, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	count := 0
	for _, item := range items {
		if item.FileName == "twice.mkv" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one item, found %d", count)
	}
}

func TestEmptyFileIsNotImported(t *testing.T) {
	_, store, root, _ := startWatcher(t)

	path := filepath.Join(root, "empty.mkv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	if item, _ := store.GetByFileName(context.Background(), "empty.mkv"); item != nil {
		t.Fatal("zero-byte file must be treated as not ready")
	}
}

func TestTranscriptDropIndexesDirectly(t *testing.T) {
	_, store, root, idx := startWatcher(t)

	media := filepath.Join(root, "talk.mkv")
	testsupport.WriteFile(t, media, 2048)
	item := waitForItem(t, store, "talk.mkv", queue.StatusQueued)

	dropPath := filepath.Join(root, transcript.DirName, item.ID+".json")
	testsupport.WriteTranscriptJSON(t, dropPath, "externally transcribed")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, id := range idx.indexed() {
			if id == item.ID {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("transcript drop never reached the indexer")
}

func TestUnknownTranscriptNameIgnored(t *testing.T) {
	_, _, root, idx := startWatcher(t)

	dropPath := filepath.Join(root, transcript.DirName, "not-an-item-id.json")
	testsupport.WriteTranscriptJSON(t, dropPath, "orphan transcript")
	time.Sleep(300 * time.Millisecond)

	if len(idx.indexed()) != 0 {
		t.Fatalf("orphan transcript must be ignored, indexed %v", idx.indexed())
	}
}
