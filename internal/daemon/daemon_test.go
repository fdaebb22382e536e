package daemon_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/daemon"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/testsupport"
)

func TestStartRequeuesStrandedItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	// A previous run died mid-processing.
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewQueuedItem(t, store, filepath.Join(t.TempDir(), "stranded.mkv"))
	claimed, err := store.TryClaim(context.Background(), item.ID, queue.StatusQueued, queue.StatusProcessing)
	if err != nil || !claimed {
		t.Fatalf("claim: %v %v", claimed, err)
	}
	store.Close()

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The requeued item becomes visible as queued before any monitor claim
	// can finish processing a file that does not exist.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := d.Store().GetByID(context.Background(), item.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != queue.StatusProcessing {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	d.Stop()
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start must fail")
	}
	d.Stop()

	// Stop after stop is safe.
	d.Stop()
}
