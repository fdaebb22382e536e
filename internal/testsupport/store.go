package testsupport

import (
	"context"
	"testing"

	"scribe/internal/config"
	"scribe/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem inserts a media item for tests using the provided store.
func NewItem(t testing.TB, store *queue.Store, filePath string) *queue.Item {
	t.Helper()

	item, err := store.Insert(context.Background(), filePath)
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return item
}

// NewQueuedItem inserts a media item and moves it to queued.
func NewQueuedItem(t testing.TB, store *queue.Store, filePath string) *queue.Item {
	t.Helper()

	item := NewItem(t, store, filePath)
	claimed, err := store.TryClaim(context.Background(), item.ID, queue.StatusNotStarted, queue.StatusQueued)
	if err != nil || !claimed {
		t.Fatalf("queue item: claimed=%v err=%v", claimed, err)
	}
	item.Status = queue.StatusQueued
	return item
}
