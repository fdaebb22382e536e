package services_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"scribe/internal/services"
)

func TestContextAnnotations(t *testing.T) {
	ctx := context.Background()

	if _, ok := services.ItemIDFromContext(ctx); ok {
		t.Fatal("bare context must carry no item id")
	}

	ctx = services.WithItemID(ctx, "item-1")
	ctx = services.WithStage(ctx, "transcription")
	ctx = services.WithRequestID(ctx, "req-9")

	if id, ok := services.ItemIDFromContext(ctx); !ok || id != "item-1" {
		t.Fatalf("item id = %q, %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcription" {
		t.Fatalf("stage = %q, %v", stage, ok)
	}
	if reqID, ok := services.RequestIDFromContext(ctx); !ok || reqID != "req-9" {
		t.Fatalf("request id = %q, %v", reqID, ok)
	}
}

func TestEmptyAnnotationsAreNoops(t *testing.T) {
	ctx := services.WithItemID(context.Background(), "")
	if _, ok := services.ItemIDFromContext(ctx); ok {
		t.Fatal("empty item id must not be stored")
	}
}

func TestContextLoggerCarriesAnnotations(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := services.WithItemID(context.Background(), "item-7")
	ctx = services.WithStage(ctx, "indexing")
	ctx = services.WithRequestID(ctx, "req-3")
	services.ContextLogger(ctx, base).Info("annotated")

	out := buf.String()
	for _, want := range []string{"item_id=item-7", "stage=indexing", "request_id=req-3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %s: %s", want, out)
		}
	}

	buf.Reset()
	services.ContextLogger(context.Background(), base).Info("bare")
	if strings.Contains(buf.String(), "item_id") {
		t.Fatalf("bare context must add nothing: %s", buf.String())
	}
}
