package services_test

import (
	"errors"
	"strings"
	"testing"

	"scribe/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("exit status 1")
	err := services.Wrap(services.ErrExternalTool, "transcriber", "run whisper", "process exited", cause)

	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatal("expected ErrExternalTool tag")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to remain in chain")
	}
	if !strings.Contains(err.Error(), "transcriber: run whisper: process exited") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "store", "poll", "", nil)
	if !services.IsTransient(err) {
		t.Fatal("expected transient tag when marker is nil")
	}
}

func TestWrapWithoutDetailUsesFallback(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "", "", "", nil)
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message: %v", err)
	}
}
