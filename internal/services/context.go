package services

import (
	"context"
	"log/slog"

	"scribe/internal/logging"
)

type contextKey string

const (
	itemIDKey    contextKey = "item_id"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithItemID annotates context with the media item identifier.
func WithItemID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the media item identifier if present.
func ItemIDFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(itemIDKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(stageKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a per-run correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(requestIDKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// ContextLogger returns the logger widened with whatever annotations
// the context carries.
func ContextLogger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id, ok := ItemIDFromContext(ctx); ok {
		logger = logger.With(logging.String(logging.FieldItemID, id))
	}
	if stage, ok := StageFromContext(ctx); ok {
		logger = logger.With(logging.String(logging.FieldStage, stage))
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		logger = logger.With(logging.String(logging.FieldRequestID, id))
	}
	return logger
}
