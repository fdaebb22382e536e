package queue

import (
	"context"
	"fmt"
	"time"
)

// TryClaim atomically transitions an item from expected to next. The return
// reports whether this caller won the transition; a false result with a nil
// error means another actor got there first (or the item moved on) and the
// caller should skip the item silently.
func (s *Store) TryClaim(ctx context.Context, id string, expected, next Status) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		next,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		expected,
	)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetStatus writes a status unconditionally, except that an existing
// terminal status is never replaced. Terminal writes use this path so a
// cancelled pipeline can still record its outcome.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE media_items SET status = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		status,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// SetFailure records a failed terminal status with its error detail.
func (s *Store) SetFailure(ctx context.Context, id string, message string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE media_items
         SET status = ?, error_message = ?, progress_stage = 'Failed',
             progress_message = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusFailed,
		message,
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("set failure: %w", err)
	}
	return nil
}

// SetProgress updates the observability fields for an in-flight item.
func (s *Store) SetProgress(ctx context.Context, id, stage, message string, percent float64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE media_items
         SET progress_stage = ?, progress_message = ?, progress_percent = ?, updated_at = ?
         WHERE id = ?`,
		stage,
		nullableString(message),
		percent,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// RequeueStuck returns items left in an in-flight status by a previous
// crash back to queued. Run once at daemon startup before the monitor polls.
func (s *Store) RequeueStuck(ctx context.Context) (int64, error) {
	processing := ProcessingStatuses()
	placeholders := makePlaceholders(len(processing))
	args := make([]any, 0, len(processing)+2)
	args = append(args, StatusQueued, time.Now().UTC().Format(time.RFC3339Nano))
	for _, status := range processing {
		args = append(args, status)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_items
         SET status = ?, progress_stage = 'Requeued after restart',
             progress_percent = 0, progress_message = NULL, updated_at = ?
         WHERE status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stuck items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed items back to queued for reprocessing. With no
// ids every failed item is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE media_items
            SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
                progress_message = NULL, error_message = NULL, updated_at = ?
            WHERE status = ?`,
			StatusQueued,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusQueued, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_items
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, updated_at = ?
        WHERE id IN (`+placeholders+`) AND status = ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes only completed items.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media_items WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all items.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media_items`)
	if err != nil {
		return 0, fmt.Errorf("clear items: %w", err)
	}
	return res.RowsAffected()
}
