package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const itemColumns = "id, file_path, file_name, title, status, error_message, content_hash, transcript_path, thumbnail_path, progress_stage, progress_percent, progress_message, created_at, updated_at"

// Insert creates a new media item for a discovered file. Items start at
// not_started; ingestion queues them through TryClaim so every status change
// flows through the same transition path.
func (s *Store) Insert(ctx context.Context, filePath string) (*Item, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, errors.New("file path is required")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()
	fileName := filepath.Base(filePath)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO media_items (
            id, file_path, file_name, title, status,
            progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		filePath,
		fileName,
		inferTitleFromPath(filePath),
		StatusNotStarted,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert media item: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a media item by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM media_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetByFileName returns the most recent item matching a file name.
func (s *Store) GetByFileName(ctx context.Context, fileName string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM media_items WHERE file_name = ? ORDER BY created_at DESC LIMIT 1`,
		fileName,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by file name: %w", err)
	}
	return item, nil
}

// ItemsByStatus returns items matching a status ordered by creation time.
func (s *Store) ItemsByStatus(ctx context.Context, status Status) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM media_items WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// List returns items filtered by status set (or all items when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM media_items`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// Update persists mutable metadata for an existing item. Status is
// deliberately excluded; status changes go through the transition calls.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE media_items
         SET file_path = ?, file_name = ?, title = ?, content_hash = ?,
             transcript_path = ?, thumbnail_path = ?, updated_at = ?
         WHERE id = ?`,
		item.FilePath,
		item.FileName,
		nullableString(item.Title),
		nullableString(item.ContentHash),
		nullableString(item.TranscriptPath),
		nullableString(item.ThumbnailPath),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Stats returns item counts grouped into lifecycle buckets.
func (s *Store) Stats(ctx context.Context) (StatsSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM media_items GROUP BY status`)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	var summary StatsSummary
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return StatsSummary{}, err
		}
		summary.Total += count
		switch status {
		case StatusNotStarted:
			summary.NotStarted += count
		case StatusQueued:
			summary.Queued += count
		case StatusCompleted:
			summary.Completed += count
		case StatusFailed:
			summary.Failed += count
		case StatusCancelled:
			summary.Cancelled += count
		default:
			if IsProcessingStatus(status) {
				summary.Processing += count
			}
		}
	}
	return summary, rows.Err()
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              string
		filePath        string
		fileName        string
		title           sql.NullString
		statusStr       string
		errorMessage    sql.NullString
		contentHash     sql.NullString
		transcriptPath  sql.NullString
		thumbnailPath   sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&filePath,
		&fileName,
		&title,
		&statusStr,
		&errorMessage,
		&contentHash,
		&transcriptPath,
		&thumbnailPath,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		FilePath:        filePath,
		FileName:        fileName,
		Title:           title.String,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
		ContentHash:     contentHash.String,
		TranscriptPath:  transcriptPath.String,
		ThumbnailPath:   thumbnailPath.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

var titleCaser = cases.Title(language.English)

func inferTitleFromPath(path string) string {
	base := strings.TrimSpace(filepath.Base(path))
	if base == "" {
		return ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", ".", " ").Replace(base)
	cleaned := strings.Join(strings.Fields(base), " ")
	if cleaned == "" {
		return ""
	}
	return titleCaser.String(cleaned)
}
