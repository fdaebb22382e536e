// Package index maintains a searchable view of finished transcripts. It
// shares the queue database and is strictly best-effort: callers treat a
// failed index write as a warning, never as a pipeline failure.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcript_search (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id TEXT NOT NULL,
    media_path TEXT NOT NULL,
    segment_index INTEGER NOT NULL,
    start_seconds REAL NOT NULL DEFAULT 0,
    end_seconds REAL NOT NULL DEFAULT 0,
    content TEXT NOT NULL,
    indexed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_search_item ON transcript_search(item_id);
`

// fullTextRow marks the row holding the joined transcript text rather than a
// single segment.
const fullTextRow = -1

// Store writes and queries the transcript_search table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore prepares the search table inside the shared database.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create transcript_search table: %w", err)
	}
	return &Store{db: db, logger: logging.NewComponentLogger(logger, "index")}, nil
}

// Hit is a single search result.
type Hit struct {
	ItemID       string
	MediaPath    string
	SegmentIndex int
	StartSeconds float64
	EndSeconds   float64
	Content      string
}

// IndexTranscript replaces any previous rows for the item with the current
// transcript contents: one full-text row plus one row per segment.
func (s *Store) IndexTranscript(ctx context.Context, itemID, mediaPath string, tr *transcript.Transcript) error {
	if itemID == "" || tr == nil {
		return fmt.Errorf("index transcript: missing item id or transcript")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_search WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear previous index rows: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	const insert = `
INSERT INTO transcript_search (item_id, media_path, segment_index, start_seconds, end_seconds, content, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := tx.ExecContext(ctx, insert, itemID, mediaPath, fullTextRow, 0, tr.Duration(), tr.Text, now); err != nil {
		return fmt.Errorf("insert full text row: %w", err)
	}
	for i, seg := range tr.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, insert, itemID, mediaPath, i, seg.Start, seg.End, text, now); err != nil {
			return fmt.Errorf("insert segment row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index transaction: %w", err)
	}
	services.ContextLogger(services.WithItemID(ctx, itemID), s.logger).Debug("transcript indexed",
		logging.Int("segments", len(tr.Segments)))
	return nil
}

// Search returns segment rows whose content matches the query. Matching is a
// case-insensitive substring scan, enough for the operator surface this
// serves.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 25
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT item_id, media_path, segment_index, start_seconds, end_seconds, content
FROM transcript_search
WHERE segment_index != ? AND content LIKE ? ESCAPE '\'
ORDER BY item_id, segment_index
LIMIT ?`, fullTextRow, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search transcripts: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ItemID, &h.MediaPath, &h.SegmentIndex, &h.StartSeconds, &h.EndSeconds, &h.Content); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Remove drops all index rows for the item.
func (s *Store) Remove(ctx context.Context, itemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transcript_search WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("remove index rows: %w", err)
	}
	return nil
}

// escapeLike neutralizes LIKE metacharacters. The escape character itself
// must be handled too, or a literal backslash in the query forms a dangling
// escape sequence.
func escapeLike(query string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(query)
}
