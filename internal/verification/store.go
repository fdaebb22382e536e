package verification

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"scribe/internal/logging"
	"scribe/internal/transcript"
)

// StatusCompleted is the record status that, together with IsVerified,
// marks an output artifact as trustworthy.
const StatusCompleted = "completed"

// minOutputBytes rejects trivially-small output files before parsing them.
// A transcript below this size cannot hold a segment worth trusting.
const minOutputBytes = 32

// Record asserts what is known about one content hash.
type Record struct {
	FileHash        string    `json:"FileHash"`
	FileName        string    `json:"FileName"`
	FilePath        string    `json:"FilePath"`
	TranscriptionID string    `json:"TranscriptionId"`
	OutputPath      string    `json:"OutputPath"`
	LastAttempt     time.Time `json:"LastAttempt"`
	AttemptCount    int       `json:"AttemptCount"`
	Status          string    `json:"Status"`
	IsVerified      bool      `json:"IsVerified"`
}

// Trusted reports whether the record vouches for its output artifact.
func (r Record) Trusted() bool {
	return strings.EqualFold(r.Status, StatusCompleted) && r.IsVerified
}

// Store reads and writes hash-keyed records under a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir. If dir is empty every operation
// becomes a no-op and checks report "not processed".
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "verification"),
	}
}

// ComputeHash returns the hex SHA-256 of the file contents. The hash depends
// only on bytes, never on name or timestamps.
func ComputeHash(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Lookup returns the record for a content hash if one exists.
func (s *Store) Lookup(contentHash string) (Record, bool) {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" || s.dir == "" {
		return Record{}, false
	}
	record, err := s.load(contentHash)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to load verification record",
				logging.String("hash", contentHash),
				logging.Error(err))
		}
		return Record{}, false
	}
	return record, true
}

// IsAlreadyProcessed decides whether the file behind contentHash has a
// trustworthy output already. A trusted record wins outright; otherwise the
// expected output artifact is checked structurally on disk. Any I/O or
// parse error means "reprocess".
func (s *Store) IsAlreadyProcessed(filePath, contentHash string) bool {
	record, found := s.Lookup(contentHash)
	if found && record.Trusted() {
		return true
	}

	outputPath := record.OutputPath
	if outputPath == "" {
		outputPath = transcript.SiblingPath(filePath)
	}
	return s.outputIsValid(outputPath)
}

// Register writes or replaces the record for a hash, bumping the attempt
// count when one already exists. Failures only cost a future skip, so
// callers log and move on.
func (s *Store) Register(filePath, contentHash, transcriptionID, outputPath, status string) error {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return errors.New("content hash cannot be empty")
	}
	if s.dir == "" {
		return nil
	}

	return s.withLock(contentHash, func() error {
		record, err := s.load(contentHash)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		record.FileHash = contentHash
		record.FileName = filepath.Base(filePath)
		record.FilePath = filePath
		if transcriptionID != "" {
			record.TranscriptionID = transcriptionID
		}
		if outputPath != "" {
			record.OutputPath = outputPath
		}
		record.Status = status
		record.LastAttempt = time.Now().UTC()
		record.AttemptCount++
		return s.save(record)
	})
}

// UpdateStatus merges status, verification flag, and transcription id into
// an existing record, preserving the historical fields. A missing record is
// created so a completion is never lost.
func (s *Store) UpdateStatus(contentHash, transcriptionID, status string, isVerified bool) error {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return errors.New("content hash cannot be empty")
	}
	if s.dir == "" {
		return nil
	}

	return s.withLock(contentHash, func() error {
		record, err := s.load(contentHash)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		record.FileHash = contentHash
		if transcriptionID != "" {
			record.TranscriptionID = transcriptionID
		}
		record.Status = status
		record.IsVerified = isVerified
		record.LastAttempt = time.Now().UTC()
		return s.save(record)
	})
}

func (s *Store) outputIsValid(outputPath string) bool {
	if outputPath == "" {
		return false
	}
	info, err := os.Stat(outputPath)
	if err != nil || info.IsDir() {
		return false
	}
	if info.Size() < minOutputBytes {
		return false
	}
	tr, err := transcript.Load(outputPath)
	if err != nil {
		return false
	}
	return tr.Validate() == nil
}

func (s *Store) recordPath(contentHash string) string {
	return filepath.Join(s.dir, contentHash+".json")
}

func (s *Store) load(contentHash string) (Record, error) {
	data, err := os.ReadFile(s.recordPath(contentHash))
	if err != nil {
		return Record{}, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parse verification record: %w", err)
	}
	return record, nil
}

// save writes the record atomically via temp file and rename.
func (s *Store) save(record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create verification directory: %w", err)
	}
	path := s.recordPath(record.FileHash)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp record: %w", err)
	}
	return nil
}

// withLock serializes read-modify-write cycles across processes sharing
// the verification directory. A single directory-level lock file is used
// instead of one per record: unlinking a per-record lock after release
// races against a peer that already opened the old inode, and keeping
// them around litters the directory with one stale file per hash.
func (s *Store) withLock(contentHash string, fn func() error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create verification directory: %w", err)
	}
	lock := flock.New(filepath.Join(s.dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock verification store: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release verification lock",
				logging.String("hash", contentHash),
				logging.Error(err))
		}
	}()
	return fn()
}
