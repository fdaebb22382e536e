// Package transcript defines the transcript JSON format scribe persists and
// indexes, plus the structural validity check used for verification.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the subfolder under a watched root where transcripts live,
// one file per media item named <item-id>.json.
const DirName = "transcripts"

// Segment is one timed span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the persisted output of a transcription run.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Load reads and parses a transcript file.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var tr Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return &tr, nil
}

// Save writes the transcript atomically via a temp file.
func (t *Transcript) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp transcript: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp transcript: %w", err)
	}
	return nil
}

// Validate checks the structural invariants a trustworthy transcript must
// hold: non-empty primary text and at least one segment.
func (t *Transcript) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return errors.New("transcript text is empty")
	}
	if len(t.Segments) == 0 {
		return errors.New("transcript has no segments")
	}
	return nil
}

// Duration returns the end time of the last segment in seconds.
func (t *Transcript) Duration() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// JoinSegments rebuilds the primary text from segment texts. Used when a
// transcriber emits segments without a combined text field.
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// SiblingPath returns the conventional transcript location for a media file:
// a transcripts/ subfolder next to the file, keyed by the media base name.
func SiblingPath(mediaPath string) string {
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	return filepath.Join(filepath.Dir(mediaPath), DirName, base+".json")
}
