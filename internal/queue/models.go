package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a media item.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"

	// Transcription sub-phases. All count as in-flight processing; a local
	// transcriber reports the extraction and recognition phases, a remote one
	// additionally reports the upload/wait/download phases.
	StatusExtracting              Status = "extracting"
	StatusUploadingAudio          Status = "uploading_audio"
	StatusWaitingForTranscription Status = "waiting_for_transcription"
	StatusTranscribing            Status = "transcribing"
	StatusDownloadingResults      Status = "downloading_results"
	StatusPreprocessing           Status = "preprocessing"
	StatusPostprocessing          Status = "postprocessing"
	StatusRemovingSilence         Status = "removing_silence"
)

var allStatuses = []Status{
	StatusNotStarted,
	StatusQueued,
	StatusProcessing,
	StatusExtracting,
	StatusUploadingAudio,
	StatusWaitingForTranscription,
	StatusTranscribing,
	StatusDownloadingResults,
	StatusPreprocessing,
	StatusPostprocessing,
	StatusRemovingSilence,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = []Status{StatusCompleted, StatusFailed, StatusCancelled}

var processingStatuses = map[Status]struct{}{
	StatusProcessing:              {},
	StatusExtracting:              {},
	StatusUploadingAudio:          {},
	StatusWaitingForTranscription: {},
	StatusTranscribing:            {},
	StatusDownloadingResults:      {},
	StatusPreprocessing:           {},
	StatusPostprocessing:          {},
	StatusRemovingSilence:         {},
}

// Item represents a media item persisted in SQLite.
type Item struct {
	ID              string
	FilePath        string
	FileName        string
	Title           string
	Status          Status
	ErrorMessage    string
	ContentHash     string
	TranscriptPath  string
	ThumbnailPath   string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatsSummary counts items grouped into the key lifecycle buckets.
type StatsSummary struct {
	Total      int
	NotStarted int
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// TerminalStatuses returns the statuses that accept no further transitions.
func TerminalStatuses() []Status {
	cp := make([]Status, len(terminalStatuses))
	copy(cp, terminalStatuses)
	return cp
}

// ProcessingStatuses returns every in-flight status, sub-phases included.
func ProcessingStatuses() []Status {
	out := make([]Status, 0, len(processingStatuses))
	for _, status := range allStatuses {
		if _, ok := processingStatuses[status]; ok {
			out = append(out, status)
		}
	}
	return out
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status accepts no further transitions.
func IsTerminal(status Status) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsProcessing returns true when the item's status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// IsTerminal returns true when the item has reached a final status.
func (i Item) IsTerminal() bool {
	return IsTerminal(i.Status)
}
