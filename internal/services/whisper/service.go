package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"scribe/internal/services"
	"scribe/internal/transcript"
)

// Command names for external tools.
const (
	DefaultCommand       = "whisper"
	DefaultFFmpegCommand = "ffmpeg"
	DefaultModel         = "base"
)

// Phase identifies the step of a transcription run currently executing.
// Callers map these onto their own status vocabulary.
type Phase string

const (
	PhaseExtracting      Phase = "extracting"
	PhaseRemovingSilence Phase = "removing_silence"
	PhaseTranscribing    Phase = "transcribing"
	PhasePostprocessing  Phase = "postprocessing"
)

// ProgressFunc receives phase transitions and coarse completion estimates
// while Transcribe runs. fraction is in [0, 1] relative to the whole run.
type ProgressFunc func(phase Phase, fraction float64, message string)

// Config captures runtime settings for transcription operations.
type Config struct {
	// Binary is the whisper CLI to invoke.
	Binary string
	// FFmpegBinary is used for audio extraction and silence removal.
	FFmpegBinary string
	// Model is the whisper model name (e.g. "base", "large-v3").
	Model string
	// Language forces a transcription language; empty means auto-detect.
	Language string
	// RemoveSilence runs an ffmpeg silenceremove pass before transcribing.
	RemoveSilence bool
}

// Result describes a completed transcription.
type Result struct {
	// TranscriptPath is where the normalized transcript JSON was written.
	TranscriptPath string
	// JobID uniquely identifies this transcription run.
	JobID string
	// Transcript is the parsed result, ready for indexing.
	Transcript *transcript.Transcript
}

// Service runs whisper transcriptions through external commands.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a transcription service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.Binary == "" {
		cfg.Binary = DefaultCommand
	}
	if cfg.FFmpegBinary == "" {
		cfg.FFmpegBinary = DefaultFFmpegCommand
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

// Transcribe extracts audio from mediaPath, runs the whisper CLI on it and
// writes the normalized transcript next to the media file. Intermediate
// audio lives under workDir and is removed on success.
func (s *Service) Transcribe(ctx context.Context, mediaPath, workDir string, onProgress ProgressFunc) (Result, error) {
	var result Result
	if onProgress == nil {
		onProgress = func(Phase, float64, string) {}
	}
	if mediaPath == "" {
		return result, services.Wrap(services.ErrValidation, "whisper", "transcribe", "media path required", nil)
	}
	if workDir == "" {
		workDir = filepath.Dir(mediaPath)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "whisper", "transcribe", "ensure work dir", err)
	}

	result.JobID = uuid.NewString()
	baseName := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	audioPath := filepath.Join(workDir, baseName+".wav")

	onProgress(PhaseExtracting, 0.0, "extracting audio")
	if err := s.extractAudio(ctx, mediaPath, audioPath); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "whisper", "extract-audio", "ffmpeg audio extraction failed", err)
	}
	defer os.Remove(audioPath)

	if s.cfg.RemoveSilence {
		onProgress(PhaseRemovingSilence, 0.2, "removing silence")
		trimmed := filepath.Join(workDir, baseName+".trimmed.wav")
		if err := s.removeSilence(ctx, audioPath, trimmed); err != nil {
			return result, services.Wrap(services.ErrExternalTool, "whisper", "remove-silence", "ffmpeg silence removal failed", err)
		}
		defer os.Remove(trimmed)
		audioPath = trimmed
	}

	onProgress(PhaseTranscribing, 0.3, "running whisper")
	if err := s.run(ctx, s.cfg.Binary, s.buildArgs(audioPath, workDir)...); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "whisper", "transcribe", "whisper run failed", err)
	}

	onProgress(PhasePostprocessing, 0.9, "writing transcript")
	rawPath := filepath.Join(workDir, strings.TrimSuffix(filepath.Base(audioPath), ".wav")+".json")
	tr, err := loadRawOutput(rawPath)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "whisper", "parse-output", "whisper produced no usable output", err)
	}
	defer os.Remove(rawPath)

	dest := transcript.SiblingPath(mediaPath)
	if err := tr.Save(dest); err != nil {
		return result, services.Wrap(services.ErrTransient, "whisper", "save-transcript", "write transcript file", err)
	}

	result.TranscriptPath = dest
	result.Transcript = tr
	return result, nil
}

// buildArgs constructs the whisper CLI arguments.
func (s *Service) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", s.cfg.Model,
		"--output_dir", outputDir,
		"--output_format", "json",
		"--task", "transcribe",
		"--verbose", "False",
	}
	if s.cfg.Language != "" {
		args = append(args, "--language", s.cfg.Language)
	}
	return args
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// rawSegment is a transcribed segment as the whisper CLI emits it.
type rawSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type rawPayload struct {
	Language string       `json:"language"`
	Text     string       `json:"text"`
	Segments []rawSegment `json:"segments"`
}

// loadRawOutput converts the whisper CLI JSON into the normalized transcript
// format. Empty segments are dropped; a transcript with nothing left is an
// error so callers never persist a hollow result.
func loadRawOutput(jsonPath string) (*transcript.Transcript, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload rawPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}

	tr := &transcript.Transcript{Language: payload.Language}
	for _, seg := range payload.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		tr.Segments = append(tr.Segments, transcript.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}
	tr.Text = strings.TrimSpace(payload.Text)
	if tr.Text == "" {
		tr.Text = transcript.JoinSegments(tr.Segments)
	}
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	return tr, nil
}
