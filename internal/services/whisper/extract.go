package whisper

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// extractAudio pulls the default audio stream from the source into a mono
// 16kHz WAV file, the input format whisper expects.
func (s *Service) extractAudio(ctx context.Context, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.cfg.FFmpegBinary, args...)
	}
	cmd := exec.CommandContext(ctx, s.cfg.FFmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// removeSilence rewrites the WAV with leading, trailing and long internal
// silences stripped. Less dead air means shorter whisper runs.
func (s *Service) removeSilence(ctx context.Context, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-af", "silenceremove=start_periods=1:start_silence=0.5:start_threshold=-40dB:stop_periods=-1:stop_silence=1.0:stop_threshold=-40dB",
		"-c:a", "pcm_s16le",
		dest,
	}
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.cfg.FFmpegBinary, args...)
	}
	cmd := exec.CommandContext(ctx, s.cfg.FFmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg silenceremove: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
