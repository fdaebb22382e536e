// Package ffmpeg shells out to ffmpeg for lightweight media byproducts.
// Today that is thumbnail frames; the command runner is injectable so tests
// never spawn real processes.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"scribe/internal/services"
)

// DefaultCommand is the ffmpeg binary used when none is configured.
const DefaultCommand = "ffmpeg"

// ThumbnailConfig controls frame selection and sizing.
type ThumbnailConfig struct {
	// Binary is the ffmpeg CLI to invoke.
	Binary string
	// SeekSeconds is how far into the file to grab the frame.
	SeekSeconds int
	// Width is the output width in pixels; height keeps the aspect ratio.
	Width int
}

// Thumbnailer produces a single preview frame per media file.
type Thumbnailer struct {
	cfg           ThumbnailConfig
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewThumbnailer creates a thumbnailer with the given configuration.
func NewThumbnailer(cfg ThumbnailConfig) *Thumbnailer {
	if cfg.Binary == "" {
		cfg.Binary = DefaultCommand
	}
	if cfg.SeekSeconds < 0 {
		cfg.SeekSeconds = 0
	}
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	return &Thumbnailer{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (t *Thumbnailer) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	t.commandRunner = runner
}

// Generate writes a JPEG frame next to the media file and returns its path.
// The output lands in a thumbnails/ sibling directory mirroring how
// transcripts are stored.
func (t *Thumbnailer) Generate(ctx context.Context, mediaPath string) (string, error) {
	if mediaPath == "" {
		return "", services.Wrap(services.ErrValidation, "ffmpeg", "thumbnail", "media path required", nil)
	}

	dest := ThumbnailPath(mediaPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "ffmpeg", "thumbnail", "ensure thumbnail dir", err)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmt.Sprintf("%d", t.cfg.SeekSeconds),
		"-i", mediaPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", t.cfg.Width),
		dest,
	}
	if err := t.run(ctx, t.cfg.Binary, args...); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "ffmpeg", "thumbnail", "frame extraction failed", err)
	}
	return dest, nil
}

func (t *Thumbnailer) run(ctx context.Context, name string, args ...string) error {
	if t.commandRunner != nil {
		return t.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ThumbnailPath returns the canonical thumbnail location for a media file:
// a thumbnails/ directory beside it, keyed by the media base name.
func ThumbnailPath(mediaPath string) string {
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	return filepath.Join(filepath.Dir(mediaPath), "thumbnails", base+".jpg")
}
