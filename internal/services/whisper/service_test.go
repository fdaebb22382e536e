package whisper_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/services"
	"scribe/internal/services/whisper"
	"scribe/internal/testsupport"
	"scribe/internal/transcript"
)

const fakeWhisperJSON = `{
  "language": "en",
  "text": "hello world this is a test",
  "segments": [
    {"start": 0, "end": 2.5, "text": " hello world"},
    {"start": 2.5, "end": 5, "text": "this is a test "}
  ]
}`

// fakeRunner records invocations and writes the whisper output file when the
// whisper binary is invoked, mimicking the real CLI side effect.
type fakeRunner struct {
	calls  [][]string
	failOn string
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.failOn != "" && name == f.failOn {
		return errors.New("boom")
	}
	if name != "whisper-test" {
		return nil
	}
	// args[0] is the audio path; the CLI writes <base>.json into --output_dir.
	audio := args[0]
	outputDir := flagValue(args, "--output_dir")
	base := strings.TrimSuffix(filepath.Base(audio), ".wav")
	return os.WriteFile(filepath.Join(outputDir, base+".json"), []byte(fakeWhisperJSON), 0o644)
}

func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newService(runner *fakeRunner, removeSilence bool) *whisper.Service {
	svc := whisper.NewService(whisper.Config{
		Binary:        "whisper-test",
		FFmpegBinary:  "ffmpeg-test",
		Model:         "base",
		Language:      "en",
		RemoveSilence: removeSilence,
	})
	svc.WithCommandRunner(runner.run)
	return svc
}

func TestTranscribeProducesSiblingTranscript(t *testing.T) {
	base := t.TempDir()
	media := filepath.Join(base, "talk.mkv")
	testsupport.WriteFile(t, media, 1024)

	runner := &fakeRunner{}
	svc := newService(runner, false)

	var phases []whisper.Phase
	result, err := svc.Transcribe(context.Background(), media, t.TempDir(), func(phase whisper.Phase, _ float64, _ string) {
		phases = append(phases, phase)
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.JobID == "" {
		t.Fatal("expected a job id")
	}
	if result.TranscriptPath != transcript.SiblingPath(media) {
		t.Fatalf("transcript written to %s", result.TranscriptPath)
	}

	tr, err := transcript.Load(result.TranscriptPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tr.Segments) != 2 || tr.Segments[0].Text != "hello world" {
		t.Fatalf("unexpected transcript: %#v", tr)
	}
	if tr.Text != "hello world this is a test" {
		t.Fatalf("unexpected text: %q", tr.Text)
	}

	want := []whisper.Phase{whisper.PhaseExtracting, whisper.PhaseTranscribing, whisper.PhasePostprocessing}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v", phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phase %d = %s, want %s", i, phases[i], want[i])
		}
	}
}

func TestTranscribeRemoveSilenceAddsPass(t *testing.T) {
	base := t.TempDir()
	media := filepath.Join(base, "talk.mkv")
	testsupport.WriteFile(t, media, 1024)

	runner := &fakeRunner{}
	svc := newService(runner, true)

	var sawSilencePhase bool
	_, err := svc.Transcribe(context.Background(), media, t.TempDir(), func(phase whisper.Phase, _ float64, _ string) {
		if phase == whisper.PhaseRemovingSilence {
			sawSilencePhase = true
		}
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !sawSilencePhase {
		t.Fatal("expected silence removal phase")
	}

	var silencePass bool
	for _, call := range runner.calls {
		if call[0] == "ffmpeg-test" && flagValue(call[1:], "-af") != "" {
			silencePass = true
		}
	}
	if !silencePass {
		t.Fatal("expected an ffmpeg silenceremove invocation")
	}
}

func TestTranscribeToolFailureIsExternalToolError(t *testing.T) {
	base := t.TempDir()
	media := filepath.Join(base, "talk.mkv")
	testsupport.WriteFile(t, media, 1024)

	runner := &fakeRunner{failOn: "ffmpeg-test"}
	svc := newService(runner, false)

	_, err := svc.Transcribe(context.Background(), media, t.TempDir(), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestTranscribeRejectsEmptyOutput(t *testing.T) {
	base := t.TempDir()
	media := filepath.Join(base, "talk.mkv")
	testsupport.WriteFile(t, media, 1024)

	runner := &fakeRunner{}
	svc := whisper.NewService(whisper.Config{Binary: "whisper-empty", FFmpegBinary: "ffmpeg-test"})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		if name == "whisper-empty" {
			outputDir := flagValue(args, "--output_dir")
			base := strings.TrimSuffix(filepath.Base(args[0]), ".wav")
			return os.WriteFile(filepath.Join(outputDir, base+".json"), []byte(`{"text":"","segments":[]}`), 0o644)
		}
		return runner.run(ctx, name, args...)
	})

	_, err := svc.Transcribe(context.Background(), media, t.TempDir(), nil)
	if err == nil {
		t.Fatal("empty whisper output must not become a transcript")
	}
}
