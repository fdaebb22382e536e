package config

const (
	defaultStagingDir      = "~/.local/share/scribe/staging"
	defaultLogDir          = "~/.local/share/scribe/logs"
	defaultVerificationDir = "~/.local/share/scribe/verification"

	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultShutdownTimeout    = 30
	defaultFileReadyRetries   = 10
	defaultFileReadyDelayMS   = 500

	defaultTranscriberBinary = "whisper"
	defaultFFmpegBinary      = "ffmpeg"
	defaultTranscriberModel  = "base"

	defaultThumbnailSeekSeconds = 10
	defaultThumbnailWidth       = 640

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:      defaultStagingDir,
			LogDir:          defaultLogDir,
			VerificationDir: defaultVerificationDir,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			ShutdownTimeout:    defaultShutdownTimeout,
			FileReadyRetries:   defaultFileReadyRetries,
			FileReadyDelayMS:   defaultFileReadyDelayMS,
		},
		Transcriber: Transcriber{
			Binary:       defaultTranscriberBinary,
			FFmpegBinary: defaultFFmpegBinary,
			Model:        defaultTranscriberModel,
		},
		Thumbnails: Thumbnails{
			Enabled:     true,
			SeekSeconds: defaultThumbnailSeekSeconds,
			Width:       defaultThumbnailWidth,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
