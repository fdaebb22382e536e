// Package logging builds slog loggers with console and JSON output and
// provides the attribute helpers used across scribe components.
package logging
