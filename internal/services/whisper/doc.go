// Package whisper shells out to ffmpeg and the whisper CLI to turn media
// files into normalized transcript JSON. The command runner is injectable so
// tests never spawn real processes.
package whisper
