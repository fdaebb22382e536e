// Package services defines the shared error taxonomy for the external
// collaborators scribe invokes (transcription, thumbnail extraction,
// indexing) and the context annotations carried through pipeline runs.
package services
