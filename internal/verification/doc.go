// Package verification persists per-content-hash records that let scribe
// skip files whose transcription output already exists and is trustworthy.
//
// Records are JSON files named by hash in a shared directory, written with
// atomic replace plus a file lock so multiple scribe instances can point at
// the same directory. The store only affects optimization, never
// correctness: every check fails closed toward reprocessing.
package verification
