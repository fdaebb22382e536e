// Package queue persists media items in SQLite and exposes the status
// transitions the rest of scribe drives them through.
//
// The claim primitive (TryClaim) is a single conditional UPDATE: SQLite
// serializes writers, so at most one caller observes a row transition for a
// given expected status. That conditional update is the only cross-instance
// synchronization scribe relies on. Terminal statuses (completed, failed,
// cancelled) are sticky: no write in this package replaces one.
//
// Treat this package as the single source of truth for queue semantics; when
// you add new statuses or columns, update schema.sql and bump schemaVersion.
package queue
