// Package runlog persists pipeline run history in SQLite.
//
// Each pipeline invocation is recorded as a run row carrying its option
// flags, lifecycle status, and per-pass counts. Stages journal one entry per
// staging item (moves, skips, renames, failures) so the history commands can
// replay what happened to any file. Retry queues and staging listings are
// transient state and are never persisted.
package runlog
