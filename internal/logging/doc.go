// Package logging assembles structured slog loggers and formatting helpers
// used across magpie.
//
// It owns the configurable console/JSON handlers, centralizes level and
// output plumbing, and exposes context-aware helpers so stage code can
// automatically tag log lines with run IDs, stages, and the staging entry
// under processing. The package also provides the StreamHub, a bounded
// in-memory event buffer the CLI tails while a run executes in the
// background, and a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
