package runlog

import (
	"fmt"
	"time"
)

// Status represents the lifecycle of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Action identifies the outcome journaled for a single staging entry.
type Action string

const (
	ActionMoved           Action = "moved"
	ActionFolderMoved     Action = "folder_moved"
	ActionExcluded        Action = "excluded"
	ActionRecentSkip      Action = "recent_skip"
	ActionMoveFailed      Action = "move_failed"
	ActionRenamed         Action = "renamed"
	ActionRepaired        Action = "repaired"
	ActionRepairFailed    Action = "repair_failed"
	ActionRestoreFailed   Action = "restore_failed"
	ActionPDFSorted       Action = "pdf_sorted"
	ActionPDFUnclassified Action = "pdf_unclassified"
)

// Options records which optional passes were requested for a run.
type Options struct {
	ProcessAll   bool
	RenameImages bool
	SortPDFs     bool
}

// Run represents one pipeline invocation persisted in SQLite.
type Run struct {
	ID             string
	Status         Status
	StartedAt      time.Time
	FinishedAt     *time.Time
	ProcessAll     bool
	RenameImages   bool
	SortPDFs       bool
	FilesMoved     int
	FoldersMoved   int
	ImagesRenamed  int
	ImagesRepaired int
	PDFsSorted     int
	ErrorMessage   string
}

// Entry is one journaled outcome for a staging entry within a run.
type Entry struct {
	ID          int64
	RunID       string
	Stage       string
	Name        string
	Action      Action
	Destination string
	Detail      string
	CreatedAt   time.Time
}

// MarkCompleted transitions the run into its terminal success state.
func (r *Run) MarkCompleted() {
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.FinishedAt = &now
}

// MarkFailed transitions the run into its terminal failure state.
func (r *Run) MarkFailed(message string) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.FinishedAt = &now
}

// Finished reports whether the run reached a terminal state.
func (r *Run) Finished() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Duration reports elapsed wall time, still ticking for in-flight runs.
func (r *Run) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// Summary renders the completion counts reported to the user at the end of a
// run. Repair successes are already folded into ImagesRenamed.
func (r *Run) Summary() string {
	return fmt.Sprintf(
		"Files organized: %d. Images renamed: %d. PDFs sorted: %d.",
		r.FilesMoved, r.ImagesRenamed, r.PDFsSorted,
	)
}
