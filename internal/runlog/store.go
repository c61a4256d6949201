package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"magpie/internal/config"
)

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// timeFormat keeps a fixed-width fraction so lexicographic ORDER BY on the
// stored text matches chronological order. RFC3339Nano would trim trailing
// zeros and break that within a second.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Open initializes or connects to the history database in the log directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location of the history database file.
func (s *Store) Path() string {
	return s.path
}

// CreateRun inserts a new run in the running state and returns it.
func (s *Store) CreateRun(ctx context.Context, id string, opts Options) (*Run, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (
            id, status, started_at, process_all, rename_images, sort_pdfs
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		StatusRunning,
		now.Format(timeFormat),
		boolToInt(opts.ProcessAll),
		boolToInt(opts.RenameImages),
		boolToInt(opts.SortPDFs),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs
         SET status = ?, finished_at = ?, process_all = ?, rename_images = ?,
             sort_pdfs = ?, files_moved = ?, folders_moved = ?, images_renamed = ?,
             images_repaired = ?, pdfs_sorted = ?, error_message = ?
         WHERE id = ?`,
		run.Status,
		nullableTime(run.FinishedAt),
		boolToInt(run.ProcessAll),
		boolToInt(run.RenameImages),
		boolToInt(run.SortPDFs),
		run.FilesMoved,
		run.FoldersMoved,
		run.ImagesRenamed,
		run.ImagesRepaired,
		run.PDFsSorted,
		nullableString(run.ErrorMessage),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// GetRun fetches a run by full identifier.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// FindRun resolves a full run id or a unique id prefix. An ambiguous prefix
// is an error; an unknown one returns nil.
func (s *Store) FindRun(ctx context.Context, idOrPrefix string) (*Run, error) {
	trimmed := strings.TrimSpace(idOrPrefix)
	if trimmed == "" {
		return nil, errors.New("run id is empty")
	}

	run, err := s.GetRun(ctx, trimmed)
	if err != nil || run != nil {
		return run, err
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM runs WHERE substr(id, 1, ?) = ? ORDER BY started_at DESC LIMIT 2`,
		len(trimmed),
		trimmed,
	)
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	defer rows.Close()

	var matches []*Run
	for rows.Next() {
		match, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", trimmed)
	}
}

// RecentRuns returns runs ordered newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently started run, or nil when history is empty.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// AppendEntry journals one per-item outcome for a run. The entry's ID and
// CreatedAt fields are filled in on success.
func (s *Store) AppendEntry(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_entries (
            run_id, stage, entry_name, action, destination, detail, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Stage,
		entry.Name,
		entry.Action,
		nullableString(entry.Destination),
		nullableString(entry.Detail),
		entry.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// EntriesForRun returns a run's journal in insertion order.
func (s *Store) EntriesForRun(ctx context.Context, runID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM run_entries WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ClearRuns removes all recorded runs; journal entries cascade.
func (s *Store) ClearRuns(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	return res.RowsAffected()
}

const runColumns = "id, status, started_at, finished_at, process_all, rename_images, sort_pdfs, files_moved, folders_moved, images_renamed, images_repaired, pdfs_sorted, error_message"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id             string
		statusStr      string
		startedRaw     sql.NullString
		finishedRaw    sql.NullString
		processAll     sql.NullInt64
		renameImages   sql.NullInt64
		sortPDFs       sql.NullInt64
		filesMoved     sql.NullInt64
		foldersMoved   sql.NullInt64
		imagesRenamed  sql.NullInt64
		imagesRepaired sql.NullInt64
		pdfsSorted     sql.NullInt64
		errorMessage   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&startedRaw,
		&finishedRaw,
		&processAll,
		&renameImages,
		&sortPDFs,
		&filesMoved,
		&foldersMoved,
		&imagesRenamed,
		&imagesRepaired,
		&pdfsSorted,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:             id,
		Status:         Status(statusStr),
		ProcessAll:     processAll.Int64 != 0,
		RenameImages:   renameImages.Int64 != 0,
		SortPDFs:       sortPDFs.Int64 != 0,
		FilesMoved:     int(filesMoved.Int64),
		FoldersMoved:   int(foldersMoved.Int64),
		ImagesRenamed:  int(imagesRenamed.Int64),
		ImagesRepaired: int(imagesRepaired.Int64),
		PDFsSorted:     int(pdfsSorted.Int64),
		ErrorMessage:   errorMessage.String,
	}

	if started, err := parseTimeString(startedRaw.String); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return run, nil
}

const entryColumns = "id, run_id, stage, entry_name, action, destination, detail, created_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id          int64
		runID       string
		stage       string
		name        string
		actionStr   string
		destination sql.NullString
		detail      sql.NullString
		createdRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&runID,
		&stage,
		&name,
		&actionStr,
		&destination,
		&detail,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:          id,
		RunID:       runID,
		Stage:       stage,
		Name:        name,
		Action:      Action(actionStr),
		Destination: destination.String,
		Detail:      detail.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(timeFormat)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
