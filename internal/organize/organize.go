package organize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"magpie/internal/classify"
	"magpie/internal/config"
	"magpie/internal/extmap"
	"magpie/internal/fileutil"
	"magpie/internal/logging"
	"magpie/internal/runlog"
	"magpie/internal/services"
	"magpie/internal/stage"
)

const stageName = "organize"

// FoldersDir is the archive subdirectory that receives relocated directories.
const FoldersDir = "Folders"

// Stage sorts the staging directory into the archive tree: directories move
// wholesale into Folders/, files move into their classified category folder.
type Stage struct {
	cfg      *config.Config
	store    *runlog.Store
	rules    *extmap.Map
	resolver *classify.Resolver
	logger   *slog.Logger
}

// New constructs the staging sort stage handler.
func New(cfg *config.Config, store *runlog.Store, rules *extmap.Map, agent classify.Oracle, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:      cfg,
		store:    store,
		rules:    rules,
		resolver: classify.NewResolver(rules, agent, logger),
		logger:   logging.NewComponentLogger(logger, stageName),
	}
}

// Prepare ensures the staging and archive directories exist before sorting.
func (s *Stage) Prepare(ctx context.Context, run *runlog.Run) error {
	logger := logging.WithContext(ctx, s.logger)
	if err := s.cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "ensure directories", "Staging or archive directory could not be created", err)
	}
	logger.Info("starting staging sort",
		logging.String("staging_dir", s.cfg.Paths.StagingDir),
		logging.String("archive_dir", s.cfg.Paths.ArchiveDir),
		logging.Bool("process_all", run.ProcessAll),
	)
	return nil
}

// Execute walks the staging directory once and sorts every eligible entry.
// Per-entry failures are journaled and skipped; only context cancellation or
// an unreadable staging directory aborts the pass.
func (s *Stage) Execute(ctx context.Context, run *runlog.Run) error {
	logger := logging.WithContext(ctx, s.logger)

	stagingDir := s.cfg.Paths.StagingDir
	archiveDir := s.cfg.Paths.ArchiveDir
	foldersDest := filepath.Join(archiveDir, FoldersDir)

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "read staging dir", "Staging directory could not be read", err)
	}

	// The cutoff is computed once so every entry in the run is gated against
	// the same instant.
	var cutoff time.Time
	if hours := s.cfg.Organize.RecentWindowHours; !run.ProcessAll && hours > 0 {
		cutoff = time.Now().Add(-time.Duration(hours) * time.Hour)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()
		entryPath := filepath.Join(stagingDir, name)
		if s.skipAlways(entryPath, archiveDir, foldersDest) {
			continue
		}

		if entry.IsDir() {
			s.relocateFolder(ctx, run, entryPath, foldersDest)
			continue
		}

		if s.rules.Excluded(name) {
			logger.Info("excluded entry skipped", logging.String("entry", name))
			s.journal(ctx, run, name, runlog.ActionExcluded, "", "")
			continue
		}

		if !cutoff.IsZero() {
			info, err := entry.Info()
			if err != nil {
				logger.Warn("could not stat entry", logging.String("entry", name), logging.Error(err))
				continue
			}
			if !info.ModTime().Before(cutoff) {
				logger.Info("recent entry skipped", logging.String("entry", name))
				s.journal(ctx, run, name, runlog.ActionRecentSkip, "", "")
				continue
			}
		}

		decision, err := s.resolver.Resolve(ctx, entryPath)
		if err != nil {
			return err
		}
		s.moveFile(ctx, run, entryPath, decision)
	}

	logger.Info("staging sort complete",
		logging.Int("files_moved", run.FilesMoved),
		logging.Int("folders_moved", run.FoldersMoved),
	)
	return nil
}

// HealthCheck verifies the staging directory is configured and reachable.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if strings.TrimSpace(s.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(stageName, "staging directory not configured")
	}
	if strings.TrimSpace(s.cfg.Paths.ArchiveDir) == "" {
		return stage.Unhealthy(stageName, "archive directory not configured")
	}
	if _, err := os.Stat(s.cfg.Paths.StagingDir); err != nil {
		return stage.Unhealthy(stageName, fmt.Sprintf("staging directory unavailable: %v", err))
	}
	return stage.Healthy(stageName)
}

// skipAlways filters entries the sorter must never touch: the archive tree,
// the Folders destination, the loaded config file, and the category map file.
func (s *Stage) skipAlways(entryPath, archiveDir, foldersDest string) bool {
	cleaned := filepath.Clean(entryPath)
	if cleaned == filepath.Clean(archiveDir) || cleaned == filepath.Clean(foldersDest) {
		return true
	}
	if src := s.cfg.SourcePath; src != "" && cleaned == filepath.Clean(src) {
		return true
	}
	if mapFile := s.cfg.Paths.MapFile; mapFile != "" && cleaned == filepath.Clean(mapFile) {
		return true
	}
	return false
}

func (s *Stage) relocateFolder(ctx context.Context, run *runlog.Run, entryPath, foldersDest string) {
	logger := logging.WithContext(ctx, s.logger)
	name := filepath.Base(entryPath)

	target, err := fileutil.AvailablePath(foldersDest, name, "")
	if err == nil {
		err = fileutil.MoveDir(entryPath, target)
	}
	if err != nil {
		logger.Error("folder relocation failed",
			logging.String("entry", name),
			logging.Error(err))
		s.journal(ctx, run, name, runlog.ActionMoveFailed, FoldersDir, err.Error())
		return
	}

	detail := ""
	if finalName := filepath.Base(target); finalName != name {
		detail = "stored as " + finalName
	}
	logger.Info("folder relocated",
		logging.String("entry", name),
		logging.String("destination", FoldersDir))
	s.journal(ctx, run, name, runlog.ActionFolderMoved, FoldersDir, detail)
	run.FoldersMoved++
}

func (s *Stage) moveFile(ctx context.Context, run *runlog.Run, entryPath string, decision classify.Decision) {
	logger := logging.WithContext(ctx, s.logger)
	name := filepath.Base(entryPath)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	targetDir := filepath.Join(s.cfg.Paths.ArchiveDir, filepath.FromSlash(decision.Folder))
	target, err := fileutil.AvailablePath(targetDir, stem, ext)
	if err == nil {
		err = fileutil.MoveFile(entryPath, target)
	}
	if err != nil {
		logger.Error("move failed",
			logging.String("entry", name),
			logging.String("destination", decision.Folder),
			logging.Error(err))
		s.journal(ctx, run, name, runlog.ActionMoveFailed, decision.Folder, err.Error())
		return
	}

	detail := ""
	if finalName := filepath.Base(target); finalName != name {
		detail = "stored as " + finalName
	}
	logger.Info("moved",
		logging.String("entry", name),
		logging.String("destination", decision.Folder),
		logging.String("classified_by", string(decision.Source)))
	s.journal(ctx, run, name, runlog.ActionMoved, decision.Folder, detail)
	run.FilesMoved++
}

func (s *Stage) journal(ctx context.Context, run *runlog.Run, name string, action runlog.Action, destination, detail string) {
	if s.store == nil {
		return
	}
	entry := &runlog.Entry{
		RunID:       run.ID,
		Stage:       stageName,
		Name:        name,
		Action:      action,
		Destination: destination,
		Detail:      detail,
	}
	if err := s.store.AppendEntry(ctx, entry); err != nil {
		logging.WithContext(ctx, s.logger).Warn("journal write failed", logging.Error(err))
	}
}
