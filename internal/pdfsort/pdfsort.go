package pdfsort

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"log/slog"

	"magpie/internal/config"
	"magpie/internal/fileutil"
	"magpie/internal/logging"
	"magpie/internal/oracle"
	"magpie/internal/runlog"
	"magpie/internal/services"
	"magpie/internal/stage"
	"magpie/internal/textutil"
)

const stageName = "pdfsort"

// DocumentsDir is the archive subdirectory whose PDFs get sub-sorted.
const DocumentsDir = "Documents"

// Agent is the slice of the oracle client the sorter consults.
type Agent interface {
	ClassifyPDF(ctx context.Context, filename string, subfolders []string) (oracle.PdfClassification, error)
}

// Stage files the PDFs sitting in the archive's Documents folder into
// topical subfolders suggested by the oracle.
type Stage struct {
	cfg    *config.Config
	store  *runlog.Store
	agent  Agent
	logger *slog.Logger
}

// New constructs the PDF sorting stage handler.
func New(cfg *config.Config, store *runlog.Store, agent Agent, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:    cfg,
		store:  store,
		agent:  agent,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Prepare verifies the sorter has an oracle to consult.
func (s *Stage) Prepare(ctx context.Context, run *runlog.Run) error {
	if s.agent == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "PDF sorting requires a configured oracle client", nil)
	}
	return nil
}

// Execute scans Documents once and files each PDF into the subfolder the
// oracle suggests. The known-subfolder list is captured at the start of the
// pass and grows as new subfolders are created, so later classifications see
// folders earlier ones introduced.
func (s *Stage) Execute(ctx context.Context, run *runlog.Run) error {
	logger := logging.WithContext(ctx, s.logger)

	docsDir := filepath.Join(s.cfg.Paths.ArchiveDir, DocumentsDir)
	info, err := os.Stat(docsDir)
	if err != nil || !info.IsDir() {
		logger.Info("documents folder not present, nothing to sort", logging.String("dir", docsDir))
		return nil
	}

	entries, err := os.ReadDir(docsDir)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "read documents dir", "Documents folder could not be read", err)
	}

	subfolders := make([]string, 0, len(entries))
	pdfs := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			subfolders = append(subfolders, name)
		case entry.Type().IsRegular() && strings.EqualFold(filepath.Ext(name), ".pdf"):
			pdfs = append(pdfs, name)
		}
	}
	if len(pdfs) == 0 {
		logger.Info("no PDFs to sort", logging.String("dir", docsDir))
		return nil
	}

	logger.Info("starting PDF sort",
		logging.Int("pdfs", len(pdfs)),
		logging.Int("known_subfolders", len(subfolders)),
	)

	for _, name := range pdfs {
		if err := ctx.Err(); err != nil {
			return err
		}
		subfolders = s.sortOne(ctx, run, docsDir, name, subfolders)
	}

	logger.Info("PDF sort complete", logging.Int("pdfs_sorted", run.PDFsSorted))
	return nil
}

// HealthCheck verifies the sorter is wired to an oracle and an archive path.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if s.agent == nil {
		return stage.Unhealthy(stageName, "oracle client not configured")
	}
	if strings.TrimSpace(s.cfg.Paths.ArchiveDir) == "" {
		return stage.Unhealthy(stageName, "archive directory not configured")
	}
	return stage.Healthy(stageName)
}

// sortOne classifies and moves a single PDF. It returns the known-subfolder
// list, extended when the oracle flagged the destination as new. Files whose
// classification fails or cleans to nothing stay in the Documents root.
func (s *Stage) sortOne(ctx context.Context, run *runlog.Run, docsDir, name string, subfolders []string) []string {
	logger := logging.WithContext(ctx, s.logger)

	classification, err := s.agent.ClassifyPDF(ctx, name, subfolders)
	if err != nil {
		if ctx.Err() != nil {
			return subfolders
		}
		logger.Info("pdf left unclassified",
			logging.String("entry", name),
			logging.Error(err))
		s.journal(ctx, run, name, runlog.ActionPDFUnclassified, "", err.Error())
		return subfolders
	}

	subfolder := textutil.CleanName(classification.SuggestedSubfolder)
	if subfolder == "" {
		logger.Info("pdf left unclassified",
			logging.String("entry", name),
			logging.String("suggestion", classification.SuggestedSubfolder))
		s.journal(ctx, run, name, runlog.ActionPDFUnclassified, "", "suggested subfolder cleans to nothing")
		return subfolders
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	target, err := fileutil.AvailablePath(filepath.Join(docsDir, subfolder), stem, ext)
	if err == nil {
		err = fileutil.MoveFile(filepath.Join(docsDir, name), target)
	}
	if err != nil {
		logger.Error("pdf move failed",
			logging.String("entry", name),
			logging.String("destination", subfolder),
			logging.Error(err))
		s.journal(ctx, run, name, runlog.ActionMoveFailed, subfolder, err.Error())
		return subfolders
	}

	detail := ""
	if finalName := filepath.Base(target); finalName != name {
		detail = "stored as " + finalName
	}
	logger.Info("pdf sorted",
		logging.String("entry", name),
		logging.String("destination", subfolder))
	s.journal(ctx, run, name, runlog.ActionPDFSorted, subfolder, detail)
	run.PDFsSorted++

	if classification.IsNewSubfolder && !slices.Contains(subfolders, subfolder) {
		subfolders = append(subfolders, subfolder)
	}
	return subfolders
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
