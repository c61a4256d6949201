package pdfsort_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"magpie/internal/config"
	"magpie/internal/logging"
	"magpie/internal/oracle"
	"magpie/internal/pdfsort"
	"magpie/internal/runlog"
	"magpie/internal/testsupport"
)

type stubAgent struct {
	classify  func(filename string, subfolders []string) (oracle.PdfClassification, error)
	filenames []string
	contexts  [][]string
}

func (s *stubAgent) ClassifyPDF(_ context.Context, filename string, subfolders []string) (oracle.PdfClassification, error) {
	s.filenames = append(s.filenames, filename)
	s.contexts = append(s.contexts, slices.Clone(subfolders))
	if s.classify == nil {
		return oracle.PdfClassification{}, errors.New("unexpected ClassifyPDF call")
	}
	return s.classify(filename, subfolders)
}

func documentsDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.ArchiveDir, pdfsort.DocumentsDir)
}

func runStage(t *testing.T, cfg *config.Config, store *runlog.Store, agent *stubAgent, run *runlog.Run) {
	t.Helper()
	stg := pdfsort.New(cfg, store, agent, logging.NewNop())
	ctx := context.Background()
	if err := stg.Prepare(ctx, run); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := stg.Execute(ctx, run); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestExecuteSortsIntoExistingSubfolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := documentsDir(cfg)
	if err := os.MkdirAll(filepath.Join(dir, "Invoices"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	testsupport.WriteString(t, filepath.Join(dir, "invoice_march.pdf"), "%PDF-1.4")

	agent := &stubAgent{
		classify: func(string, []string) (oracle.PdfClassification, error) {
			return oracle.PdfClassification{SuggestedSubfolder: "Invoices"}, nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{SortPDFs: true})
	runStage(t, cfg, store, agent, run)

	if _, err := os.Stat(filepath.Join(dir, "Invoices", "invoice_march.pdf")); err != nil {
		t.Fatalf("expected invoice filed under Invoices: %v", err)
	}
	if run.PDFsSorted != 1 {
		t.Fatalf("expected 1 sorted, got %d", run.PDFsSorted)
	}
	if len(agent.contexts) != 1 || !slices.Contains(agent.contexts[0], "Invoices") {
		t.Fatalf("expected the existing subfolder offered as context, got %v", agent.contexts)
	}

	entries, err := store.EntriesForRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("EntriesForRun failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != runlog.ActionPDFSorted || entries[0].Destination != "Invoices" {
		t.Fatalf("unexpected journal entries: %+v", entries)
	}
}

func TestExecuteNewSubfolderExtendsContextForLaterCalls(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := documentsDir(cfg)
	testsupport.WriteString(t, filepath.Join(dir, "a_paper.pdf"), "%PDF-1.4")
	testsupport.WriteString(t, filepath.Join(dir, "b_paper.pdf"), "%PDF-1.4")

	agent := &stubAgent{
		classify: func(string, []string) (oracle.PdfClassification, error) {
			return oracle.PdfClassification{SuggestedSubfolder: "Research Papers", IsNewSubfolder: true}, nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{SortPDFs: true})
	runStage(t, cfg, store, agent, run)

	for _, name := range []string{"a_paper.pdf", "b_paper.pdf"} {
		if _, err := os.Stat(filepath.Join(dir, "Research_Papers", name)); err != nil {
			t.Fatalf("expected %s under Research_Papers: %v", name, err)
		}
	}
	if len(agent.contexts) != 2 {
		t.Fatalf("expected 2 classifications, got %d", len(agent.contexts))
	}
	if len(agent.contexts[0]) != 0 {
		t.Fatalf("first call should see no subfolders, got %v", agent.contexts[0])
	}
	if !slices.Contains(agent.contexts[1], "Research_Papers") {
		t.Fatalf("second call should see the new subfolder, got %v", agent.contexts[1])
	}
	if run.PDFsSorted != 2 {
		t.Fatalf("expected 2 sorted, got %d", run.PDFsSorted)
	}
}

func TestExecuteOracleFailureLeavesFileInRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := documentsDir(cfg)
	testsupport.WriteString(t, filepath.Join(dir, "mystery.pdf"), "%PDF-1.4")

	agent := &stubAgent{
		classify: func(string, []string) (oracle.PdfClassification, error) {
			return oracle.PdfClassification{}, errors.New("oracle offline")
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{SortPDFs: true})
	runStage(t, cfg, store, agent, run)

	if _, err := os.Stat(filepath.Join(dir, "mystery.pdf")); err != nil {
		t.Fatalf("expected mystery.pdf to stay in the Documents root: %v", err)
	}
	if run.PDFsSorted != 0 {
		t.Fatalf("expected 0 sorted, got %d", run.PDFsSorted)
	}

	entries, err := store.EntriesForRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("EntriesForRun failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != runlog.ActionPDFUnclassified {
		t.Fatalf("expected one pdf_unclassified entry, got %+v", entries)
	}
}

func TestExecuteUnusableSuggestionLeavesFileInRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := documentsDir(cfg)
	testsupport.WriteString(t, filepath.Join(dir, "odd.pdf"), "%PDF-1.4")

	agent := &stubAgent{
		classify: func(string, []string) (oracle.PdfClassification, error) {
			return oracle.PdfClassification{SuggestedSubfolder: "???", IsNewSubfolder: true}, nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{SortPDFs: true})
	runStage(t, cfg, store, agent, run)

	if _, err := os.Stat(filepath.Join(dir, "odd.pdf")); err != nil {
		t.Fatalf("expected odd.pdf to stay put: %v", err)
	}
	if run.PDFsSorted != 0 {
		t.Fatalf("expected 0 sorted, got %d", run.PDFsSorted)
	}
}

func TestExecuteCollisionLadderPreservesExistingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := documentsDir(cfg)
	testsupport.WriteString(t, filepath.Join(dir, "Invoices", "invoice.pdf"), "already filed")
	testsupport.WriteString(t, filepath.Join(dir, "invoice.pdf"), "fresh arrival")

	agent := &stubAgent{
		classify: func(string, []string) (oracle.PdfClassification, error) {
			return oracle.PdfClassification{SuggestedSubfolder: "Invoices"}, nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{SortPDFs: true})
	runStage(t, cfg, store, agent, run)

	existing, err := os.ReadFile(filepath.Join(dir, "Invoices", "invoice.pdf"))
	if err != nil {
		t.Fatalf("read existing: %v", err)
	}
	if string(existing) != "already filed" {
		t.Fatal("existing invoice.pdf must not be overwritten")
	}
	moved, err := os.ReadFile(filepath.Join(dir, "Invoices", "invoice_1.pdf"))
	if err != nil {
		t.Fatalf("expected invoice_1.pdf: %v", err)
	}
	if string(moved) != "fresh arrival" {
		t.Fatalf("invoice_1.pdf holds the wrong content: %q", moved)
	}
}

func TestExecuteMatchesExtensionCaseInsensitively(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := documentsDir(cfg)
	testsupport.WriteString(t, filepath.Join(dir, "REPORT.PDF"), "%PDF-1.4")
	testsupport.WriteString(t, filepath.Join(dir, "notes.txt"), "not a pdf")

	agent := &stubAgent{
		classify: func(string, []string) (oracle.PdfClassification, error) {
			return oracle.PdfClassification{SuggestedSubfolder: "Reports", IsNewSubfolder: true}, nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{SortPDFs: true})
	runStage(t, cfg, store, agent, run)

	if len(agent.filenames) != 1 || agent.filenames[0] != "REPORT.PDF" {
		t.Fatalf("expected only REPORT.PDF classified, got %v", agent.filenames)
	}
	if _, err := os.Stat(filepath.Join(dir, "Reports", "REPORT.PDF")); err != nil {
		t.Fatalf("expected REPORT.PDF under Reports: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("notes.txt must stay put: %v", err)
	}
}

func TestExecuteMissingDocumentsFolderIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)

	agent := &stubAgent{}
	run := testsupport.NewRun(t, store, runlog.Options{SortPDFs: true})
	runStage(t, cfg, store, agent, run)

	if len(agent.filenames) != 0 || run.PDFsSorted != 0 {
		t.Fatalf("expected no work without a Documents folder: calls=%v sorted=%d", agent.filenames, run.PDFsSorted)
	}
}
