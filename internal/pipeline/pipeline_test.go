package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"magpie/internal/logging"
	"magpie/internal/oracle"
	"magpie/internal/pipeline"
	"magpie/internal/runlog"
	"magpie/internal/testsupport"
)

type stubAgent struct {
	classifyExtension func(ctx context.Context, ext string, categories []string) (oracle.FolderRecommendation, error)
	classifyCode      func(ctx context.Context, filename, snippet string) (oracle.CodeClassification, error)
	describeBatch     func(ctx context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error)
	describeOne       func(ctx context.Context, img oracle.ImageAttachment) (string, error)
	classifyPDF       func(ctx context.Context, filename string, subfolders []string) (oracle.PdfClassification, error)
}

func (s *stubAgent) ClassifyExtension(ctx context.Context, ext string, categories []string) (oracle.FolderRecommendation, error) {
	if s.classifyExtension == nil {
		return oracle.FolderRecommendation{}, errors.New("unexpected ClassifyExtension call")
	}
	return s.classifyExtension(ctx, ext, categories)
}

func (s *stubAgent) ClassifyCode(ctx context.Context, filename, snippet string) (oracle.CodeClassification, error) {
	if s.classifyCode == nil {
		return oracle.CodeClassification{}, errors.New("unexpected ClassifyCode call")
	}
	return s.classifyCode(ctx, filename, snippet)
}

func (s *stubAgent) DescribeImageBatch(ctx context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
	if s.describeBatch == nil {
		return nil, errors.New("unexpected DescribeImageBatch call")
	}
	return s.describeBatch(ctx, batch)
}

func (s *stubAgent) DescribeImage(ctx context.Context, img oracle.ImageAttachment) (string, error) {
	if s.describeOne == nil {
		return "", errors.New("unexpected DescribeImage call")
	}
	return s.describeOne(ctx, img)
}

func (s *stubAgent) ClassifyPDF(ctx context.Context, filename string, subfolders []string) (oracle.PdfClassification, error) {
	if s.classifyPDF == nil {
		return oracle.PdfClassification{}, errors.New("unexpected ClassifyPDF call")
	}
	return s.classifyPDF(ctx, filename, subfolders)
}

type stubNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (n *stubNotifier) NotifyRunCompleted(_ context.Context, summary string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, summary)
	return nil
}

func (n *stubNotifier) NotifyRunFailed(_ context.Context, runErr error, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, runErr.Error())
	return nil
}

func (n *stubNotifier) TestNotification(context.Context) error { return nil }

func (n *stubNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completed), len(n.failed)
}

func TestRunExecutesEnabledStagesInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	testsupport.WriteString(t, filepath.Join(cfg.Paths.StagingDir, "report.pdf"), "%PDF-1.4")
	testsupport.WritePNG(t, filepath.Join(cfg.Paths.ArchiveDir, "Images", "snap.png"), 8, 8)

	agent := &stubAgent{
		describeBatch: func(_ context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			out := make(map[string]oracle.ImageDescription, len(batch))
			for _, img := range batch {
				out[img.Filename] = oracle.ImageDescription{OriginalFilename: img.Filename, ShortTitle: "Lake View"}
			}
			return out, nil
		},
		classifyPDF: func(context.Context, string, []string) (oracle.PdfClassification, error) {
			return oracle.PdfClassification{SuggestedSubfolder: "Reports", IsNewSubfolder: true}, nil
		},
	}
	notifier := &stubNotifier{}

	runner := pipeline.NewRunnerWithOptions(cfg, store, logging.NewNop(), notifier, agent)
	run, err := runner.Start(context.Background(), runlog.Options{ProcessAll: true, RenameImages: true, SortPDFs: true})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	runner.Wait()

	final, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if final == nil || final.Status != runlog.StatusCompleted {
		t.Fatalf("expected completed run, got %+v", final)
	}
	if final.FilesMoved != 1 || final.ImagesRenamed != 1 || final.PDFsSorted != 1 {
		t.Fatalf("unexpected counts: moved=%d renamed=%d sorted=%d", final.FilesMoved, final.ImagesRenamed, final.PDFsSorted)
	}
	if final.FinishedAt == nil {
		t.Fatal("expected a finish timestamp")
	}

	if _, err := os.Stat(filepath.Join(cfg.Paths.ArchiveDir, "Documents", "Reports", "report.pdf")); err != nil {
		t.Fatalf("expected report.pdf sub-sorted under Documents/Reports: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.ArchiveDir, "Images", "Lake_View_DESC.png")); err != nil {
		t.Fatalf("expected renamed image: %v", err)
	}

	entries, err := store.EntriesForRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("EntriesForRun failed: %v", err)
	}
	var actions []runlog.Action
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	want := []runlog.Action{runlog.ActionMoved, runlog.ActionRenamed, runlog.ActionPDFSorted}
	if len(actions) != len(want) {
		t.Fatalf("expected journal %v, got %v", want, actions)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("stage order wrong at %d: expected %v, got %v", i, want, actions)
		}
	}

	completed, failed := notifier.counts()
	if completed != 1 || failed != 0 {
		t.Fatalf("expected exactly one completion push, got completed=%d failed=%d", completed, failed)
	}
	if notifier.completed[0] != "Files organized: 1. Images renamed: 1. PDFs sorted: 1." {
		t.Fatalf("unexpected summary: %q", notifier.completed[0])
	}
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	testsupport.WritePNG(t, filepath.Join(cfg.Paths.ArchiveDir, "Images", "one.png"), 4, 4)

	release := make(chan struct{})
	agent := &stubAgent{
		describeBatch: func(_ context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			<-release
			out := make(map[string]oracle.ImageDescription, len(batch))
			for _, img := range batch {
				out[img.Filename] = oracle.ImageDescription{OriginalFilename: img.Filename, ShortTitle: "Held"}
			}
			return out, nil
		},
	}

	first := pipeline.NewRunnerWithOptions(cfg, store, logging.NewNop(), &stubNotifier{}, agent)
	if _, err := first.Start(context.Background(), runlog.Options{RenameImages: true}); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	second := pipeline.NewRunnerWithOptions(cfg, store, logging.NewNop(), &stubNotifier{}, agent)
	if _, err := second.Start(context.Background(), runlog.Options{}); err == nil {
		t.Fatal("expected the second runner to be locked out")
	} else if !strings.Contains(err.Error(), "another magpie run") {
		t.Fatalf("unexpected lockout error: %v", err)
	}

	close(release)
	first.Wait()

	// The lock is free again once the first run settles.
	if _, err := second.Start(context.Background(), runlog.Options{}); err != nil {
		t.Fatalf("Start after release failed: %v", err)
	}
	second.Wait()

	runs, err := store.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}
}

func TestStagePanicMarksRunFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	testsupport.WritePNG(t, filepath.Join(cfg.Paths.ArchiveDir, "Images", "boom.png"), 4, 4)

	agent := &stubAgent{
		describeBatch: func(context.Context, []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			panic("midnight")
		},
	}
	notifier := &stubNotifier{}

	runner := pipeline.NewRunnerWithOptions(cfg, store, logging.NewNop(), notifier, agent)
	run, err := runner.Start(context.Background(), runlog.Options{RenameImages: true})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	runner.Wait()

	final, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if final == nil || final.Status != runlog.StatusFailed {
		t.Fatalf("expected failed run, got %+v", final)
	}
	if !strings.Contains(final.ErrorMessage, "panic") {
		t.Fatalf("expected panic detail in error message, got %q", final.ErrorMessage)
	}

	completed, failed := notifier.counts()
	if completed != 0 || failed != 1 {
		t.Fatalf("expected exactly one failure push, got completed=%d failed=%d", completed, failed)
	}

	// The panic path must still release the lock and reset the runner.
	if _, err := runner.Start(context.Background(), runlog.Options{}); err != nil {
		t.Fatalf("Start after panic failed: %v", err)
	}
	runner.Wait()
}

func TestStartFailsWhenStageUnhealthy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	notifier := &stubNotifier{}

	// A nil agent leaves the rename stage without an oracle.
	runner := pipeline.NewRunnerWithOptions(cfg, store, logging.NewNop(), notifier, nil)
	_, err := runner.Start(context.Background(), runlog.Options{RenameImages: true})
	if err == nil {
		t.Fatal("expected Start to fail the health gate")
	}
	if !strings.Contains(err.Error(), "health check") || !strings.Contains(err.Error(), "oracle client not configured") {
		t.Fatalf("unexpected gate error: %v", err)
	}

	latest, err := store.LatestRun(context.Background())
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("no run should be recorded when the gate fails, got %+v", latest)
	}
	completed, failed := notifier.counts()
	if completed != 0 || failed != 0 {
		t.Fatalf("no notifications expected, got completed=%d failed=%d", completed, failed)
	}
}
