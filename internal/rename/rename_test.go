package rename_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"magpie/internal/config"
	"magpie/internal/logging"
	"magpie/internal/oracle"
	"magpie/internal/rename"
	"magpie/internal/runlog"
	"magpie/internal/testsupport"
)

type stubAgent struct {
	describeBatch func(ctx context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error)
	describeOne   func(ctx context.Context, img oracle.ImageAttachment) (string, error)
	batchSizes    []int
	singleCalls   int
}

func (s *stubAgent) DescribeImageBatch(ctx context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
	s.batchSizes = append(s.batchSizes, len(batch))
	if s.describeBatch == nil {
		return nil, errors.New("unexpected DescribeImageBatch call")
	}
	return s.describeBatch(ctx, batch)
}

func (s *stubAgent) DescribeImage(ctx context.Context, img oracle.ImageAttachment) (string, error) {
	s.singleCalls++
	if s.describeOne == nil {
		return "", errors.New("unexpected DescribeImage call")
	}
	return s.describeOne(ctx, img)
}

// titlesFor builds a batch response mapping each file to a distinct title.
func titlesFor(prefix string, batch []oracle.ImageAttachment) map[string]oracle.ImageDescription {
	out := make(map[string]oracle.ImageDescription, len(batch))
	for _, attachment := range batch {
		stem := strings.TrimSuffix(attachment.Filename, filepath.Ext(attachment.Filename))
		out[attachment.Filename] = oracle.ImageDescription{
			OriginalFilename: attachment.Filename,
			ShortTitle:       prefix + " " + stem,
		}
	}
	return out
}

func imagesDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.ArchiveDir, rename.ImagesDir)
}

func runStage(t *testing.T, cfg *config.Config, store *runlog.Store, agent *stubAgent, run *runlog.Run) {
	t.Helper()
	stg := rename.New(cfg, store, agent, logging.NewNop())
	ctx := context.Background()
	if err := stg.Prepare(ctx, run); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := stg.Execute(ctx, run); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestExecuteRenamesBatchWithCleanedTitles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := imagesDir(cfg)
	testsupport.WritePNG(t, filepath.Join(dir, "a.png"), 8, 8)
	testsupport.WritePNG(t, filepath.Join(dir, "b.png"), 8, 8)

	agent := &stubAgent{
		describeBatch: func(_ context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			for _, attachment := range batch {
				if attachment.MIMEType != "image/png" {
					t.Errorf("expected image/png, got %q", attachment.MIMEType)
				}
				if len(attachment.Data) == 0 {
					t.Error("expected image bytes in attachment")
				}
			}
			return map[string]oracle.ImageDescription{
				"a.png": {OriginalFilename: "a.png", ShortTitle: "Sunset Over Lake"},
				"b.png": {OriginalFilename: "b.png", ShortTitle: "Mountain-Trail Map!"},
			}, nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{RenameImages: true})
	runStage(t, cfg, store, agent, run)

	for _, want := range []string{"Sunset_Over_Lake_DESC.png", "Mountain_Trail_Map_DESC.png"} {
		if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
			t.Fatalf("expected %s: %v", want, err)
		}
	}
	if run.ImagesRenamed != 2 || run.ImagesRepaired != 0 {
		t.Fatalf("unexpected counts: renamed=%d repaired=%d", run.ImagesRenamed, run.ImagesRepaired)
	}
}

func TestExecuteSkipsProcessedAndNonImageFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := imagesDir(cfg)
	testsupport.WritePNG(t, filepath.Join(dir, "photo.png"), 8, 8)
	testsupport.WritePNG(t, filepath.Join(dir, "done_DESC.png"), 8, 8)
	testsupport.WriteString(t, filepath.Join(dir, "notes.txt"), "not an image")

	var described []string
	agent := &stubAgent{
		describeBatch: func(_ context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			for _, attachment := range batch {
				described = append(described, attachment.Filename)
			}
			return titlesFor("Snap", batch), nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{RenameImages: true})
	runStage(t, cfg, store, agent, run)

	if len(described) != 1 || described[0] != "photo.png" {
		t.Fatalf("expected only photo.png to be described, got %v", described)
	}
	if _, err := os.Stat(filepath.Join(dir, "done_DESC.png")); err != nil {
		t.Fatalf("marker-suffixed file must not be touched: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("non-image file must not be touched: %v", err)
	}
}

func TestExecuteBatchesBySizeWithInterBatchDelay(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(10))
	cfg.Rename.BatchDelaySeconds = 5
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := imagesDir(cfg)
	for i := 1; i <= 12; i++ {
		testsupport.WritePNG(t, filepath.Join(dir, fmt.Sprintf("img%02d.png", i)), 4, 4)
	}

	var slept []time.Duration
	restore := rename.SetSleepForTests(func(d time.Duration) { slept = append(slept, d) })
	defer restore()

	agent := &stubAgent{
		describeBatch: func(_ context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			return titlesFor("Photo", batch), nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{RenameImages: true})
	runStage(t, cfg, store, agent, run)

	if len(agent.batchSizes) != 2 || agent.batchSizes[0] != 10 || agent.batchSizes[1] != 2 {
		t.Fatalf("expected batches of 10 and 2, got %v", agent.batchSizes)
	}
	if len(slept) != 1 || slept[0] != 5*time.Second {
		t.Fatalf("expected one 5s delay between batches, got %v", slept)
	}
	if run.ImagesRenamed != 12 {
		t.Fatalf("expected 12 renamed, got %d", run.ImagesRenamed)
	}
}

func TestExecuteTotalBatchFailureRepairsIndividually(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(10))
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := imagesDir(cfg)
	for i := 1; i <= 12; i++ {
		testsupport.WritePNG(t, filepath.Join(dir, fmt.Sprintf("img%02d.png", i)), 4, 4)
	}

	batchCalls := 0
	agent := &stubAgent{}
	agent.describeBatch = func(_ context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
		batchCalls++
		if batchCalls == 2 {
			return nil, errors.New("oracle overloaded")
		}
		return titlesFor("Photo", batch), nil
	}
	agent.describeOne = func(_ context.Context, img oracle.ImageAttachment) (string, error) {
		stem := strings.TrimSuffix(img.Filename, filepath.Ext(img.Filename))
		return "Solo " + stem, nil
	}

	run := testsupport.NewRun(t, store, runlog.Options{RenameImages: true})
	runStage(t, cfg, store, agent, run)

	if run.ImagesRenamed != 12 {
		t.Fatalf("expected all 12 images renamed, got %d", run.ImagesRenamed)
	}
	if run.ImagesRepaired != 2 {
		t.Fatalf("expected 2 repairs, got %d", run.ImagesRepaired)
	}
	if agent.singleCalls != 2 {
		t.Fatalf("expected 2 individual retries, got %d", agent.singleCalls)
	}

	entries, err := store.EntriesForRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("EntriesForRun failed: %v", err)
	}
	repaired := 0
	for _, entry := range entries {
		if entry.Action == runlog.ActionRepaired {
			repaired++
		}
	}
	if repaired != 2 {
		t.Fatalf("expected 2 repaired journal entries, got %d", repaired)
	}
}

func TestExecuteQueuesUndecodableImagesForRepair(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := imagesDir(cfg)
	testsupport.WritePNG(t, filepath.Join(dir, "good.png"), 8, 8)
	testsupport.WriteFile(t, filepath.Join(dir, "corrupt.png"), 512)

	agent := &stubAgent{
		describeBatch: func(_ context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			for _, attachment := range batch {
				if attachment.Filename == "corrupt.png" {
					t.Error("undecodable image must not be sent to the oracle")
				}
			}
			return titlesFor("Snap", batch), nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{RenameImages: true})
	runStage(t, cfg, store, agent, run)

	// Repair also fails to decode, so the file is restored untouched.
	if _, err := os.Stat(filepath.Join(dir, "corrupt.png")); err != nil {
		t.Fatalf("expected corrupt.png restored to its original name: %v", err)
	}
	if run.ImagesRenamed != 1 {
		t.Fatalf("expected 1 renamed, got %d", run.ImagesRenamed)
	}
	if agent.singleCalls != 0 {
		t.Fatalf("undecodable file must not reach the single-image oracle call, got %d calls", agent.singleCalls)
	}

	entries, err := store.EntriesForRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("EntriesForRun failed: %v", err)
	}
	failures := 0
	for _, entry := range entries {
		if entry.Action == runlog.ActionRepairFailed && entry.Name == "corrupt.png" {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one repair_failed entry for corrupt.png, got %d", failures)
	}
}

func TestExecuteCollisionLadderSuffixesRenames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := imagesDir(cfg)
	testsupport.WritePNG(t, filepath.Join(dir, "Sunset_DESC.png"), 4, 4)
	testsupport.WritePNG(t, filepath.Join(dir, "Sunset_DESC_1.png"), 4, 4)
	testsupport.WritePNG(t, filepath.Join(dir, "x.png"), 4, 4)

	agent := &stubAgent{
		describeBatch: func(_ context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			return map[string]oracle.ImageDescription{
				"x.png": {OriginalFilename: "x.png", ShortTitle: "Sunset"},
			}, nil
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{RenameImages: true})
	runStage(t, cfg, store, agent, run)

	if _, err := os.Stat(filepath.Join(dir, "Sunset_DESC_2.png")); err != nil {
		t.Fatalf("expected collision ladder to produce Sunset_DESC_2.png: %v", err)
	}
}

func TestRepairRestoresOriginalNameOnOracleFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := imagesDir(cfg)
	testsupport.WritePNG(t, filepath.Join(dir, "holiday.png"), 8, 8)

	agent := &stubAgent{
		describeBatch: func(context.Context, []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			return nil, errors.New("oracle overloaded")
		},
		describeOne: func(_ context.Context, img oracle.ImageAttachment) (string, error) {
			if !strings.HasPrefix(img.Filename, "temp_retry_") {
				t.Errorf("repair must park the file under a temp name, got %q", img.Filename)
			}
			return "", errors.New("still overloaded")
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{RenameImages: true})
	runStage(t, cfg, store, agent, run)

	if _, err := os.Stat(filepath.Join(dir, "holiday.png")); err != nil {
		t.Fatalf("expected holiday.png restored: %v", err)
	}
	leftovers, err := filepath.Glob(filepath.Join(dir, "temp_retry_*"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("expected no temp leftovers, got %v", leftovers)
	}
	if run.ImagesRenamed != 0 {
		t.Fatalf("expected no renames, got %d", run.ImagesRenamed)
	}
}

func TestRepairRestoreFailureIsJournaled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)
	dir := imagesDir(cfg)
	testsupport.WritePNG(t, filepath.Join(dir, "gone.png"), 8, 8)

	agent := &stubAgent{
		describeBatch: func(context.Context, []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error) {
			return nil, errors.New("oracle overloaded")
		},
		describeOne: func(_ context.Context, img oracle.ImageAttachment) (string, error) {
			// Pull the parked file out from under the repair so the
			// restore rename has nothing to move back.
			if err := os.Remove(filepath.Join(dir, img.Filename)); err != nil {
				t.Fatalf("remove temp file: %v", err)
			}
			return "", errors.New("oracle offline")
		},
	}

	run := testsupport.NewRun(t, store, runlog.Options{RenameImages: true})
	runStage(t, cfg, store, agent, run)

	entries, err := store.EntriesForRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("EntriesForRun failed: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.Action == runlog.ActionRestoreFailed && entry.Name == "gone.png" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a restore_failed journal entry")
	}
}

func TestExecuteMissingImagesFolderIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunlog(t, cfg)

	agent := &stubAgent{}
	run := testsupport.NewRun(t, store, runlog.Options{RenameImages: true})
	runStage(t, cfg, store, agent, run)

	if run.ImagesRenamed != 0 || len(agent.batchSizes) != 0 {
		t.Fatalf("expected no work without an Images folder: renamed=%d batches=%v", run.ImagesRenamed, agent.batchSizes)
	}
}
