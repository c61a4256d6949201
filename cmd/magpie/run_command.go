package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"magpie/internal/config"
	"magpie/internal/logging"
	"magpie/internal/pipeline"
	"magpie/internal/runlog"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var renameImages bool
	var sortPDFs bool
	var processAll bool
	var noDelay bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sort the staging directory now",
		Long: "Run the sorting pipeline in the foreground: organize staging entries into " +
			"the archive, then optionally rename archived images and sub-sort archived PDFs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if noDelay {
				cfg.Rename.BatchDelaySeconds = 0
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			hub := logging.NewStreamHub(1024)
			logger, err := newRunLogger(cfg, hub)
			if err != nil {
				return err
			}

			store, err := runlog.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			runner := pipeline.NewRunner(cfg, store, logger)
			opts := runlog.Options{
				ProcessAll:   processAll,
				RenameImages: renameImages || cfg.Rename.Enabled,
				SortPDFs:     sortPDFs || cfg.PDFSort.Enabled,
			}

			started, err := runner.Start(cmd.Context(), opts)
			if err != nil {
				return err
			}

			// The tail context settles with the run, not with the interrupt
			// signal, so shutdown lines still reach the terminal after Ctrl+C.
			tailCtx, cancelTail := context.WithCancel(context.Background())
			go func() {
				runner.Wait()
				cancelTail()
			}()

			var since uint64
			for {
				events, _, err := hub.Fetch(tailCtx, since, 0, true)
				for _, evt := range events {
					fmt.Fprintln(stdout, formatLogEvent(evt, colorize))
					since = evt.Sequence
				}
				if err != nil {
					break
				}
			}
			// Records published between the last fetch and run completion are
			// still buffered; drain them without waiting.
			if events, _, err := hub.Fetch(context.Background(), since, 0, false); err == nil {
				for _, evt := range events {
					fmt.Fprintln(stdout, formatLogEvent(evt, colorize))
				}
			}

			run, err := store.GetRun(context.Background(), started.ID)
			if err != nil {
				return fmt.Errorf("read run outcome: %w", err)
			}
			if run == nil {
				return errors.New("run finished without a recorded outcome")
			}

			fmt.Fprintln(stdout)
			switch run.Status {
			case runlog.StatusCompleted:
				fmt.Fprintf(stdout, "Run %s complete in %s. %s\n",
					shortRunID(run.ID), formatDuration(run.Duration()), run.Summary())
				return nil
			case runlog.StatusFailed:
				return fmt.Errorf("run %s failed: %s", shortRunID(run.ID), run.ErrorMessage)
			default:
				return fmt.Errorf("run %s did not settle (recorded as %s)", shortRunID(run.ID), run.Status)
			}
		},
	}

	cmd.Flags().BoolVar(&renameImages, "rename-images", false, "Describe and rename archived images after sorting")
	cmd.Flags().BoolVar(&sortPDFs, "sort-pdfs", false, "Sub-sort archived PDFs into topical subfolders after sorting")
	cmd.Flags().BoolVar(&processAll, "process-all", false, "Ignore the recent-file gate and sort everything")
	cmd.Flags().BoolVar(&noDelay, "no-delay", false, "Skip the pause between image description batches")

	return cmd
}

// newRunLogger writes structured records to the log file only; the terminal
// gets the same records through the stream hub tail instead, so lines are
// never printed twice.
func newRunLogger(cfg *config.Config, hub *logging.StreamHub) (*slog.Logger, error) {
	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
		Hub:              hub,
	})
}
