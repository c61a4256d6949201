package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"magpie/internal/runlog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(ctx, cmd, limit)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(ctx, cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func listRuns(ctx *commandContext, cmd *cobra.Command, limit int) error {
	store, err := runlog.Open(ctx.configValue())
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()

	runs, err := store.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortRunID(run.ID),
			string(run.Status),
			formatTimestamp(run.StartedAt),
			formatDuration(run.Duration()),
			fmt.Sprintf("%d", run.FilesMoved),
			fmt.Sprintf("%d", run.ImagesRenamed),
			fmt.Sprintf("%d", run.PDFsSorted),
		})
	}

	table := renderTable([]tableColumn{
		{Title: "Run"},
		{Title: "Status"},
		{Title: "Started"},
		{Title: "Duration", AlignRight: true},
		{Title: "Files", AlignRight: true},
		{Title: "Images", AlignRight: true},
		{Title: "PDFs", AlignRight: true},
	}, rows)
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runlog.Open(ctx.configValue())
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			run, err := store.FindRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("no run matches %q", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s\n", run.ID)
			fmt.Fprintf(out, "Status: %s\n", run.Status)
			fmt.Fprintf(out, "Started: %s\n", formatTimestamp(run.StartedAt))
			if run.FinishedAt != nil {
				fmt.Fprintf(out, "Finished: %s\n", formatTimestamp(*run.FinishedAt))
			}
			fmt.Fprintf(out, "Duration: %s\n", formatDuration(run.Duration()))
			fmt.Fprintf(out, "Options: process-all=%s rename-images=%s sort-pdfs=%s\n",
				yesNo(run.ProcessAll), yesNo(run.RenameImages), yesNo(run.SortPDFs))
			fmt.Fprintf(out, "Files organized: %d (folders: %d)\n", run.FilesMoved, run.FoldersMoved)
			fmt.Fprintf(out, "Images renamed: %d (repaired: %d)\n", run.ImagesRenamed, run.ImagesRepaired)
			fmt.Fprintf(out, "PDFs sorted: %d\n", run.PDFsSorted)
			if run.ErrorMessage != "" {
				fmt.Fprintf(out, "Error: %s\n", run.ErrorMessage)
			}

			entries, err := store.EntriesForRun(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No journal entries recorded")
				return nil
			}

			titler := cases.Title(language.Und)
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					titler.String(entry.Stage),
					entry.Name,
					strings.ReplaceAll(string(entry.Action), "_", " "),
					entry.Destination,
					entry.Detail,
				})
			}

			table := renderTable([]tableColumn{
				{Title: "Stage"},
				{Title: "Entry"},
				{Title: "Action"},
				{Title: "Destination"},
				{Title: "Detail"},
			}, rows)
			fmt.Fprintln(out, table)
			return nil
		},
	}
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded runs and journals",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runlog.Open(ctx.configValue())
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			removed, err := store.ClearRuns(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d runs\n", removed)
			return nil
		},
	}
}
