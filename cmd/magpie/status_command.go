package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"magpie/internal/preflight"
	"magpie/internal/runlog"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check directories, the category map, the run lock, and the oracle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(stdout, line)
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			if !preflight.AllPassed(results) {
				fmt.Fprintln(stdout, renderStatusLine("Ready", statusWarn, "fix the failed checks before running", colorize))
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Last Run", colorize) {
				fmt.Fprintln(stdout, line)
			}

			store, err := runlog.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			run, err := store.LatestRun(cmd.Context())
			if err != nil {
				return err
			}
			if run == nil {
				fmt.Fprintln(stdout, "No runs recorded")
				return nil
			}

			kind := statusInfo
			detail := string(run.Status)
			switch run.Status {
			case runlog.StatusCompleted:
				kind = statusOK
				detail = run.Summary()
			case runlog.StatusFailed:
				kind = statusError
				detail = run.ErrorMessage
			case runlog.StatusRunning:
				kind = statusWarn
				detail = "still in progress"
			}
			fmt.Fprintln(stdout, renderStatusLine("Run "+shortRunID(run.ID), kind, detail, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Started", statusInfo, formatTimestamp(run.StartedAt), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Duration", statusInfo, formatDuration(run.Duration()), colorize))
			return nil
		},
	}
}
