package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/extmap"
	"magpie/internal/logging"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the category map",
	}

	rulesCmd.AddCommand(newRulesListCommand(ctx))
	rulesCmd.AddCommand(newRulesExclusionsCommand(ctx))

	return rulesCmd
}

func newRulesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories and the extensions they claim",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			m := extmap.Load(cfg.Paths.MapFile, logging.NewNop())

			out := cmd.OutOrStdout()
			if path := m.Path(); path != "" {
				fmt.Fprintf(out, "Map file: %s\n", path)
			}

			var rows [][]string
			for _, cat := range m.Snapshot() {
				if cat.Name == extmap.ExclusionsKey {
					continue
				}
				rows = append(rows, []string{cat.Name, strings.Join(cat.Entries, ", ")})
			}

			table := renderTable([]tableColumn{
				{Title: "Category"},
				{Title: "Extensions"},
			}, rows)
			fmt.Fprintln(out, table)
			return nil
		},
	}
}

func newRulesExclusionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "exclusions",
		Short: "List names and extensions the sorter skips",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			m := extmap.Load(cfg.Paths.MapFile, logging.NewNop())

			out := cmd.OutOrStdout()
			exclusions := m.Exclusions()
			if len(exclusions) == 0 {
				fmt.Fprintln(out, "No exclusions configured")
				return nil
			}

			fmt.Fprintln(out, "Skipped during staging sorts:")
			for _, entry := range exclusions {
				fmt.Fprintf(out, "  %s\n", entry)
			}
			return nil
		},
	}
}
