package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"htrprep/internal/catalog"
	"htrprep/internal/report"
	"htrprep/internal/services"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(store *catalog.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				headers := []string{"Run", "Command", "Started", "Status", "Archive enc", "Manifest enc", "Matched", "Missing"}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					status := run.Status
					if run.FailureKind != "" {
						status += " (" + run.FailureKind + ")"
					}
					rows = append(rows, []string{
						shortRunID(run.ID),
						run.Command,
						run.StartedAt.Local().Format(time.DateTime),
						status,
						dashIfEmpty(run.ArchiveEncoding),
						manifestEncodingLabel(run),
						strconv.Itoa(run.Matched),
						strconv.Itoa(run.Missing),
					})
				}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newMissingCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "missing [run-id]",
		Short: "List manifest rows without an extracted file (latest run by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}

			if !cfg.Catalog.Enabled {
				if runID != "" {
					return services.Wrap(services.ErrConfiguration, "cli", "missing",
						"run lookup needs catalog.enabled = true", nil)
				}
				rep, err := report.Load(cfg.Paths.ReportFile)
				if err != nil {
					return fmt.Errorf("load last report: %w", err)
				}
				if rep.Reconcile == nil {
					fmt.Fprintln(out, "Last run did not reconcile the manifest")
					return nil
				}
				fmt.Fprintf(out, "Run %s: %d missing (sample from %s)\n", rep.RunID, rep.Reconcile.Missing, cfg.Paths.ReportFile)
				for _, name := range rep.Reconcile.MissingSample {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			return ctx.withCatalog(func(store *catalog.Store) error {
				run, err := store.GetRun(cmd.Context(), runID)
				if err != nil {
					if errors.Is(err, services.ErrNotFound) && runID == "" {
						fmt.Fprintln(out, "No runs recorded")
						return nil
					}
					return err
				}
				names, err := store.MissingNames(cmd.Context(), run.ID, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s: %d missing\n", run.ID, run.Missing)
				if len(names) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(names))
				for _, m := range names {
					rows = append(rows, []string{strconv.Itoa(m.Row), m.Filename, m.Label})
				}
				fmt.Fprintln(out, renderTable([]string{"Row", "Filename", "Label"}, rows, []columnAlignment{alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of names to show (0 for all)")
	return cmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dashIfEmpty(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func manifestEncodingLabel(run catalog.Run) string {
	if run.ManifestEncoding == "" {
		return "-"
	}
	if run.ManifestRewritten {
		return run.ManifestEncoding + " (rewritten)"
	}
	return run.ManifestEncoding
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
