package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"htrprep/internal/preflight"
	"htrprep/internal/prepare"
	"htrprep/internal/report"
)

func newPrepareCommand(ctx *commandContext) *cobra.Command {
	var clean bool
	var checkOnly bool
	var format string

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Fetch, extract, normalize and reconcile the corpus, then write labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			if checkOnly {
				results, err := runner.Check(cmd.Context())
				printPreflight(cmd.OutOrStdout(), results)
				return err
			}
			summary, err := runner.Prepare(cmd.Context(), prepare.RunOptions{Clean: clean})
			return renderSummary(cmd, summary, outFormat, err)
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", false, "Remove the extraction directory before extracting")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Run preflight checks only")
	addFormatFlag(cmd.Flags(), &format)
	return cmd
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var format string
	var allowMissing bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Reconcile the manifest against an existing extraction",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			summary, err := runner.Verify(cmd.Context())
			if err := renderSummary(cmd, summary, outFormat, err); err != nil {
				return err
			}
			if missing := summary.MissingCount(); missing > 0 && !allowMissing {
				return fmt.Errorf("verify: %d manifest entries have no extracted file", missing)
			}
			return nil
		},
	}

	addFormatFlag(cmd.Flags(), &format)
	cmd.Flags().BoolVar(&allowMissing, "allow-missing", false, "Exit successfully even when manifest entries are missing")
	return cmd
}

func newLabelsCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Write the label file and dictionary from an existing extraction",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			summary, err := runner.Labels(cmd.Context())
			return renderSummary(cmd, summary, outFormat, err)
		},
	}

	addFormatFlag(cmd.Flags(), &format)
	return cmd
}

// renderSummary prints the run report, if any, and passes runErr through.
func renderSummary(cmd *cobra.Command, summary *prepare.Summary, format report.Format, runErr error) error {
	if summary == nil || summary.Report == nil {
		return runErr
	}
	out := cmd.OutOrStdout()
	if err := summary.Report.Render(out, format, shouldColorize(out)); err != nil && runErr == nil {
		return fmt.Errorf("render report: %w", err)
	}
	return runErr
}

func printPreflight(out io.Writer, results []preflight.Result) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Preflight", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, res := range results {
		kind := statusOK
		if !res.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(res.Name, kind, res.Detail, colorize))
	}
}

func addFormatFlag(flags *pflag.FlagSet, target *string) {
	flags.StringVarP(target, "format", "f", "table", "Report format (table, json, yaml)")
}
