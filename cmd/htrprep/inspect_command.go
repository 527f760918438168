package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"htrprep/internal/archive"
	"htrprep/internal/textenc"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var entries int

	cmd := &cobra.Command{
		Use:   "inspect [archive]",
		Short: "Show leading entry names and the detected name encoding",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			path := cfg.Paths.Archive
			if len(args) == 1 {
				path = args[0]
			}
			guess, err := textenc.ParseGuess(cfg.Encoding.Candidates)
			if err != nil {
				return err
			}
			policy, err := textenc.PolicyByName(cfg.Encoding.DetectorPolicy)
			if err != nil {
				return err
			}
			extractor := archive.NewExtractor(archive.Options{
				Guess:         guess,
				Policy:        policy,
				SampleEntries: cfg.Encoding.SampleEntries,
				Logger:        logger,
			})
			inspection, err := extractor.Inspect(cmd.Context(), path, entries)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			verdict := inspection.Verdict
			fmt.Fprintf(out, "Archive:  %s\n", path)
			fmt.Fprintf(out, "Format:   %s\n", inspection.Format)
			fmt.Fprintf(out, "Detected: %s (%s, policy %s, sample %d)\n",
				verdict.Encoding.Name(), verdict.Reason, policy.Name, cfg.Encoding.SampleEntries)
			if verdict.LeadOffset >= 0 {
				fmt.Fprintf(out, "Lead byte at sample offset %d\n", verdict.LeadOffset)
			}
			fmt.Fprintln(out)

			headers := []string{"#", "Kind", "Raw", "Decoded"}
			rows := make([][]string, 0, len(inspection.Names))
			for i, raw := range inspection.Names {
				decoded, err := verdict.Encoding.Decode(raw)
				if err != nil {
					decoded = "(undecodable: " + strings.TrimSpace(err.Error()) + ")"
				}
				rows = append(rows, []string{
					strconv.Itoa(i),
					inspection.Kinds[i].String(),
					archive.EscapeName(raw),
					decoded,
				})
			}
			fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().IntVarP(&entries, "entries", "n", 20, "Number of entries to list")
	return cmd
}
