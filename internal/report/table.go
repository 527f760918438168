package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func renderTable(r *Report, colorize bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("Run %s (%s)", shortID(r.RunID), statusText(r.Status, colorize)))
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, WidthMax: 80},
	})

	tw.AppendRow(table.Row{"Command", r.Command})
	tw.AppendRow(table.Row{"Duration", humanDuration(r.DurationMS)})
	if r.Error != "" {
		tw.AppendRow(table.Row{"Failure", r.FailureKind})
		tw.AppendRow(table.Row{"Error", r.Error})
	}

	if a := r.Archive; a != nil {
		tw.AppendSeparator()
		tw.AppendRow(table.Row{"Archive", a.Path})
		tw.AppendRow(table.Row{"Format", a.Format})
		tw.AppendRow(table.Row{"Detected", fmt.Sprintf("%s (%s)", a.Detected, a.Reason)})
		tw.AppendRow(table.Row{"Name encoding", a.Encoding})
		tw.AppendRow(table.Row{"Attempted", strings.Join(a.Attempted, ", ")})
		for _, f := range a.Failures {
			tw.AppendRow(table.Row{"Rejected " + f.Encoding, f.Error})
		}
		tw.AppendRow(table.Row{"Extracted", fmt.Sprintf("%d files, %d dirs, %s", a.Files, a.Dirs, humanize.Bytes(uint64(max(a.Bytes, 0))))})
	}
	if n := r.Normalize; n != nil {
		tw.AppendRow(table.Row{"NFC renames", strconv.Itoa(n.Renamed)})
		for _, c := range n.Conflicts {
			tw.AppendRow(table.Row{"Conflict", c})
		}
	}
	if m := r.Manifest; m != nil {
		tw.AppendSeparator()
		tw.AppendRow(table.Row{"Manifest", m.Path})
		enc := m.Encoding
		if m.Rewritten {
			enc += " (rewritten as utf-8)"
		}
		tw.AppendRow(table.Row{"Manifest encoding", enc})
		if m.Hint != "" {
			tw.AppendRow(table.Row{"Charset hint", fmt.Sprintf("%s (%d%%)", m.Hint, m.HintConfidence)})
		}
	}
	if rc := r.Reconcile; rc != nil {
		tw.AppendSeparator()
		tw.AppendRow(table.Row{"Rows", strconv.Itoa(rc.Rows)})
		tw.AppendRow(table.Row{"Matched", strconv.Itoa(rc.Matched)})
		missing := strconv.Itoa(rc.Missing)
		if rc.Missing > 0 && colorize {
			missing = text.FgYellow.Sprint(missing)
		}
		tw.AppendRow(table.Row{"Missing", missing})
		for _, name := range rc.MissingSample {
			tw.AppendRow(table.Row{"", name})
		}
		if len(rc.Skipped) > 0 {
			tw.AppendRow(table.Row{"Skipped rows", strconv.Itoa(len(rc.Skipped))})
		}
	}
	if l := r.Labels; l != nil {
		tw.AppendSeparator()
		tw.AppendRow(table.Row{"Label file", fmt.Sprintf("%s (%d lines)", l.LabelFile, l.Lines)})
		tw.AppendRow(table.Row{"Dictionary", fmt.Sprintf("%s (%d chars)", l.DictFile, l.Characters)})
	}
	return tw.Render() + "\n"
}

func statusText(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch status {
	case "succeeded":
		return text.FgGreen.Sprint(status)
	case "failed":
		return text.FgRed.Sprint(status)
	default:
		return text.FgYellow.Sprint(status)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
