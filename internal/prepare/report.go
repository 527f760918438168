package prepare

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"htrprep/internal/archive"
	"htrprep/internal/catalog"
	"htrprep/internal/config"
	"htrprep/internal/nfc"
	"htrprep/internal/report"
	"htrprep/internal/services"
	"htrprep/internal/textutil"
)

const (
	// maxReportedConflicts bounds the conflict lines copied into a report.
	maxReportedConflicts = 20
	maxReportedError     = 240
)

func buildReport(s *Summary, cfg *config.Config, started, finished time.Time, runErr error) *report.Report {
	rep := &report.Report{
		RunID:      s.RunID,
		Command:    s.Command,
		Status:     catalog.StatusSucceeded,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMS: finished.Sub(started).Milliseconds(),
	}
	if runErr != nil {
		rep.Status = catalog.StatusFailed
		rep.FailureKind = services.FailureKind(runErr)
		rep.Error = runErr.Error()
	}

	if x := s.Extraction; x != nil {
		section := &report.Archive{
			Path:       cfg.Paths.Archive,
			Format:     string(x.Format),
			Detected:   x.Verdict.Encoding.Name(),
			Reason:     x.Verdict.Reason,
			LeadOffset: x.Verdict.LeadOffset,
			Encoding:   x.Encoding.Name(),
			Attempted:  x.Attempted,
			Bytes:      x.Bytes,
		}
		for _, f := range x.Failures {
			section.Failures = append(section.Failures, report.AttemptFailure{Encoding: f.Encoding, Error: textutil.Truncate(f.Err.Error(), maxReportedError)})
		}
		section.Files, section.Dirs = countKinds(x.Files)
		rep.Archive = section
	}

	if s.Extraction != nil || len(s.Renames) > 0 {
		rep.Normalize = &report.Normalize{Renamed: len(s.Renames)}
	}
	var conflict *nfc.ConflictError
	if runErr != nil && errors.As(runErr, &conflict) {
		if rep.Normalize == nil {
			rep.Normalize = &report.Normalize{}
		}
		for i, c := range conflict.Conflicts {
			if i == maxReportedConflicts {
				break
			}
			rep.Normalize.Conflicts = append(rep.Normalize.Conflicts,
				fmt.Sprintf("%s: %s", c.Dir, strings.Join(c.Originals, " | ")))
		}
	}

	if m := s.Manifest; m != nil {
		rep.Manifest = &report.Manifest{
			Path:           m.Path,
			Encoding:       m.Encoding.Name(),
			Rewritten:      m.Rewritten,
			BOM:            m.BOM,
			Hint:           m.Hint,
			HintConfidence: m.HintConfidence,
		}
	}

	if rc := s.Reconcile; rc != nil {
		section := &report.Reconcile{
			Rows:          rc.Rows,
			HeaderSkipped: rc.HeaderSkipped,
			Matched:       len(rc.Matched),
			Missing:       len(rc.Missing),
			MissingSample: rc.MissingSample(cfg.Manifest.MissingSample),
		}
		for _, sk := range rc.Skipped {
			section.Skipped = append(section.Skipped, report.SkippedRow{Row: sk.Row, Line: sk.Line, Reason: sk.Reason})
		}
		rep.Reconcile = section
	}

	if l := s.Labels; l != nil {
		rep.Labels = &report.Labels{
			LabelFile:  l.LabelPath,
			DictFile:   l.DictPath,
			Lines:      l.Lines,
			Characters: l.Characters,
			Flattened:  l.Flattened,
		}
	}
	return rep
}

func countKinds(files []archive.ExtractedFile) (regular, dirs int) {
	for _, f := range files {
		switch f.Kind {
		case archive.KindFile:
			regular++
		case archive.KindDir:
			dirs++
		}
	}
	return regular, dirs
}
