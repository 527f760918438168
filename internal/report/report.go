// Package report describes the outcome of a prepare run and renders it as
// JSON, YAML or a terminal table.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"htrprep/internal/fileutil"
)

// Format selects a rendering.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// ParseFormat accepts json, yaml (or yml) and table.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "table", "text":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", value)
	}
}

// Report is the persisted summary of one run.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Command     string    `json:"command" yaml:"command"`
	Status      string    `json:"status" yaml:"status"`
	FailureKind string    `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	DurationMS  int64     `json:"duration_ms" yaml:"duration_ms"`

	Archive   *Archive   `json:"archive,omitempty" yaml:"archive,omitempty"`
	Normalize *Normalize `json:"normalize,omitempty" yaml:"normalize,omitempty"`
	Manifest  *Manifest  `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Reconcile *Reconcile `json:"reconcile,omitempty" yaml:"reconcile,omitempty"`
	Labels    *Labels    `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Archive describes the extraction stage.
type Archive struct {
	Path       string           `json:"path" yaml:"path"`
	Format     string           `json:"format" yaml:"format"`
	Detected   string           `json:"detected" yaml:"detected"`
	Reason     string           `json:"reason" yaml:"reason"`
	LeadOffset int              `json:"lead_offset" yaml:"lead_offset"`
	Encoding   string           `json:"encoding" yaml:"encoding"`
	Attempted  []string         `json:"attempted" yaml:"attempted"`
	Failures   []AttemptFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Files      int              `json:"files" yaml:"files"`
	Dirs       int              `json:"dirs" yaml:"dirs"`
	Bytes      int64            `json:"bytes" yaml:"bytes"`
}

// AttemptFailure records one rejected candidate encoding.
type AttemptFailure struct {
	Encoding string `json:"encoding" yaml:"encoding"`
	Error    string `json:"error" yaml:"error"`
}

// Normalize describes the NFC rename stage.
type Normalize struct {
	Renamed   int      `json:"renamed" yaml:"renamed"`
	Conflicts []string `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
}

// Manifest describes the manifest decode stage.
type Manifest struct {
	Path           string `json:"path" yaml:"path"`
	Encoding       string `json:"encoding" yaml:"encoding"`
	Rewritten      bool   `json:"rewritten" yaml:"rewritten"`
	BOM            bool   `json:"bom" yaml:"bom"`
	Hint           string `json:"hint,omitempty" yaml:"hint,omitempty"`
	HintConfidence int    `json:"hint_confidence,omitempty" yaml:"hint_confidence,omitempty"`
}

// Reconcile describes manifest-to-file matching.
type Reconcile struct {
	Rows          int          `json:"rows" yaml:"rows"`
	HeaderSkipped bool         `json:"header_skipped" yaml:"header_skipped"`
	Matched       int          `json:"matched" yaml:"matched"`
	Missing       int          `json:"missing" yaml:"missing"`
	MissingSample []string     `json:"missing_sample,omitempty" yaml:"missing_sample,omitempty"`
	Skipped       []SkippedRow `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// SkippedRow is an incomplete manifest row.
type SkippedRow struct {
	Row    int    `json:"row" yaml:"row"`
	Line   int    `json:"line" yaml:"line"`
	Reason string `json:"reason" yaml:"reason"`
}

// Labels describes the projected artifacts.
type Labels struct {
	LabelFile  string `json:"label_file" yaml:"label_file"`
	DictFile   string `json:"dict_file" yaml:"dict_file"`
	Lines      int    `json:"lines" yaml:"lines"`
	Characters int    `json:"characters" yaml:"characters"`
	Flattened  int    `json:"flattened,omitempty" yaml:"flattened,omitempty"`
}

// Render writes r to w in the requested format.
func (r *Report) Render(w io.Writer, format Format, colorize bool) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		_, err := io.WriteString(w, renderTable(r, colorize))
		return err
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// Write stores r as indented JSON at path, replacing any previous report atomically.
func Write(path string, r *Report) error {
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return r.Render(w, FormatJSON, false)
	})
}

// Load reads a JSON report written by Write.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
