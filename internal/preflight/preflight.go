package preflight

import (
	"context"
	"fmt"
	"strings"

	"htrprep/internal/config"
)

// expansionFactor estimates extracted size relative to a compressed archive.
const expansionFactor = 2

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	results = append(results, CheckInput("Archive", cfg.Paths.Archive, cfg.Sources.ArchiveURL))
	results = append(results, CheckInput("Manifest", cfg.Paths.Manifest, cfg.Sources.ManifestURL))

	if size, ok := fileSize(cfg.Paths.Archive); ok {
		results = append(results, CheckFreeSpace("Free space", nearestDir(cfg.Paths.ExtractDir), uint64(size)*expansionFactor))
	}
	return results
}

// Failures returns the failed results.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Error folds failed results into one error, or returns nil.
func Error(results []Result) error {
	failed := Failures(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}
