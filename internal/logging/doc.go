// Package logging assembles structured slog loggers and formatting helpers used
// across htrprep stages.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so stage code can automatically tag log lines
// with the run identifier and the stage that produced them. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every stage emits
// records with the same shape.
package logging
