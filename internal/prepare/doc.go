// Package prepare sequences the corpus preparation stages: preflight, fetch,
// extraction with encoding retry, NFC normalization, manifest decoding,
// reconciliation and label projection.
//
// A Runner owns the output directory for the duration of a run through an
// advisory lock, stamps every log record with the run ID and current stage,
// writes a JSON run report and, when enabled, records the run in the SQLite
// catalog. Stages run strictly in order; the first failure ends the run.
package prepare
