// Package manifest decodes the label manifest and reconciles its rows with the
// set of extracted files.
//
// Decoding is an ordered strict trial over the configured candidates; the
// first encoding that accepts every byte wins and a legacy manifest is
// rewritten as UTF-8 in place. Reconciliation parses delimited rows, drops a
// recognized header at row 0, normalizes filenames to NFC, and partitions the
// complete rows into matched and missing while keeping manifest order.
package manifest
