// Package services defines shared utilities consumed by the pipeline stages and
// their external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers and stage names for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification uniform (decode exhaustion, corrupt archives, rename
//     conflicts, configuration problems).
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay consistent across the pipeline.
package services
