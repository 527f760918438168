// Package config loads, normalizes, and validates htrprep configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), resolves relative artifact paths against the output directory,
// reads TOML files, and honours environment fallbacks for the source URLs. The
// Config type is the single structure handed to the pipeline entry point; no
// package keeps its own global paths or URLs.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, a resolvable encoding candidate list, and clear validation
// errors.
package config
