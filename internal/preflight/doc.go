// Package preflight provides readiness checks for the filesystem inputs and
// outputs a prepare run depends on.
//
// These checks run in two contexts:
//   - prepare.Run calls RunAll before the first stage and refuses to start
//     when any check fails, so a doomed run never half-extracts an archive.
//   - The CLI "htrprep prepare --check" prints the individual results.
//
// Inputs that are absent but have a download URL configured pass; the fetch
// stage will provide them.
package preflight
