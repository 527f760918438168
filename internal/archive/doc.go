// Package archive reads tar and zip containers whose entry names may be in an
// unknown single-byte encoding and extracts them under a target directory.
//
// Extraction with a candidate encoding runs in two passes: a header-only pass
// decodes every entry name and validates the resulting paths, then a write
// pass materializes files byte-for-byte. A name that fails to decode aborts
// the candidate before anything is written, so Extractor can retry the next
// candidate against a clean slate. Structural problems (corrupt streams,
// entries escaping the target) are independent of the encoding and abort
// immediately.
package archive
