// Package textenc resolves candidate character encodings, decodes byte strings
// strictly, and classifies raw archive entry names as UTF-8 or legacy single-byte.
//
// Decoding is pure Go on top of golang.org/x/text: UTF-8 is validated with the
// standard library, legacy code pages come from charmap and are looked up via
// ianaindex plus a short alias table for the cpNNNN spellings. A byte that a
// code page leaves undefined is a decode failure, never a replacement rune.
//
// The lead-byte heuristic lives behind Policy so the byte range can change
// without touching callers. Detection only picks the first candidate to try;
// callers retry the remaining candidates of a Guess when a decode fails.
package textenc
