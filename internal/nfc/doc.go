// Package nfc renames extracted paths so every name component is in Unicode
// Normalization Form C.
//
// Normalize checks every affected directory for siblings that share an NFC
// form before touching the filesystem; any collision aborts the whole batch
// with a ConflictError. Renames then run deepest path first so renaming a
// directory never invalidates the paths of descendants still queued.
package nfc
