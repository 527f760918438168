// Command htrprep prepares a handwritten-text-recognition training corpus:
// it fetches the image archive and label manifest, extracts the archive with
// its filenames decoded and normalized to NFC, reconciles the manifest against
// the extracted files and writes a label file plus a character dictionary.
//
// Subcommands:
//
//	prepare           run the whole pipeline
//	inspect [archive] print leading entry names and the detected name encoding
//	verify            reconcile the manifest against an existing extraction
//	labels            project labels from an existing extraction
//	runs              list recorded runs
//	missing [run-id]  list manifest rows without a file
//	config init       write a sample configuration
//	config validate   load and validate the configuration
package main
