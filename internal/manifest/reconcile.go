package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"htrprep/internal/archive"
	"htrprep/internal/nfc"
)

// DefaultHeaderTokens are the field-0 values that mark row 0 as a header.
var DefaultHeaderTokens = []string{"path", "image", "file_name", "filename"}

// Record is one complete manifest row.
type Record struct {
	// Row is the zero-based record index; Line is the 1-based source line.
	Row  int
	Line int
	// Raw is field 0 as written in the manifest.
	Raw string
	// Filename is the cleaned NFC filename used for matching.
	Filename string
	Label    string
}

// Skipped is a row that could not form a record.
type Skipped struct {
	Row    int
	Line   int
	Reason string
	Fields []string
}

// Result partitions the complete records. Matched and Missing keep manifest
// order and never share a record.
type Result struct {
	Matched       []Record
	Missing       []Record
	Skipped       []Skipped
	HeaderSkipped bool
	Rows          int
}

// MissingSample returns up to n missing filenames in manifest order.
func (r *Result) MissingSample(n int) []string {
	if n > len(r.Missing) {
		n = len(r.Missing)
	}
	out := make([]string, 0, n)
	for _, rec := range r.Missing[:n] {
		out = append(out, rec.Filename)
	}
	return out
}

// ParseOptions controls manifest parsing.
type ParseOptions struct {
	Delimiter    rune
	HeaderTokens []string
}

// Parsed is the outcome of reading manifest rows.
type Parsed struct {
	Records       []Record
	Skipped       []Skipped
	HeaderSkipped bool
	Rows          int
}

// Parse reads delimited rows from r. Field 0 is the filename, field 1 the label.
func Parse(r io.Reader, opts ParseOptions) (*Parsed, error) {
	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	if reader.Comma == 0 {
		reader.Comma = ','
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	tokens := opts.HeaderTokens
	if len(tokens) == 0 {
		tokens = DefaultHeaderTokens
	}

	parsed := &Parsed{}
	for row := 0; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse manifest row %d: %w", row, err)
		}
		parsed.Rows++
		line, _ := reader.FieldPos(0)

		if row == 0 && isHeader(fields, tokens) {
			parsed.HeaderSkipped = true
			continue
		}
		if len(fields) < 2 {
			parsed.Skipped = append(parsed.Skipped, Skipped{Row: row, Line: line, Reason: "fewer than two fields", Fields: fields})
			continue
		}
		filename := CleanFilename(fields[0])
		if filename == "" {
			parsed.Skipped = append(parsed.Skipped, Skipped{Row: row, Line: line, Reason: "empty filename", Fields: fields})
			continue
		}
		parsed.Records = append(parsed.Records, Record{
			Row:      row,
			Line:     line,
			Raw:      fields[0],
			Filename: filename,
			Label:    strings.TrimSpace(fields[1]),
		})
	}
	return parsed, nil
}

func isHeader(fields []string, tokens []string) bool {
	if len(fields) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(fields[0]))
	for _, token := range tokens {
		if first == token {
			return true
		}
	}
	return false
}

// CleanFilename trims, NFC-normalizes, converts backslashes to slashes and
// strips leading "./" segments.
func CleanFilename(raw string) string {
	name := nfc.String(strings.TrimSpace(raw))
	name = strings.ReplaceAll(name, `\`, "/")
	for strings.HasPrefix(name, "./") {
		name = strings.TrimLeft(name[2:], "/")
	}
	return name
}

// FileSet is the set of extracted regular files, relative to an image root,
// spelled as they exist on disk.
type FileSet map[string]struct{}

// NewFileSet indexes the regular files among files that live under imageRoot
// (slash-separated, relative to the extraction root; empty means the root).
// Names are not normalized here: a file still in NFD on disk never matches
// an NFC manifest name.
func NewFileSet(files []archive.ExtractedFile, imageRoot string) FileSet {
	prefix := strings.Trim(nfc.String(imageRoot), "/")
	set := make(FileSet, len(files))
	for _, f := range files {
		if f.Kind != archive.KindFile {
			continue
		}
		rel := f.Rel
		if prefix != "" {
			if !strings.HasPrefix(rel, prefix+"/") {
				continue
			}
			rel = rel[len(prefix)+1:]
		}
		set[path.Clean(rel)] = struct{}{}
	}
	return set
}

// Contains reports whether name is in the set.
func (s FileSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Reconcile partitions parsed records by membership in present.
func Reconcile(parsed *Parsed, present FileSet) *Result {
	result := &Result{
		Skipped:       parsed.Skipped,
		HeaderSkipped: parsed.HeaderSkipped,
		Rows:          parsed.Rows,
	}
	for _, rec := range parsed.Records {
		if present.Contains(rec.Filename) {
			result.Matched = append(result.Matched, rec)
		} else {
			result.Missing = append(result.Missing, rec)
		}
	}
	return result
}
