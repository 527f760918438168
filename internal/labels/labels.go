// Package labels projects matched manifest records into a tab-separated label
// file and a character dictionary.
package labels

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"htrprep/internal/fileutil"
	"htrprep/internal/manifest"
	"htrprep/internal/textutil"
)

// Dictionary is the set of label characters sorted by code point.
type Dictionary []rune

// BuildDictionary collects the unique characters of every label.
func BuildDictionary(records []manifest.Record) Dictionary {
	seen := make(map[rune]struct{})
	for _, rec := range records {
		label, _ := textutil.FlattenField(rec.Label)
		for _, r := range label {
			seen[r] = struct{}{}
		}
	}
	dict := make(Dictionary, 0, len(seen))
	for r := range seen {
		dict = append(dict, r)
	}
	sort.Slice(dict, func(i, j int) bool { return dict[i] < dict[j] })
	return dict
}

// WriteTo writes one character per line.
func (d Dictionary) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, r := range d {
		written, err := fmt.Fprintf(bw, "%c\n", r)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// Options configures a projection.
type Options struct {
	LabelPath  string
	DictPath   string
	PathPrefix string
}

// Output summarizes the written artifacts.
type Output struct {
	LabelPath  string
	DictPath   string
	Lines      int
	Characters int
	// Flattened counts labels whose tabs or line breaks became spaces.
	Flattened int
}

// Project writes `<prefix+filename>\t<label>` per record in order and the
// dictionary of their labels. Both files are replaced atomically and are
// written even when records is empty.
func Project(records []manifest.Record, opts Options) (*Output, error) {
	out := &Output{LabelPath: opts.LabelPath, DictPath: opts.DictPath}

	err := fileutil.WriteAtomic(opts.LabelPath, 0o644, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, rec := range records {
			label, flattened := textutil.FlattenField(rec.Label)
			if flattened {
				out.Flattened++
			}
			if _, err := fmt.Fprintf(bw, "%s%s\t%s\n", opts.PathPrefix, rec.Filename, label); err != nil {
				return err
			}
			out.Lines++
		}
		return bw.Flush()
	})
	if err != nil {
		return nil, fmt.Errorf("write label file: %w", err)
	}

	dict := BuildDictionary(records)
	out.Characters = len(dict)
	err = fileutil.WriteAtomic(opts.DictPath, 0o644, func(w io.Writer) error {
		_, err := dict.WriteTo(w)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("write dictionary: %w", err)
	}
	return out, nil
}

// ReadDictionary loads a dictionary file written by Project.
func ReadDictionary(path string) (Dictionary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var dict Dictionary
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		for _, r := range scanner.Text() {
			dict = append(dict, r)
			break
		}
	}
	return dict, scanner.Err()
}
