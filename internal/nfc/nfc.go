package nfc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"htrprep/internal/archive"
	"htrprep/internal/logging"
)

// String returns the NFC form of s.
func String(s string) string {
	return norm.NFC.String(s)
}

// IsNormal reports whether s is already in NFC.
func IsNormal(s string) bool {
	return norm.NFC.IsNormalString(s)
}

// Conflict lists distinct names in one directory that share an NFC form.
type Conflict struct {
	Dir        string
	Normalized string
	Originals  []string
}

// ConflictError aborts normalization; no rename has been performed.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		quoted := make([]string, 0, len(c.Originals))
		for _, name := range c.Originals {
			quoted = append(quoted, fmt.Sprintf("%+q", name))
		}
		parts = append(parts, fmt.Sprintf("%s: %s all normalize to %+q", c.Dir, strings.Join(quoted, ", "), c.Normalized))
	}
	return fmt.Sprintf("nfc rename conflict: %s", strings.Join(parts, "; "))
}

// Rename is one executed filesystem rename.
type Rename struct {
	From string
	To   string
}

// Normalizer renames extracted paths to NFC.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer returns a Normalizer logging through logger.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logging.NewComponentLogger(logger, "nfc")}
}

// Normalize renames every non-NFC name component of files under root and
// returns the set with NFC relative names and updated paths, plus the renames
// performed.
func (n *Normalizer) Normalize(ctx context.Context, root string, files []archive.ExtractedFile) ([]archive.ExtractedFile, []Rename, error) {
	logger := logging.WithContext(ctx, n.logger)
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve root: %w", err)
	}

	conflicts, err := findConflicts(root, files)
	if err != nil {
		return nil, nil, err
	}
	if len(conflicts) > 0 {
		return nil, nil, &ConflictError{Conflicts: conflicts}
	}

	planned := planRenames(files)
	renames := make([]Rename, 0, len(planned))
	for _, r := range planned {
		if err := ctx.Err(); err != nil {
			return nil, renames, err
		}
		if err := os.Rename(r.From, r.To); err != nil {
			return nil, renames, fmt.Errorf("rename %s: %w", r.From, err)
		}
		logger.Debug("renamed to nfc", logging.String("from", r.From), logging.String("to", r.To))
		renames = append(renames, r)
	}
	if len(renames) > 0 {
		logger.Info("filenames normalized", logging.Int("renamed", len(renames)), logging.Int("entries", len(files)))
	}

	out := make([]archive.ExtractedFile, 0, len(files))
	for _, f := range files {
		rel := String(f.Rel)
		abs := filepath.Join(root, filepath.FromSlash(rel))
		f.Rel = rel
		f.Path = abs
		f.Dir = filepath.Dir(abs)
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out, renames, nil
}

// findConflicts scans every directory holding an extracted entry and groups
// its on-disk children by NFC form.
func findConflicts(root string, files []archive.ExtractedFile) ([]Conflict, error) {
	dirs := map[string]struct{}{root: {}}
	for _, f := range files {
		dirs[f.Dir] = struct{}{}
	}
	ordered := make([]string, 0, len(dirs))
	for dir := range dirs {
		ordered = append(ordered, dir)
	}
	sort.Strings(ordered)

	var conflicts []Conflict
	for _, dir := range ordered {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		groups := make(map[string][]string)
		for _, entry := range entries {
			key := String(entry.Name())
			groups[key] = append(groups[key], entry.Name())
		}
		keys := make([]string, 0, len(groups))
		for key, names := range groups {
			if len(names) > 1 {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			names := groups[key]
			sort.Strings(names)
			conflicts = append(conflicts, Conflict{Dir: dir, Normalized: key, Originals: names})
		}
	}
	return conflicts, nil
}

// planRenames orders renames deepest first: longest path, then lexicographic.
func planRenames(files []archive.ExtractedFile) []Rename {
	var renames []Rename
	for _, f := range files {
		base := path.Base(f.Rel)
		normalized := String(base)
		if normalized == base {
			continue
		}
		renames = append(renames, Rename{From: f.Path, To: filepath.Join(f.Dir, normalized)})
	}
	sort.Slice(renames, func(i, j int) bool {
		if len(renames[i].From) != len(renames[j].From) {
			return len(renames[i].From) > len(renames[j].From)
		}
		return renames[i].From < renames[j].From
	})
	return renames
}
