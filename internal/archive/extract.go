package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"htrprep/internal/fileutil"
	"htrprep/internal/logging"
	"htrprep/internal/textenc"
)

// Options configures an Extractor.
type Options struct {
	Guess         textenc.Guess
	Policy        textenc.Policy
	SampleEntries int
	Logger        *slog.Logger
}

// Extractor detects the name encoding of an archive and extracts it.
type Extractor struct {
	guess         textenc.Guess
	policy        textenc.Policy
	sampleEntries int
	logger        *slog.Logger
}

// NewExtractor builds an Extractor. A zero Policy selects textenc.DefaultPolicy.
func NewExtractor(opts Options) *Extractor {
	policy := opts.Policy
	if policy.Name == "" {
		policy = textenc.DefaultPolicy
	}
	sample := opts.SampleEntries
	if sample <= 0 {
		sample = 5
	}
	return &Extractor{
		guess:         opts.Guess,
		policy:        policy,
		sampleEntries: sample,
		logger:        logging.NewComponentLogger(opts.Logger, "archive"),
	}
}

// Result summarizes a successful extraction.
type Result struct {
	Format   Format
	Verdict  textenc.Verdict
	Encoding textenc.Encoding
	// Attempted lists every candidate tried, the winner last.
	Attempted []string
	Failures  []textenc.Attempt
	Files     []ExtractedFile
	Bytes     int64
	Duration  time.Duration
}

// FileCount returns the number of regular files extracted.
func (r *Result) FileCount() int {
	count := 0
	for _, f := range r.Files {
		if f.Kind == KindFile {
			count++
		}
	}
	return count
}

// Extract detects the name encoding of archivePath and extracts it into
// target, retrying the remaining candidates when names fail to decode. When
// every candidate fails the error is a *textenc.ExhaustedError.
func (x *Extractor) Extract(ctx context.Context, archivePath, target string) (*Result, error) {
	logger := logging.WithContext(ctx, x.logger)
	started := time.Now()

	root, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	inspection, err := x.Inspect(ctx, archivePath, x.sampleEntries)
	if err != nil {
		return nil, err
	}
	logger.Info("archive encoding detected",
		logging.String(logging.FieldEncoding, inspection.Verdict.Encoding.Name()),
		logging.String("reason", inspection.Verdict.Reason),
		logging.String("policy", x.policy.Name),
		logging.String("format", string(inspection.Format)),
		logging.Int("sample_entries", len(inspection.Names)),
	)

	result := &Result{Format: inspection.Format, Verdict: inspection.Verdict}
	exhausted := &textenc.ExhaustedError{Subject: archivePath}
	for _, enc := range x.guess.AttemptOrder(inspection.Verdict.Encoding) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Attempted = append(result.Attempted, enc.Name())
		logger.Debug("extracting with candidate", logging.String(logging.FieldEncoding, enc.Name()))

		files, written, err := x.extractWith(ctx, archivePath, root, enc)
		if err == nil {
			result.Encoding = enc
			result.Files = files
			result.Bytes = written
			result.Failures = exhausted.Attempts
			result.Duration = time.Since(started)
			logger.Info("archive extracted",
				logging.String(logging.FieldEncoding, enc.Name()),
				logging.Int("files", result.FileCount()),
				logging.String("size", humanize.Bytes(uint64(written))),
				logging.Duration("elapsed", result.Duration.Round(time.Millisecond)),
				logging.String(logging.FieldPath, root),
			)
			return result, nil
		}
		var nameErr *NameError
		if !errors.As(err, &nameErr) {
			return nil, err
		}
		exhausted.Attempts = append(exhausted.Attempts, textenc.Attempt{Encoding: enc.Name(), Err: err})
		logging.WarnWithContext(logger, "entry name rejected by candidate encoding", "decode_attempt_failed",
			logging.String(logging.FieldEncoding, enc.Name()),
			logging.Int("entry_index", nameErr.Index),
			logging.String("entry", EscapeName(nameErr.Raw)),
			logging.Error(nameErr.Err),
			logging.String(logging.FieldErrorHint, "add the archive code page to encoding.candidates if every candidate fails"),
			logging.String(logging.FieldImpact, "retrying extraction with the next candidate"),
		)
	}
	return nil, exhausted
}

type plannedEntry struct {
	entry  Entry
	rel    string
	target string
	skip   bool
}

// plan decodes every entry name with enc and resolves its target path
// without writing anything.
func (x *Extractor) plan(ctx context.Context, archivePath, root string, enc textenc.Encoding) ([]plannedEntry, error) {
	var planned []plannedEntry
	index := 0
	_, err := walk(archivePath, func(entry Entry, _ entryReader) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		defer func() { index++ }()
		nameEnc := enc
		if entry.UTF8Flag {
			nameEnc = textenc.UTF8()
		}
		name, err := nameEnc.Decode(entry.Name)
		if err != nil {
			return &NameError{Archive: archivePath, Index: index, Raw: entry.Name, Err: err}
		}
		rel := cleanEntryName(name)
		if rel == "." {
			planned = append(planned, plannedEntry{entry: entry, rel: rel, skip: true})
			return nil
		}
		target, err := safeJoin(root, rel)
		if err != nil {
			return &StructuralError{Archive: archivePath, Entry: name, Err: err}
		}
		planned = append(planned, plannedEntry{
			entry:  entry,
			rel:    rel,
			target: target,
			skip:   entry.Kind == KindOther,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return planned, nil
}

func (x *Extractor) extractWith(ctx context.Context, archivePath, root string, enc textenc.Encoding) ([]ExtractedFile, int64, error) {
	planned, err := x.plan(ctx, archivePath, root, enc)
	if err != nil {
		return nil, 0, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, 0, fmt.Errorf("create extraction root: %w", err)
	}

	files := make(map[string]ExtractedFile, len(planned))
	var written int64
	index := 0
	_, err = walk(archivePath, func(entry Entry, r entryReader) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if index >= len(planned) {
			return &StructuralError{Archive: archivePath, Err: errors.New("archive changed between passes")}
		}
		p := planned[index]
		index++
		if p.skip {
			if p.entry.Kind == KindOther {
				x.logger.Debug("skipping non-regular entry", logging.String("entry", p.rel))
			}
			return nil
		}
		switch p.entry.Kind {
		case KindDir:
			if err := os.MkdirAll(p.target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", p.rel, err)
			}
			files[p.rel] = ExtractedFile{Rel: p.rel, Path: p.target, Dir: filepath.Dir(p.target), Kind: KindDir}
		case KindFile:
			if err := os.MkdirAll(filepath.Dir(p.target), 0o755); err != nil {
				return fmt.Errorf("create parent of %s: %w", p.rel, err)
			}
			content, err := r.Content()
			if err != nil {
				return &StructuralError{Archive: archivePath, Entry: p.rel, Err: err}
			}
			mode := p.entry.Mode
			if mode == 0 {
				mode = 0o644
			}
			size, digest, err := fileutil.WriteStream(p.target, content, mode|0o600)
			if err != nil {
				var pathErr *os.PathError
				if errors.As(err, &pathErr) {
					return fmt.Errorf("write %s: %w", p.rel, err)
				}
				return &StructuralError{Archive: archivePath, Entry: p.rel, Err: err}
			}
			written += size
			files[p.rel] = ExtractedFile{Rel: p.rel, Path: p.target, Dir: filepath.Dir(p.target), Kind: KindFile, Size: size, Digest: digest}
		}
		return nil
	})
	if err != nil {
		return nil, written, err
	}
	addImpliedDirs(files, root)
	return sortedFiles(files), written, nil
}

// addImpliedDirs records parent directories created for files whose
// directories have no entry of their own.
func addImpliedDirs(files map[string]ExtractedFile, root string) {
	for rel := range files {
		for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if _, ok := files[dir]; ok {
				continue
			}
			abs := filepath.Join(root, filepath.FromSlash(dir))
			files[dir] = ExtractedFile{Rel: dir, Path: abs, Dir: filepath.Dir(abs), Kind: KindDir}
		}
	}
}

func sortedFiles(files map[string]ExtractedFile) []ExtractedFile {
	out := make([]ExtractedFile, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out
}

// errStopWalk ends a walk early without reporting an error.
var errStopWalk = errors.New("stop walk")

// Inspection is the result of reading the first entries of an archive.
type Inspection struct {
	Format  Format
	Names   [][]byte
	Kinds   []Kind
	Verdict textenc.Verdict
}

// Inspect reads the first n entry names without extracting. The verdict is
// always computed over the configured sample size, whatever n is.
func (x *Extractor) Inspect(ctx context.Context, archivePath string, n int) (*Inspection, error) {
	if n <= 0 {
		n = x.sampleEntries
	}
	limit := max(n, x.sampleEntries)
	inspection := &Inspection{}
	format, err := walk(archivePath, func(entry Entry, _ entryReader) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		inspection.Names = append(inspection.Names, entry.Name)
		inspection.Kinds = append(inspection.Kinds, entry.Kind)
		if len(inspection.Names) >= limit {
			return errStopWalk
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, err
	}
	inspection.Format = format
	inspection.Verdict = x.policy.Detect(textenc.Sample(inspection.Names, x.sampleEntries), x.guess)
	if len(inspection.Names) > n {
		inspection.Names = inspection.Names[:n]
		inspection.Kinds = inspection.Kinds[:n]
	}
	return inspection, nil
}
