package archive_test

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/zeebo/blake3"

	"htrprep/internal/archive"
	"htrprep/internal/logging"
	"htrprep/internal/testsupport"
	"htrprep/internal/textenc"
)

func newExtractor(t *testing.T, sample int, candidates ...string) *archive.Extractor {
	t.Helper()
	if len(candidates) == 0 {
		candidates = []string{"utf-8", "windows-1250", "iso-8859-2"}
	}
	guess, err := textenc.ParseGuess(candidates)
	if err != nil {
		t.Fatalf("ParseGuess: %v", err)
	}
	return archive.NewExtractor(archive.Options{
		Guess:         guess,
		Policy:        textenc.LeadV2,
		SampleEntries: sample,
		Logger:        logging.NewNop(),
	})
}

func TestExtractUTF8ArchiveNeverTriesLegacy(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteTar(t, filepath.Join(dir, "utf8.tar.gz"), testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "skany/"},
		testsupport.ArchiveEntry{Name: "skany/plik_ą.jpg", Body: "image-a"},
		testsupport.ArchiveEntry{Name: "skany/zdanie.jpg", Body: "image-b"},
	)
	target := filepath.Join(dir, "out")

	result, err := newExtractor(t, 5).Extract(context.Background(), src, target)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !reflect.DeepEqual(result.Attempted, []string{"utf-8"}) {
		t.Fatalf("attempted = %v, want only utf-8", result.Attempted)
	}
	if result.Format != archive.FormatTarGzip {
		t.Fatalf("format = %s", result.Format)
	}
	if result.FileCount() != 2 {
		t.Fatalf("file count = %d", result.FileCount())
	}
	want := []string{"skany/", "skany/plik_ą.jpg", "skany/zdanie.jpg"}
	if got := testsupport.ListTree(t, target); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %v, want %v", got, want)
	}
	if got := testsupport.ReadFile(t, filepath.Join(target, "skany", "plik_ą.jpg")); got != "image-a" {
		t.Fatalf("content = %q", got)
	}
}

func TestExtractDetectsLegacyArchive(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out")

	result, err := newExtractor(t, 5).Extract(context.Background(), filepath.Join("testdata", "legacy-cp1250.tar.bz2"), target)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Format != archive.FormatTarBz2 {
		t.Fatalf("format = %s", result.Format)
	}
	if result.Verdict.Encoding.Name() != "windows-1250" || result.Verdict.Reason != "no-lead-byte" {
		t.Fatalf("verdict = %+v", result.Verdict)
	}
	if !reflect.DeepEqual(result.Attempted, []string{"windows-1250"}) {
		t.Fatalf("attempted = %v", result.Attempted)
	}

	cp1250, _ := textenc.Lookup("cp1250")
	wantA, _ := cp1250.Decode([]byte("plik_\xb9.jpg"))
	wantB, _ := cp1250.Decode([]byte("\x9fd\x9fb\xb3o.jpg"))
	want := []string{"skany/", "skany/" + wantA, "skany/" + wantB}
	if got := testsupport.ListTree(t, target); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %v, want %v", got, want)
	}
	if wantB != "źdźbło.jpg" {
		t.Fatalf("manual decode = %q", wantB)
	}
}

func TestExtractRetriesNextCandidate(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteTar(t, filepath.Join(dir, "mixed.tar.zst"), testsupport.CompressZstd,
		testsupport.ArchiveEntry{Name: "readme.txt", Body: "ascii first"},
		testsupport.ArchiveEntry{Name: "plik_\xb9.jpg", Body: "legacy"},
	)
	target := filepath.Join(dir, "out")

	result, err := newExtractor(t, 1).Extract(context.Background(), src, target)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Verdict.Reason != "ascii" {
		t.Fatalf("verdict = %+v", result.Verdict)
	}
	if !reflect.DeepEqual(result.Attempted, []string{"utf-8", "windows-1250"}) {
		t.Fatalf("attempted = %v", result.Attempted)
	}
	if len(result.Failures) != 1 || result.Failures[0].Encoding != "utf-8" {
		t.Fatalf("failures = %+v", result.Failures)
	}
	if result.Encoding.Name() != "windows-1250" {
		t.Fatalf("encoding = %s", result.Encoding)
	}
	want := []string{"plik_ą.jpg", "readme.txt"}
	if got := testsupport.ListTree(t, target); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %v, want %v", got, want)
	}
}

func TestExtractExhaustedWritesNothing(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteTar(t, filepath.Join(dir, "bad.tar"), testsupport.CompressNone,
		testsupport.ArchiveEntry{Name: "ok.txt", Body: "fine"},
		testsupport.ArchiveEntry{Name: "bad\x81.txt", Body: "undefined in cp1250"},
	)
	target := filepath.Join(dir, "out")

	_, err := newExtractor(t, 5, "utf-8", "windows-1250").Extract(context.Background(), src, target)
	var exhausted *textenc.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !reflect.DeepEqual(exhausted.Encodings(), []string{"windows-1250", "utf-8"}) {
		t.Fatalf("attempts = %v", exhausted.Encodings())
	}
	if _, statErr := os.Stat(filepath.Join(target, "ok.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("expected nothing written, stat err = %v", statErr)
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteTar(t, filepath.Join(dir, "evil.tar.gz"), testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "fine.txt", Body: "ok"},
		testsupport.ArchiveEntry{Name: "../escape.txt", Body: "nope"},
	)
	target := filepath.Join(dir, "out")

	result, err := newExtractor(t, 5).Extract(context.Background(), src, target)
	var structural *archive.StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("expected StructuralError, got %v (result %+v)", err, result)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "escape.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("escaping entry was written")
	}
	if _, statErr := os.Stat(filepath.Join(target, "fine.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("expected header pass to stop before writes")
	}
}

func TestExtractCorruptStreamIsStructural(t *testing.T) {
	dir := t.TempDir()
	data := testsupport.TarBytes(t, testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "a.txt", Body: "some content that will be cut"},
	)
	src := filepath.Join(dir, "truncated.tar.gz")
	testsupport.WriteFile(t, src, string(data[:len(data)/2]))

	_, err := newExtractor(t, 5).Extract(context.Background(), src, filepath.Join(dir, "out"))
	var structural *archive.StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
}

func TestExtractZipHonoursUTF8Flag(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteZip(t, filepath.Join(dir, "mixed.zip"),
		testsupport.ArchiveEntry{Name: "flagged_ą.jpg", Body: "utf8"},
		testsupport.ArchiveEntry{Name: "plain_\xb9.jpg", Body: "cp1250"},
	)
	target := filepath.Join(dir, "out")

	result, err := newExtractor(t, 5).Extract(context.Background(), src, target)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Format != archive.FormatZip {
		t.Fatalf("format = %s", result.Format)
	}
	if result.Encoding.Name() != "windows-1250" {
		t.Fatalf("encoding = %s (attempted %v)", result.Encoding, result.Attempted)
	}
	want := []string{"flagged_ą.jpg", "plain_ą.jpg"}
	if got := testsupport.ListTree(t, target); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %v, want %v", got, want)
	}
}

func TestExtractOverwritesAndDigests(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteTar(t, filepath.Join(dir, "plain.tar.lz4"), testsupport.CompressLZ4,
		testsupport.ArchiveEntry{Name: "nested/deep/a.txt", Body: "new"},
	)
	target := filepath.Join(dir, "out")
	testsupport.WriteFile(t, filepath.Join(target, "nested", "deep", "a.txt"), "previous longer content")

	result, err := newExtractor(t, 5).Extract(context.Background(), src, target)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := testsupport.ReadFile(t, filepath.Join(target, "nested", "deep", "a.txt")); got != "new" {
		t.Fatalf("content = %q, want overwrite", got)
	}

	var rels []string
	var file archive.ExtractedFile
	for _, f := range result.Files {
		rels = append(rels, f.Rel)
		if f.Kind == archive.KindFile {
			file = f
		}
	}
	if !reflect.DeepEqual(rels, []string{"nested", "nested/deep", "nested/deep/a.txt"}) {
		t.Fatalf("files = %v", rels)
	}
	sum := blake3.Sum256([]byte("new"))
	if file.Digest != hex.EncodeToString(sum[:]) || file.Size != 3 {
		t.Fatalf("file = %+v", file)
	}
	if file.Dir != filepath.Join(target, "nested", "deep") {
		t.Fatalf("dir = %s", file.Dir)
	}
}

func TestInspectReadsLeadingNames(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteTar(t, filepath.Join(dir, "names.tar"), testsupport.CompressNone,
		testsupport.ArchiveEntry{Name: "a.txt", Body: "1"},
		testsupport.ArchiveEntry{Name: "b_\xc4\x85.txt", Body: "2"},
		testsupport.ArchiveEntry{Name: "c.txt", Body: "3"},
	)

	inspection, err := newExtractor(t, 5).Inspect(context.Background(), src, 2)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(inspection.Names) != 2 {
		t.Fatalf("names = %d", len(inspection.Names))
	}
	if inspection.Format != archive.FormatTar {
		t.Fatalf("format = %s", inspection.Format)
	}
	if inspection.Verdict.Reason != "lead-byte" {
		t.Fatalf("verdict = %+v", inspection.Verdict)
	}
	if got := archive.EscapeName([]byte("x\xb9")); got != `"x\xb9"` {
		t.Fatalf("EscapeName = %s", got)
	}
}

func TestSniff(t *testing.T) {
	cases := map[string]archive.Format{
		"\x1f\x8b\x08":     archive.FormatTarGzip,
		"\x28\xb5\x2f\xfd": archive.FormatTarZstd,
		"\x04\x22\x4d\x18": archive.FormatTarLZ4,
		"BZh91AY":          archive.FormatTarBz2,
		"PK\x03\x04":       archive.FormatZip,
		"hello":            archive.FormatUnknown,
	}
	for head, want := range cases {
		if got := archive.Sniff([]byte(head)); got != want {
			t.Fatalf("Sniff(%q) = %s, want %s", head, got, want)
		}
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteTar(t, filepath.Join(dir, "a.tar"), testsupport.CompressNone,
		testsupport.ArchiveEntry{Name: "a.txt", Body: "1"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newExtractor(t, 5).Extract(ctx, src, filepath.Join(dir, "out")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScanMatchesExtraction(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteTar(t, filepath.Join(dir, "corpus.tar.zst"), testsupport.CompressZstd,
		testsupport.ArchiveEntry{Name: "skany/a.jpg", Body: "aa"},
		testsupport.ArchiveEntry{Name: "skany/b.jpg", Body: "bbb"},
	)
	target := filepath.Join(dir, "out")
	result, err := newExtractor(t, 5).Extract(context.Background(), src, target)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	scanned, err := archive.Scan(context.Background(), target, true)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !reflect.DeepEqual(scanned, result.Files) {
		t.Fatalf("scan = %+v\nextract = %+v", scanned, result.Files)
	}

	bare, err := archive.Scan(context.Background(), target, false)
	if err != nil {
		t.Fatalf("Scan without digests: %v", err)
	}
	for _, f := range bare {
		if f.Digest != "" {
			t.Fatalf("expected no digest for %s", f.Rel)
		}
	}
}
