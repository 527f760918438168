package manifest_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"htrprep/internal/archive"
	"htrprep/internal/logging"
	"htrprep/internal/manifest"
	"htrprep/internal/textenc"
)

func decoder(t *testing.T, candidates ...string) *manifest.Decoder {
	t.Helper()
	if len(candidates) == 0 {
		candidates = []string{"utf-8", "windows-1250", "iso-8859-2"}
	}
	guess, err := textenc.ParseGuess(candidates)
	if err != nil {
		t.Fatalf("ParseGuess: %v", err)
	}
	return manifest.NewDecoder(guess, logging.NewNop())
}

func writeManifest(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.csv")
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestDecodeFileRewritesLegacyManifest(t *testing.T) {
	path := writeManifest(t, []byte("filename,label\nplik_\xb9.jpg,\xb9\xe6\n"))

	decoded, err := decoder(t).DecodeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if decoded.Encoding.Name() != "windows-1250" || !decoded.Rewritten {
		t.Fatalf("decoded = %+v", decoded)
	}
	want := "filename,label\nplik_ą.jpg,ąć\n"
	if decoded.Text != want {
		t.Fatalf("text = %q", decoded.Text)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(onDisk) != want {
		t.Fatalf("file not rewritten as utf-8: %q", onDisk)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("mode = %v", info.Mode().Perm())
	}

	again, err := decoder(t).DecodeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("second DecodeFile: %v", err)
	}
	if !again.Encoding.IsUTF8() || again.Rewritten {
		t.Fatalf("second decode = %+v", again)
	}
}

func TestDecodeFileStripsBOMWithoutRewrite(t *testing.T) {
	original := append([]byte{0xEF, 0xBB, 0xBF}, []byte("path,label\nplik_ą.jpg,ą\n")...)
	path := writeManifest(t, original)

	decoded, err := decoder(t).DecodeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if !decoded.BOM || decoded.Rewritten || !decoded.Encoding.IsUTF8() {
		t.Fatalf("decoded = %+v", decoded)
	}
	if strings.HasPrefix(decoded.Text, "\ufeff") {
		t.Fatal("BOM not stripped")
	}
	onDisk, _ := os.ReadFile(path)
	if string(onDisk) != string(original) {
		t.Fatal("utf-8 manifest must not be rewritten")
	}
}

func TestDecodeFallsThroughToLatin2(t *testing.T) {
	// 0x81 is undefined in Windows-1250 but valid in ISO-8859-2.
	text, enc, _, err := decoder(t).Decode("m", []byte("a,\x81\xb1"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if enc.Name() != "iso-8859-2" || !strings.HasSuffix(text, "ą") {
		t.Fatalf("decoded %q as %s", text, enc)
	}
}

func TestDecodeExhausted(t *testing.T) {
	path := writeManifest(t, []byte("a,\x81\n"))
	_, err := decoder(t, "utf-8", "windows-1250").DecodeFile(context.Background(), path)
	var exhausted *textenc.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !reflect.DeepEqual(exhausted.Encodings(), []string{"utf-8", "windows-1250"}) {
		t.Fatalf("attempts = %v", exhausted.Encodings())
	}
}

func parse(t *testing.T, text string, opts manifest.ParseOptions) *manifest.Parsed {
	t.Helper()
	parsed, err := manifest.Parse(strings.NewReader(text), opts)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return parsed
}

func fileSet(rels ...string) []archive.ExtractedFile {
	files := make([]archive.ExtractedFile, 0, len(rels))
	for _, rel := range rels {
		files = append(files, archive.ExtractedFile{Rel: rel, Kind: archive.KindFile})
	}
	return files
}

func filenames(records []manifest.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Filename)
	}
	return out
}

func TestPolishExample(t *testing.T) {
	parsed := parse(t, "filename,label\nplik_ą.jpg,ą\nmissing.jpg,x\n", manifest.ParseOptions{})
	result := manifest.Reconcile(parsed, manifest.NewFileSet(fileSet("plik_ą.jpg"), ""))

	if !reflect.DeepEqual(filenames(result.Matched), []string{"plik_ą.jpg"}) {
		t.Fatalf("matched = %v", filenames(result.Matched))
	}
	if result.Matched[0].Label != "ą" {
		t.Fatalf("label = %q", result.Matched[0].Label)
	}
	if !reflect.DeepEqual(filenames(result.Missing), []string{"missing.jpg"}) {
		t.Fatalf("missing = %v", filenames(result.Missing))
	}
}

func TestHeaderExclusion(t *testing.T) {
	for _, header := range []string{"path", " Image ", "FILE_NAME", "filename"} {
		parsed := parse(t, header+",label\na.jpg,a\n", manifest.ParseOptions{})
		if !parsed.HeaderSkipped {
			t.Fatalf("header %q not skipped", header)
		}
		result := manifest.Reconcile(parsed, manifest.NewFileSet(nil, ""))
		for _, rec := range append(result.Matched, result.Missing...) {
			if strings.EqualFold(strings.TrimSpace(rec.Raw), strings.TrimSpace(header)) {
				t.Fatalf("header row leaked into results: %+v", rec)
			}
		}
		if len(result.Missing) != 1 {
			t.Fatalf("missing = %v", filenames(result.Missing))
		}
	}

	// Only row 0 is a header candidate.
	parsed := parse(t, "a.jpg,a\nfilename,label\n", manifest.ParseOptions{})
	if parsed.HeaderSkipped || len(parsed.Records) != 2 {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestParseSkipsIncompleteRows(t *testing.T) {
	text := "a.jpg,a\n\nonly-one-field\n  ,label\nb.jpg,b,extra\n"
	parsed := parse(t, text, manifest.ParseOptions{})

	if !reflect.DeepEqual(filenames(parsed.Records), []string{"a.jpg", "b.jpg"}) {
		t.Fatalf("records = %v", filenames(parsed.Records))
	}
	if len(parsed.Skipped) != 2 {
		t.Fatalf("skipped = %+v", parsed.Skipped)
	}
	if parsed.Skipped[0].Reason != "fewer than two fields" || parsed.Skipped[1].Reason != "empty filename" {
		t.Fatalf("skip reasons = %+v", parsed.Skipped)
	}
	if parsed.Skipped[0].Line != 3 {
		t.Fatalf("skipped line = %d, want 3", parsed.Skipped[0].Line)
	}

	result := manifest.Reconcile(parsed, manifest.NewFileSet(fileSet("a.jpg"), ""))
	if len(result.Matched)+len(result.Missing) != len(parsed.Records) {
		t.Fatalf("matched+missing != complete records")
	}
}

func TestCleanFilename(t *testing.T) {
	cases := map[string]string{
		"  plik.jpg ":      "plik.jpg",
		`.\skany\plik.jpg`: "skany/plik.jpg",
		"././a.jpg":        "a.jpg",
		"plik_a\u0328.jpg": "plik_\u0105.jpg",
		"":                 "",
	}
	for in, want := range cases {
		if got := manifest.CleanFilename(in); got != want {
			t.Fatalf("CleanFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReconcileIsOrderIndependent(t *testing.T) {
	text := "path,label\nimg/c.jpg,c\nimg/a.jpg,a\nimg/x.jpg,x\nimg/b.jpg,b\nimg/y.jpg,y\n"
	parsed := parse(t, text, manifest.ParseOptions{})
	files := fileSet("img/a.jpg", "img/b.jpg", "img/c.jpg", "other/x.jpg")
	baseline := manifest.Reconcile(parsed, manifest.NewFileSet(files, ""))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]archive.ExtractedFile(nil), files...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := manifest.Reconcile(parsed, manifest.NewFileSet(shuffled, ""))
		if !reflect.DeepEqual(got, baseline) {
			t.Fatalf("result depends on discovery order")
		}
	}
	if !reflect.DeepEqual(filenames(baseline.Matched), []string{"img/c.jpg", "img/a.jpg", "img/b.jpg"}) {
		t.Fatalf("matched = %v", filenames(baseline.Matched))
	}
	if !reflect.DeepEqual(baseline.MissingSample(1), []string{"img/x.jpg"}) {
		t.Fatalf("missing sample = %v", baseline.MissingSample(1))
	}
}

func TestFileSetImageRootAndKinds(t *testing.T) {
	files := []archive.ExtractedFile{
		{Rel: "root/images", Kind: archive.KindDir},
		{Rel: "root/images/a.jpg", Kind: archive.KindFile},
		{Rel: "root/other.jpg", Kind: archive.KindFile},
	}
	set := manifest.NewFileSet(files, "/root/images/")
	if !set.Contains("a.jpg") || set.Contains("other.jpg") || len(set) != 1 {
		t.Fatalf("set = %v", set)
	}
}

func TestParseTabDelimiter(t *testing.T) {
	parsed := parse(t, "a.jpg\tzdanie, z przecinkiem\n", manifest.ParseOptions{Delimiter: '\t'})
	if len(parsed.Records) != 1 || parsed.Records[0].Label != "zdanie, z przecinkiem" {
		t.Fatalf("records = %+v", parsed.Records)
	}
}

func TestFileSetKeepsOnDiskSpelling(t *testing.T) {
	parsed := parse(t, "plik_\u0105.jpg,tekst\n", manifest.ParseOptions{})
	result := manifest.Reconcile(parsed, manifest.NewFileSet(fileSet("plik_a\u0328.jpg"), ""))
	if len(result.Matched) != 0 || len(result.Missing) != 1 {
		t.Fatalf("decomposed file matched an nfc row: matched=%v missing=%v",
			filenames(result.Matched), filenames(result.Missing))
	}
}
