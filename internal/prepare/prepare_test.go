package prepare_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"htrprep/internal/config"
	"htrprep/internal/logging"
	"htrprep/internal/prepare"
	"htrprep/internal/report"
	"htrprep/internal/services"
	"htrprep/internal/testsupport"
)

func newRunner(t *testing.T, cfg *config.Config, opts ...prepare.Option) *prepare.Runner {
	t.Helper()
	runner, err := prepare.New(cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("prepare.New: %v", err)
	}
	return runner
}

func TestPrepareLegacyArchiveAndManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTar(t, cfg.Paths.Archive, testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "skany/"},
		testsupport.ArchiveEntry{Name: "skany/plik_\xb9.jpg", Body: "img-1"},
		testsupport.ArchiveEntry{Name: "skany/\x9fd\x9fb\xb3o.jpg", Body: "img-2"},
	)
	// windows-1250 manifest: "źdźbło" and "ą" encoded as single bytes.
	testsupport.WriteFile(t, cfg.Paths.Manifest,
		"filename,label\r\nskany/plik_\xb9.jpg,tekst\r\nskany/\x9fd\x9fb\xb3o.jpg,\x9fd\x9fb\xb3o\r\nskany/missing.jpg,x\r\n")

	summary, err := newRunner(t, cfg).Prepare(context.Background(), prepare.RunOptions{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if got := summary.Extraction.Encoding.Name(); got != "windows-1250" {
		t.Fatalf("archive encoding = %s, want windows-1250", got)
	}
	wantTree := []string{"skany/", "skany/plik_ą.jpg", "skany/źdźbło.jpg"}
	if got := testsupport.ListTree(t, cfg.Paths.ExtractDir); !reflect.DeepEqual(got, wantTree) {
		t.Fatalf("tree = %q, want %q", got, wantTree)
	}
	if got := testsupport.ReadFile(t, filepath.Join(cfg.Paths.ExtractDir, "skany", "plik_ą.jpg")); got != "img-1" {
		t.Fatalf("content = %q", got)
	}

	if !summary.Manifest.Rewritten || summary.Manifest.Encoding.Name() != "windows-1250" {
		t.Fatalf("manifest decode = %+v", summary.Manifest)
	}
	wantManifest := "filename,label\r\nskany/plik_ą.jpg,tekst\r\nskany/źdźbło.jpg,źdźbło\r\nskany/missing.jpg,x\r\n"
	if got := testsupport.ReadFile(t, cfg.Paths.Manifest); got != wantManifest {
		t.Fatalf("manifest not rewritten as utf-8: %q", got)
	}

	if summary.MissingCount() != 1 || summary.Reconcile.Missing[0].Filename != "skany/missing.jpg" {
		t.Fatalf("missing = %+v", summary.Reconcile.Missing)
	}
	wantLabels := []string{
		"skany/plik_ą.jpg\ttekst",
		"skany/źdźbło.jpg\tźdźbło",
	}
	if got := testsupport.Lines(testsupport.ReadFile(t, cfg.Paths.LabelFile)); !reflect.DeepEqual(got, wantLabels) {
		t.Fatalf("labels = %q", got)
	}
	wantDict := []string{"b", "d", "e", "k", "o", "s", "t", "ł", "ź"}
	if got := testsupport.Lines(testsupport.ReadFile(t, cfg.Paths.DictFile)); !reflect.DeepEqual(got, wantDict) {
		t.Fatalf("dict = %q", got)
	}

	rep, err := report.Load(cfg.Paths.ReportFile)
	if err != nil {
		t.Fatalf("report.Load: %v", err)
	}
	if rep.RunID != summary.RunID || rep.Status != "succeeded" {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Reconcile.Missing != 1 || !reflect.DeepEqual(rep.Reconcile.MissingSample, []string{"skany/missing.jpg"}) {
		t.Fatalf("report reconcile = %+v", rep.Reconcile)
	}
	if rep.Archive.Reason != "no-lead-byte" || rep.Archive.Files != 2 || rep.Archive.Dirs != 1 {
		t.Fatalf("report archive = %+v", rep.Archive)
	}
}

func TestPrepareUTF8ArchiveNormalizesNames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTar(t, cfg.Paths.Archive, testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "Z\u0307ywiec/"},
		testsupport.ArchiveEntry{Name: "Z\u0307ywiec/plik_a\u0328.jpg", Body: "x"},
	)
	testsupport.WriteFile(t, cfg.Paths.Manifest, "Żywiec/plik_ą.jpg,tekst\nmissing.jpg,x\n")

	summary, err := newRunner(t, cfg).Prepare(context.Background(), prepare.RunOptions{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !reflect.DeepEqual(summary.Extraction.Attempted, []string{"utf-8"}) {
		t.Fatalf("attempted = %v, want utf-8 only", summary.Extraction.Attempted)
	}
	if len(summary.Renames) != 2 {
		t.Fatalf("renames = %+v", summary.Renames)
	}
	wantTree := []string{"Żywiec/", "Żywiec/plik_ą.jpg"}
	if got := testsupport.ListTree(t, cfg.Paths.ExtractDir); !reflect.DeepEqual(got, wantTree) {
		t.Fatalf("tree = %q", got)
	}
	if summary.Manifest.Rewritten {
		t.Fatal("utf-8 manifest must not be rewritten")
	}
	if len(summary.Reconcile.Matched) != 1 || summary.MissingCount() != 1 {
		t.Fatalf("reconcile = %+v", summary.Reconcile)
	}
}

func TestPrepareRenameConflictLeavesTreeUntouched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTar(t, cfg.Paths.Archive, testsupport.CompressNone,
		testsupport.ArchiveEntry{Name: "a/\u0105.jpg", Body: "nfc"},
		testsupport.ArchiveEntry{Name: "a/a\u0328.jpg", Body: "nfd"},
	)
	testsupport.WriteFile(t, cfg.Paths.Manifest, "a/ą.jpg,x\n")

	_, err := newRunner(t, cfg).Prepare(context.Background(), prepare.RunOptions{})
	if !errors.Is(err, services.ErrRenameConflict) {
		t.Fatalf("expected ErrRenameConflict, got %v", err)
	}
	want := []string{"a/", "a/a\u0328.jpg", "a/\u0105.jpg"}
	if got := testsupport.ListTree(t, cfg.Paths.ExtractDir); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %q, want %q", got, want)
	}

	rep, err := report.Load(cfg.Paths.ReportFile)
	if err != nil {
		t.Fatalf("report.Load: %v", err)
	}
	if rep.Status != "failed" || rep.FailureKind != "rename_conflict" || len(rep.Normalize.Conflicts) != 1 {
		t.Fatalf("report = %+v normalize=%+v", rep, rep.Normalize)
	}
	if _, err := os.Stat(cfg.Paths.LabelFile); !os.IsNotExist(err) {
		t.Fatalf("label file must not exist after a failed run: %v", err)
	}
}

func TestPrepareEmptyMatchStillWritesArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTar(t, cfg.Paths.Archive, testsupport.CompressZstd,
		testsupport.ArchiveEntry{Name: "other.jpg", Body: "x"},
	)
	testsupport.WriteFile(t, cfg.Paths.Manifest, "path,label\na.jpg,a\nb.jpg,b\n")

	summary, err := newRunner(t, cfg).Prepare(context.Background(), prepare.RunOptions{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if summary.MissingCount() != 2 {
		t.Fatalf("missing = %d, want 2", summary.MissingCount())
	}
	for _, path := range []string{cfg.Paths.LabelFile, cfg.Paths.DictFile} {
		if got := testsupport.ReadFile(t, path); got != "" {
			t.Fatalf("%s = %q, want empty", path, got)
		}
	}
}

func TestPrepareFailsWhenOutputLocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer func() { _ = lock.Unlock() }()

	_, err = newRunner(t, cfg).Prepare(context.Background(), prepare.RunOptions{})
	if !errors.Is(err, services.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestPrepareWithoutInputsFailsPreflight(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	_, err := newRunner(t, cfg).Prepare(context.Background(), prepare.RunOptions{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	rep, loadErr := report.Load(cfg.Paths.ReportFile)
	if loadErr != nil {
		t.Fatalf("report.Load: %v", loadErr)
	}
	if rep.FailureKind != "validation" {
		t.Fatalf("failure kind = %q", rep.FailureKind)
	}
}

func TestPrepareFetchesInputsAndRecordsCatalog(t *testing.T) {
	archiveBody := testsupport.TarBytes(t, testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "img/a.jpg", Body: "a"},
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/corpus.tar.gz":
			_, _ = w.Write(archiveBody)
		case "/labels.csv":
			_, _ = w.Write([]byte("image,label\na.jpg,ab\nb.jpg,c\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithSources(srv.URL+"/corpus.tar.gz", srv.URL+"/labels.csv"),
		testsupport.WithImageRoot("img"),
		testsupport.WithCatalog(),
	)
	summary, err := newRunner(t, cfg, prepare.WithHTTPClient(srv.Client())).Prepare(context.Background(), prepare.RunOptions{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := testsupport.Lines(testsupport.ReadFile(t, cfg.Paths.LabelFile)); !reflect.DeepEqual(got, []string{"a.jpg\tab"}) {
		t.Fatalf("labels = %q", got)
	}

	store := testsupport.MustOpenCatalog(t, cfg)
	run, err := store.GetRun(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "succeeded" || run.Matched != 1 || run.Missing != 1 || run.ArchiveEncoding != "utf-8" {
		t.Fatalf("catalog run = %+v", run)
	}
	missing, err := store.MissingNames(context.Background(), summary.RunID, 0)
	if err != nil {
		t.Fatalf("MissingNames: %v", err)
	}
	if len(missing) != 1 || missing[0].Filename != "b.jpg" {
		t.Fatalf("missing = %+v", missing)
	}
	digests, err := store.FileDigests(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("FileDigests: %v", err)
	}
	if len(digests) != 2 {
		t.Fatalf("digests = %+v", digests)
	}
}

func TestPrepareMissingSourceIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSources(srv.URL+"/a.tar.gz", srv.URL+"/b.csv"))
	_, err := newRunner(t, cfg, prepare.WithHTTPClient(srv.Client())).Prepare(context.Background(), prepare.RunOptions{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPrepareCleanRemovesStaleEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTar(t, cfg.Paths.Archive, testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "a.jpg", Body: "a"},
	)
	testsupport.WriteFile(t, cfg.Paths.Manifest, "a.jpg,a\n")
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.ExtractDir, "stale.jpg"), "old")

	if _, err := newRunner(t, cfg).Prepare(context.Background(), prepare.RunOptions{Clean: true}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := testsupport.ListTree(t, cfg.Paths.ExtractDir); !reflect.DeepEqual(got, []string{"a.jpg"}) {
		t.Fatalf("tree = %q", got)
	}
}

func TestVerifyAndLabelsReuseExtraction(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTar(t, cfg.Paths.Archive, testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "a.jpg", Body: "a"},
	)
	testsupport.WriteFile(t, cfg.Paths.Manifest, "a.jpg,a\nb.jpg,b\n")
	runner := newRunner(t, cfg)
	if _, err := runner.Prepare(context.Background(), prepare.RunOptions{}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	verified, err := runner.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.MissingCount() != 1 || verified.Extraction != nil || verified.NonNFC != 0 {
		t.Fatalf("verify summary = %+v", verified)
	}

	if err := os.Remove(cfg.Paths.LabelFile); err != nil {
		t.Fatalf("remove label file: %v", err)
	}
	projected, err := runner.Labels(context.Background())
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if projected.Labels.Lines != 1 {
		t.Fatalf("labels output = %+v", projected.Labels)
	}
	if got := testsupport.ReadFile(t, cfg.Paths.LabelFile); got != "a.jpg\ta\n" {
		t.Fatalf("label file = %q", got)
	}
}

func TestLabelsRejectsLegacyManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.ExtractDir, "a.jpg"), "a")
	testsupport.WriteFile(t, cfg.Paths.Manifest, "a.jpg,\xb9\n")

	_, err := newRunner(t, cfg).Labels(context.Background())
	if !errors.Is(err, services.ErrDecodeExhausted) {
		t.Fatalf("expected ErrDecodeExhausted, got %v", err)
	}
}

func TestNewRejectsBadCandidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Encoding.Candidates = []string{"windows-1250"}
	if _, err := prepare.New(cfg, logging.NewNop()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLabelsReportsDecomposedFilesMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	decomposed := filepath.Join(cfg.Paths.ExtractDir, "plik_a\u0328.jpg")
	testsupport.WriteFile(t, decomposed, "img")
	testsupport.WriteFile(t, cfg.Paths.Manifest, "plik_\u0105.jpg,tekst\n")

	summary, err := newRunner(t, cfg).Labels(context.Background())
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if summary.NonNFC != 1 {
		t.Fatalf("NonNFC = %d, want 1", summary.NonNFC)
	}
	if len(summary.Reconcile.Matched) != 0 || summary.MissingCount() != 1 {
		t.Fatalf("reconcile = matched %d missing %d", len(summary.Reconcile.Matched), summary.MissingCount())
	}
	if got := testsupport.ReadFile(t, cfg.Paths.LabelFile); got != "" {
		t.Fatalf("label file cites a path not on disk: %q", got)
	}
	if _, err := os.Stat(decomposed); err != nil {
		t.Fatalf("decomposed file should be left untouched: %v", err)
	}
}

func TestPrepareLegacyZipUnderImageRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithArchive("corpus.zip"), testsupport.WithImageRoot("skany"))
	testsupport.WriteZip(t, cfg.Paths.Archive,
		testsupport.ArchiveEntry{Name: "skany/"},
		testsupport.ArchiveEntry{Name: "skany/plik_\xb9.jpg", Body: "img"},
		testsupport.ArchiveEntry{Name: "inne.jpg", Body: "other"},
	)
	testsupport.WriteFile(t, cfg.Paths.Manifest, "plik_ą.jpg,tekst\ninne.jpg,x\n")

	summary, err := newRunner(t, cfg).Prepare(context.Background(), prepare.RunOptions{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if summary.Extraction.Format != "zip" || summary.Extraction.Encoding.Name() != "windows-1250" {
		t.Fatalf("extraction = %s/%s", summary.Extraction.Format, summary.Extraction.Encoding)
	}
	if len(summary.Reconcile.Matched) != 1 || summary.MissingCount() != 1 {
		t.Fatalf("reconcile = matched %d missing %d", len(summary.Reconcile.Matched), summary.MissingCount())
	}
	if got := testsupport.ReadFile(t, cfg.Paths.LabelFile); got != "plik_ą.jpg\ttekst\n" {
		t.Fatalf("label file = %q", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.ImageDir(), "plik_ą.jpg")); err != nil {
		t.Fatalf("image not under image dir: %v", err)
	}
}

func TestRerunWithoutCleanPointsAtClean(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTar(t, cfg.Paths.Archive, testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "plik_a\u0328.jpg", Body: "img"},
	)
	testsupport.WriteFile(t, cfg.Paths.Manifest, "plik_\u0105.jpg,tekst\n")

	var logs bytes.Buffer
	runner, err := prepare.New(cfg, slog.New(slog.NewJSONHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("prepare.New: %v", err)
	}
	if _, err := runner.Prepare(context.Background(), prepare.RunOptions{}); err != nil {
		t.Fatalf("first Prepare: %v", err)
	}

	_, err = runner.Prepare(context.Background(), prepare.RunOptions{})
	if !errors.Is(err, services.ErrRenameConflict) {
		t.Fatalf("expected ErrRenameConflict, got %v", err)
	}
	if !strings.Contains(logs.String(), "prepare --clean") {
		t.Fatalf("conflict hint does not mention prepare --clean:\n%s", logs.String())
	}

	if _, err := runner.Prepare(context.Background(), prepare.RunOptions{Clean: true}); err != nil {
		t.Fatalf("Prepare with clean: %v", err)
	}
	if got := testsupport.ListTree(t, cfg.Paths.ExtractDir); !reflect.DeepEqual(got, []string{"plik_\u0105.jpg"}) {
		t.Fatalf("tree = %q", got)
	}
}
