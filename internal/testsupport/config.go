package testsupport

import (
	"path/filepath"
	"testing"

	"htrprep/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every path is absolute and the source URLs are cleared so nothing is fetched.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = base
	cfgVal.Paths.Archive = filepath.Join(base, "corpus.tar.gz")
	cfgVal.Paths.Manifest = filepath.Join(base, "labels.csv")
	cfgVal.Paths.ExtractDir = filepath.Join(base, "extracted")
	cfgVal.Paths.LabelFile = filepath.Join(base, "train_labels.txt")
	cfgVal.Paths.DictFile = filepath.Join(base, "dict.txt")
	cfgVal.Paths.ReportFile = filepath.Join(base, "report.json")
	cfgVal.Sources.ArchiveURL = ""
	cfgVal.Sources.ManifestURL = ""
	cfgVal.Catalog.Enabled = false
	cfgVal.Catalog.Path = filepath.Join(base, "catalog.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithArchive points the config at an archive file name inside the base dir.
func WithArchive(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.Archive = filepath.Join(b.baseDir, name)
	}
}

// WithCandidates overrides the encoding candidate list.
func WithCandidates(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoding.Candidates = names
	}
}

// WithImageRoot sets the manifest image root inside the extraction directory.
func WithImageRoot(root string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.ImageRoot = root
	}
}

// WithCatalog enables the SQLite run catalog.
func WithCatalog() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.Enabled = true
	}
}

// WithSources sets the archive and manifest download URLs.
func WithSources(archiveURL, manifestURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources.ArchiveURL = archiveURL
		b.cfg.Sources.ManifestURL = manifestURL
	}
}
