package config

const (
	defaultConfigPath     = "~/.config/htrprep/config.toml"
	defaultOutputDir      = "~/htr-data"
	defaultArchive        = "PL-20k-hand-labelled.tar.gz"
	defaultManifest       = "PL-20k-hand-labelled_labels.csv"
	defaultExtractDir     = "PL-20k-hand-labelled"
	defaultLabelFile      = "train_labels.txt"
	defaultDictFile       = "dict.txt"
	defaultReportFile     = "report.json"
	defaultCatalogPath    = "catalog.db"
	defaultArchiveURL     = "https://github.com/perechen/htr_lexicography/raw/main/data/PL-20k-hand-labelled.tar.gz"
	defaultManifestURL    = "https://raw.githubusercontent.com/perechen/htr_lexicography/main/data/PL-20k-hand-labelled_labels.csv"
	defaultFetchTimeout   = 300
	defaultDetectorPolicy = "utf8-lead-v2"
	defaultSampleEntries  = 5
	defaultDelimiter      = ","
	defaultMissingSample  = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

var (
	defaultCandidates   = []string{"utf-8", "windows-1250", "iso-8859-2"}
	defaultHeaderTokens = []string{"path", "image", "file_name", "filename"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:  defaultOutputDir,
			Archive:    defaultArchive,
			Manifest:   defaultManifest,
			ExtractDir: defaultExtractDir,
			LabelFile:  defaultLabelFile,
			DictFile:   defaultDictFile,
			ReportFile: defaultReportFile,
		},
		Sources: Sources{
			ArchiveURL:     defaultArchiveURL,
			ManifestURL:    defaultManifestURL,
			TimeoutSeconds: defaultFetchTimeout,
		},
		Encoding: Encoding{
			Candidates:     append([]string(nil), defaultCandidates...),
			DetectorPolicy: defaultDetectorPolicy,
			SampleEntries:  defaultSampleEntries,
		},
		Manifest: Manifest{
			Delimiter:     defaultDelimiter,
			HeaderTokens:  append([]string(nil), defaultHeaderTokens...),
			MissingSample: defaultMissingSample,
		},
		Catalog: Catalog{
			Enabled: true,
			Path:    defaultCatalogPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
