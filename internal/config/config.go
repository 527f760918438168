package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the locations of pipeline inputs and outputs. Relative file
// paths are resolved against OutputDir.
type Paths struct {
	OutputDir  string `toml:"output_dir"`
	Archive    string `toml:"archive"`
	Manifest   string `toml:"manifest"`
	ExtractDir string `toml:"extract_dir"`
	ImageRoot  string `toml:"image_root"`
	LabelFile  string `toml:"label_file"`
	DictFile   string `toml:"dict_file"`
	ReportFile string `toml:"report_file"`
}

// Sources contains the remote locations the archive and manifest are fetched from.
type Sources struct {
	ArchiveURL     string `toml:"archive_url"`
	ManifestURL    string `toml:"manifest_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Encoding controls filename and manifest encoding detection.
type Encoding struct {
	// Candidates is the ordered trial list; UTF-8 must come first.
	Candidates []string `toml:"candidates"`
	// DetectorPolicy names the lead-byte heuristic used on archive names.
	DetectorPolicy string `toml:"detector_policy"`
	// SampleEntries is how many archive entry names feed the detector.
	SampleEntries int `toml:"sample_entries"`
}

// Manifest controls manifest parsing and shortfall reporting.
type Manifest struct {
	Delimiter     string   `toml:"delimiter"`
	HeaderTokens  []string `toml:"header_tokens"`
	MissingSample int      `toml:"missing_sample"`
}

// Labels controls label file projection.
type Labels struct {
	PathPrefix string `toml:"path_prefix"`
}

// Catalog controls the SQLite run history.
type Catalog struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for htrprep.
//
// Configuration sections by subsystem:
//   - Paths: inputs, extraction target, and output artifacts
//   - Sources: download URLs for the archive and manifest
//   - Encoding: candidate encodings and detector policy
//   - Manifest: delimiter, header tokens, missing-name sample size
//   - Labels: label file projection options
//   - Catalog: SQLite run history
//   - Logging: log format, level, and optional file
type Config struct {
	Paths    Paths    `toml:"paths"`
	Sources  Sources  `toml:"sources"`
	Encoding Encoding `toml:"encoding"`
	Manifest Manifest `toml:"manifest"`
	Labels   Labels   `toml:"labels"`
	Catalog  Catalog  `toml:"catalog"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("htrprep.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output and extraction directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.ExtractDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ImageDir returns the directory manifest filenames are resolved against.
func (c *Config) ImageDir() string {
	if c.Paths.ImageRoot == "" {
		return c.Paths.ExtractDir
	}
	return filepath.Join(c.Paths.ExtractDir, c.Paths.ImageRoot)
}

// LockPath returns the advisory lock file guarding the output directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.OutputDir, ".htrprep.lock")
}

// Delimiter returns the manifest field delimiter as a rune.
func (c *Config) Delimiter() rune {
	for _, r := range c.Manifest.Delimiter {
		return r
	}
	return ','
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// resolveUnder expands value and, when it is relative, anchors it at base.
func resolveUnder(base, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if strings.HasPrefix(value, "~") || filepath.IsAbs(value) {
		return expandPath(value)
	}
	return expandPath(filepath.Join(base, value))
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
