package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSources()
	c.normalizeEncoding()
	c.normalizeManifest()
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	base := c.Paths.OutputDir
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.archive", &c.Paths.Archive, defaultArchive},
		{"paths.manifest", &c.Paths.Manifest, defaultManifest},
		{"paths.extract_dir", &c.Paths.ExtractDir, defaultExtractDir},
		{"paths.label_file", &c.Paths.LabelFile, defaultLabelFile},
		{"paths.dict_file", &c.Paths.DictFile, defaultDictFile},
		{"paths.report_file", &c.Paths.ReportFile, defaultReportFile},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		if *field.value, err = resolveUnder(base, *field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	// image_root stays relative to the extraction directory.
	c.Paths.ImageRoot = strings.Trim(strings.TrimSpace(c.Paths.ImageRoot), "/")
	return nil
}

func (c *Config) normalizeSources() {
	if value, ok := os.LookupEnv("HTRPREP_ARCHIVE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Sources.ArchiveURL = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("HTRPREP_MANIFEST_URL"); ok && strings.TrimSpace(value) != "" {
		c.Sources.ManifestURL = strings.TrimSpace(value)
	}
	c.Sources.ArchiveURL = strings.TrimSpace(c.Sources.ArchiveURL)
	c.Sources.ManifestURL = strings.TrimSpace(c.Sources.ManifestURL)
	if c.Sources.TimeoutSeconds == 0 {
		c.Sources.TimeoutSeconds = defaultFetchTimeout
	}
}

func (c *Config) normalizeEncoding() {
	seen := make(map[string]struct{}, len(c.Encoding.Candidates))
	candidates := make([]string, 0, len(c.Encoding.Candidates))
	for _, name := range c.Encoding.Candidates {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		candidates = append(candidates, name)
	}
	c.Encoding.Candidates = candidates
	c.Encoding.DetectorPolicy = strings.ToLower(strings.TrimSpace(c.Encoding.DetectorPolicy))
	if c.Encoding.DetectorPolicy == "" {
		c.Encoding.DetectorPolicy = defaultDetectorPolicy
	}
	if c.Encoding.SampleEntries == 0 {
		c.Encoding.SampleEntries = defaultSampleEntries
	}
}

func (c *Config) normalizeManifest() {
	if c.Manifest.Delimiter == "" {
		c.Manifest.Delimiter = defaultDelimiter
	}
	if c.Manifest.Delimiter == `\t` {
		c.Manifest.Delimiter = "\t"
	}
	tokens := make([]string, 0, len(c.Manifest.HeaderTokens))
	for _, token := range c.Manifest.HeaderTokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		tokens = append(tokens, defaultHeaderTokens...)
	}
	c.Manifest.HeaderTokens = tokens
}

func (c *Config) normalizeCatalog() error {
	if strings.TrimSpace(c.Catalog.Path) == "" {
		c.Catalog.Path = defaultCatalogPath
	}
	var err error
	if c.Catalog.Path, err = resolveUnder(c.Paths.OutputDir, c.Catalog.Path); err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) == "" {
		c.Logging.File = ""
		return nil
	}
	var err error
	if c.Logging.File, err = resolveUnder(c.Paths.OutputDir, c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}
