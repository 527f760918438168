package config

import (
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"

	"htrprep/internal/textenc"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateManifest(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.ExtractDir == "" || c.Paths.ExtractDir == c.Paths.OutputDir {
		return errors.New("paths.extract_dir must be a subdirectory distinct from paths.output_dir")
	}
	if c.Paths.Archive == c.Paths.Manifest {
		return errors.New("paths.archive and paths.manifest must differ")
	}
	if c.Paths.LabelFile == c.Paths.DictFile {
		return errors.New("paths.label_file and paths.dict_file must differ")
	}
	return nil
}

func (c *Config) validateSources() error {
	if c.Sources.TimeoutSeconds < 0 {
		return errors.New("sources.timeout_seconds must be positive")
	}
	for name, raw := range map[string]string{
		"sources.archive_url":  c.Sources.ArchiveURL,
		"sources.manifest_url": c.Sources.ManifestURL,
	} {
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("%s must use http or https, got %q", name, raw)
		}
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if len(c.Encoding.Candidates) == 0 {
		return errors.New("encoding.candidates must list at least one encoding")
	}
	if _, err := textenc.ParseGuess(c.Encoding.Candidates); err != nil {
		return fmt.Errorf("encoding.candidates: %w", err)
	}
	if _, err := textenc.PolicyByName(c.Encoding.DetectorPolicy); err != nil {
		return fmt.Errorf("encoding.detector_policy: %w", err)
	}
	if c.Encoding.SampleEntries < 1 {
		return errors.New("encoding.sample_entries must be at least 1")
	}
	return nil
}

func (c *Config) validateManifest() error {
	if utf8.RuneCountInString(c.Manifest.Delimiter) != 1 {
		return fmt.Errorf("manifest.delimiter must be a single character, got %q", c.Manifest.Delimiter)
	}
	switch r, _ := utf8.DecodeRuneInString(c.Manifest.Delimiter); r {
	case '"', '\r', '\n', utf8.RuneError:
		return fmt.Errorf("manifest.delimiter %q is not usable", c.Manifest.Delimiter)
	}
	if c.Manifest.MissingSample < 0 {
		return errors.New("manifest.missing_sample must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
