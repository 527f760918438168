package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"htrprep/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	outputDir  string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("HTRPREP_ARCHIVE_URL", "")
	t.Setenv("HTRPREP_MANIFEST_URL", "")

	env := &cliTestEnv{
		baseDir:    base,
		outputDir:  filepath.Join(base, "data"),
		configPath: filepath.Join(base, "htrprep.toml"),
	}
	writeTestConfig(t, env.configPath, env.outputDir)
	return env
}

func writeTestConfig(t *testing.T, path, outputDir string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
output_dir = %q
archive = "corpus.tar.gz"
manifest = "labels.csv"
extract_dir = "extracted"

[sources]
archive_url = ""
manifest_url = ""

[catalog]
enabled = true

[logging]
level = "error"
`, outputDir)
	testsupport.WriteFile(t, path, content)
}

// seedLegacyCorpus writes a windows-1250 named archive and a UTF-8 manifest
// with one resolvable row and one missing row.
func (e *cliTestEnv) seedLegacyCorpus(t *testing.T) {
	t.Helper()
	testsupport.WriteTar(t, filepath.Join(e.outputDir, "corpus.tar.gz"), testsupport.CompressGzip,
		testsupport.ArchiveEntry{Name: "plik_\xb9.jpg", Body: "img"},
	)
	testsupport.WriteFile(t, filepath.Join(e.outputDir, "labels.csv"),
		"filename,label\nplik_ą.jpg,tekst\nmissing.jpg,x\n")
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
