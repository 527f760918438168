package archive

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// cleanEntryName converts a decoded entry name to a clean slash-separated
// relative path. The root entry ("./") yields ".".
func cleanEntryName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "."
	}
	return path.Clean(name)
}

func safeJoin(base, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == "" {
		return "", fmt.Errorf("invalid archive path: %s", name)
	}
	if filepath.IsAbs(clean) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("absolute archive path: %s", name)
	}
	target := filepath.Join(base, clean)
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", fmt.Errorf("invalid archive path: %s", name)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive path escapes target: %s", name)
	}
	return target, nil
}
