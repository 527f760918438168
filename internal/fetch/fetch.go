// Package fetch downloads pipeline inputs to local paths. A destination that
// already exists is never re-downloaded; downloads land in a temp file beside
// the destination and are renamed into place only after a complete body.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"htrprep/internal/logging"
)

const defaultTimeout = 300 * time.Second

// ErrNoSource is returned when the destination is absent and no URL is configured.
var ErrNoSource = errors.New("no source url configured")

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.Code)
}

// Outcome describes one Fetch call.
type Outcome struct {
	Path    string
	URL     string
	Skipped bool
	Bytes   int64
}

// Fetcher downloads files over HTTP.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// New returns a Fetcher. A nil client gets one with the given timeout.
func New(client *http.Client, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if client == nil {
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{client: client, logger: logging.NewComponentLogger(logger, "fetch")}
}

// Fetch downloads url to dest unless dest already exists.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (*Outcome, error) {
	logger := logging.WithContext(ctx, f.logger)
	outcome := &Outcome{Path: dest, URL: url}

	if info, err := os.Stat(dest); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("download destination %s is a directory", dest)
		}
		outcome.Skipped = true
		outcome.Bytes = info.Size()
		logger.Info("input present; skipping download", logging.String(logging.FieldPath, dest))
		return outcome, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", dest, err)
	}
	if url == "" {
		return nil, fmt.Errorf("%s: %w", dest, ErrNoSource)
	}

	logger.Info("downloading input", logging.String("url", url), logging.String(logging.FieldPath, dest))
	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = tmp.Close()
		return nil, fmt.Errorf("download %s: short body (%d of %d bytes)", url, written, resp.ContentLength)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return nil, fmt.Errorf("install %s: %w", dest, err)
	}

	outcome.Bytes = written
	logger.Info("download complete",
		logging.String(logging.FieldPath, dest),
		logging.String("size", humanize.Bytes(uint64(written))),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return outcome, nil
}
