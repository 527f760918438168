package prepare

import (
	"context"
	"log/slog"
	"time"

	"htrprep/internal/fetch"
	"htrprep/internal/logging"
)

func (r *Runner) fetchStage(ctx context.Context, logger *slog.Logger) error {
	timeout := time.Duration(r.cfg.Sources.TimeoutSeconds) * time.Second
	fetcher := fetch.New(r.client, timeout, r.base)

	inputs := []struct {
		name string
		url  string
		dest string
	}{
		{"archive", r.cfg.Sources.ArchiveURL, r.cfg.Paths.Archive},
		{"manifest", r.cfg.Sources.ManifestURL, r.cfg.Paths.Manifest},
	}
	for _, in := range inputs {
		outcome, err := fetcher.Fetch(ctx, in.url, in.dest)
		if err != nil {
			return classify(StageFetch, "fetch "+in.name, err)
		}
		logger.Debug("input ready",
			logging.String("input", in.name),
			logging.String(logging.FieldPath, outcome.Path),
			logging.Bool("downloaded", !outcome.Skipped),
			logging.Int64("bytes", outcome.Bytes),
		)
	}
	return nil
}
