package prepare

import (
	"context"
	"log/slog"
	"os"

	"htrprep/internal/archive"
	"htrprep/internal/logging"
	"htrprep/internal/manifest"
	"htrprep/internal/nfc"
	"htrprep/internal/textenc"
)

// Verify reconciles the manifest against an existing extraction without
// extracting again. A legacy manifest is still rewritten as UTF-8.
func (r *Runner) Verify(ctx context.Context) (*Summary, error) {
	return r.execute(ctx, "verify", func(ctx context.Context, s *Summary) error {
		if err := runStage(ctx, r.logger, StageExtract, func(ctx context.Context, logger *slog.Logger) error {
			return r.scanStage(ctx, logger, s)
		}); err != nil {
			return err
		}
		if err := runStage(ctx, r.logger, StageManifest, func(ctx context.Context, _ *slog.Logger) error {
			return r.manifestStage(ctx, s)
		}); err != nil {
			return err
		}
		return runStage(ctx, r.logger, StageReconcile, func(_ context.Context, logger *slog.Logger) error {
			return r.reconcileStage(logger, s)
		})
	})
}

// Labels projects labels from an already UTF-8 manifest and an existing
// extraction. The manifest is never rewritten.
func (r *Runner) Labels(ctx context.Context) (*Summary, error) {
	return r.execute(ctx, "labels", func(ctx context.Context, s *Summary) error {
		steps := []struct {
			name string
			fn   stageFunc
		}{
			{StageExtract, func(ctx context.Context, logger *slog.Logger) error {
				return r.scanStage(ctx, logger, s)
			}},
			{StageManifest, func(ctx context.Context, logger *slog.Logger) error {
				return r.utf8ManifestStage(ctx, logger, s)
			}},
			{StageReconcile, func(_ context.Context, logger *slog.Logger) error {
				return r.reconcileStage(logger, s)
			}},
			{StageLabels, func(_ context.Context, logger *slog.Logger) error {
				return r.labelsStage(logger, s)
			}},
		}
		for _, step := range steps {
			if err := runStage(ctx, r.logger, step.name, step.fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Runner) scanStage(ctx context.Context, logger *slog.Logger, s *Summary) error {
	files, err := archive.Scan(ctx, r.cfg.Paths.ExtractDir, false)
	if err != nil {
		return classify(StageExtract, "scan extraction", err)
	}
	s.Files = files
	for _, f := range files {
		if !nfc.IsNormal(f.Rel) {
			s.NonNFC++
		}
	}
	logger.Info("extraction scanned",
		logging.String(logging.FieldPath, r.cfg.Paths.ExtractDir),
		logging.Int("entries", len(files)),
	)
	if s.NonNFC > 0 {
		logging.WarnWithContext(logger, "extracted names are not in nfc", "names_not_normalized",
			logging.Int("entries", s.NonNFC),
			logging.String(logging.FieldErrorHint, "run htrprep prepare --clean to extract again"),
			logging.String(logging.FieldImpact, "manifest rows naming these files are reported missing"),
		)
	}
	return nil
}

func (r *Runner) utf8ManifestStage(ctx context.Context, logger *slog.Logger, s *Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := os.ReadFile(r.cfg.Paths.Manifest)
	if err != nil {
		return classify(StageManifest, "read manifest", err)
	}
	utf8Only, err := textenc.ParseGuess([]string{"utf-8"})
	if err != nil {
		return err
	}
	decoder := manifest.NewDecoder(utf8Only, r.base)
	text, enc, bom, err := decoder.Decode(r.cfg.Paths.Manifest, raw)
	if err != nil {
		return classify(StageManifest, "decode manifest", err)
	}
	s.Manifest = &manifest.Decoded{Path: r.cfg.Paths.Manifest, Text: text, Encoding: enc, BOM: bom}
	logger.Info("manifest decoded",
		logging.String(logging.FieldEncoding, enc.Name()),
		logging.String(logging.FieldPath, r.cfg.Paths.Manifest),
	)
	return nil
}
