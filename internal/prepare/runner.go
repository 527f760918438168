package prepare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"htrprep/internal/archive"
	"htrprep/internal/catalog"
	"htrprep/internal/config"
	"htrprep/internal/labels"
	"htrprep/internal/logging"
	"htrprep/internal/manifest"
	"htrprep/internal/nfc"
	"htrprep/internal/preflight"
	"htrprep/internal/report"
	"htrprep/internal/services"
	"htrprep/internal/textenc"
)

// Option customizes a Runner.
type Option func(*Runner)

// WithHTTPClient overrides the client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Runner) {
		r.client = client
	}
}

// Runner executes pipeline commands against one configuration.
type Runner struct {
	cfg    *config.Config
	base   *slog.Logger
	logger *slog.Logger
	client *http.Client
	guess  textenc.Guess
	policy textenc.Policy
}

// New validates the encoding settings of cfg and returns a Runner.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "prepare", "init", "configuration required", nil)
	}
	guess, err := textenc.ParseGuess(cfg.Encoding.Candidates)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "prepare", "init", "encoding.candidates", err)
	}
	policy, err := textenc.PolicyByName(cfg.Encoding.DetectorPolicy)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "prepare", "init", "encoding.detector_policy", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:    cfg,
		base:   logger,
		logger: logging.NewComponentLogger(logger, "prepare"),
		guess:  guess,
		policy: policy,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunOptions controls a prepare run.
type RunOptions struct {
	// Clean removes the extraction directory before extracting.
	Clean bool
}

// Summary collects the results of every stage that ran.
type Summary struct {
	RunID      string
	Command    string
	Preflight  []preflight.Result
	Extraction *archive.Result
	Files      []archive.ExtractedFile
	Renames    []nfc.Rename
	Manifest   *manifest.Decoded
	Reconcile  *manifest.Result
	Labels     *labels.Output
	// NonNFC counts scanned names that are not in NFC (verify only).
	NonNFC int
	Report *report.Report
}

// MissingCount returns the number of manifest rows without a file.
func (s *Summary) MissingCount() int {
	if s == nil || s.Reconcile == nil {
		return 0
	}
	return len(s.Reconcile.Missing)
}

// Check runs the preflight checks without taking the lock or touching outputs.
func (r *Runner) Check(ctx context.Context) ([]preflight.Result, error) {
	results := preflight.RunAll(ctx, r.cfg)
	if err := preflight.Error(results); err != nil {
		return results, services.Wrap(services.ErrValidation, StagePreflight, "check", "", err)
	}
	return results, nil
}

// Prepare runs the full pipeline.
func (r *Runner) Prepare(ctx context.Context, opts RunOptions) (*Summary, error) {
	return r.execute(ctx, "prepare", func(ctx context.Context, s *Summary) error {
		steps := []struct {
			name string
			fn   stageFunc
		}{
			{StagePreflight, func(ctx context.Context, logger *slog.Logger) error {
				return r.preflightStage(ctx, logger, s)
			}},
			{StageFetch, r.fetchStage},
			{StageExtract, func(ctx context.Context, logger *slog.Logger) error {
				return r.extractStage(ctx, logger, s, opts.Clean)
			}},
			{StageNormalize, func(ctx context.Context, logger *slog.Logger) error {
				return r.normalizeStage(ctx, logger, s)
			}},
			{StageManifest, func(ctx context.Context, logger *slog.Logger) error {
				return r.manifestStage(ctx, s)
			}},
			{StageReconcile, func(ctx context.Context, logger *slog.Logger) error {
				return r.reconcileStage(logger, s)
			}},
			{StageLabels, func(ctx context.Context, logger *slog.Logger) error {
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

type body func(ctx context.Context, s *Summary) error

// execute wraps a command with the output lock, run ID, report and catalog.
func (r *Runner) execute(ctx context.Context, command string, fn body) (*Summary, error) {
	if err := r.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, command, "prepare directories", "", err)
	}
	lock := flock.New(r.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, command, "acquire lock", r.cfg.LockPath(), err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrLocked, command, "acquire lock",
			fmt.Sprintf("another run holds %s", r.cfg.LockPath()), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release output lock", logging.Error(err))
		}
	}()

	summary := &Summary{RunID: uuid.NewString(), Command: command}
	ctx = services.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, r.logger)
	started := time.Now().UTC()

	store, err := r.openCatalog(ctx, summary, started)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer store.Close()
	}

	logger.Info("run started",
		logging.String("command", command),
		logging.String("output_dir", r.cfg.Paths.OutputDir),
		logging.Strings("candidates", r.guess.Names()),
	)

	runErr := fn(ctx, summary)
	finished := time.Now().UTC()

	summary.Report = buildReport(summary, r.cfg, started, finished, runErr)
	if err := report.Write(r.cfg.Paths.ReportFile, summary.Report); err != nil {
		logging.ErrorWithContext(logger, "failed to write run report", "report_write_failed",
			logging.String(logging.FieldPath, r.cfg.Paths.ReportFile),
			logging.Error(err),
		)
		if runErr == nil {
			runErr = services.Wrap(services.ErrTransient, command, "write report", r.cfg.Paths.ReportFile, err)
		}
	}
	r.finishCatalog(ctx, logger, store, summary, runErr)

	if runErr != nil {
		return summary, runErr
	}
	logger.Info("run completed",
		logging.String("command", command),
		logging.Int("missing", summary.MissingCount()),
		logging.Duration("elapsed", finished.Sub(started).Round(time.Millisecond)),
	)
	return summary, nil
}

func (r *Runner) openCatalog(ctx context.Context, s *Summary, started time.Time) (*catalog.Store, error) {
	if !r.cfg.Catalog.Enabled {
		return nil, nil
	}
	store, err := catalog.Open(r.cfg.Catalog.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, s.Command, "open catalog", r.cfg.Catalog.Path, err)
	}
	run := catalog.Run{
		ID:           s.RunID,
		Command:      s.Command,
		StartedAt:    started,
		ArchivePath:  r.cfg.Paths.Archive,
		ManifestPath: r.cfg.Paths.Manifest,
	}
	if err := store.BeginRun(ctx, run); err != nil {
		_ = store.Close()
		return nil, services.Wrap(services.ErrTransient, s.Command, "record run", "", err)
	}
	return store, nil
}

func (r *Runner) finishCatalog(ctx context.Context, logger *slog.Logger, store *catalog.Store, s *Summary, runErr error) {
	if store == nil {
		return
	}
	// Recording must not be skipped because the run itself was cancelled.
	ctx = context.WithoutCancel(ctx)
	run := catalogRun(s)
	if runErr == nil && s.Command == "prepare" {
		if err := store.RecordFiles(ctx, s.RunID, s.Files); err != nil {
			logging.WarnWithContext(logger, "failed to record extracted files", "catalog_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "catalog lacks file digests for this run"),
			)
		}
	}
	if s.Reconcile != nil {
		if err := store.RecordMissing(ctx, s.RunID, s.Reconcile.Missing); err != nil {
			logging.WarnWithContext(logger, "failed to record missing names", "catalog_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "htrprep missing cannot list this run"),
			)
		}
	}
	if err := store.FinishRun(ctx, run); err != nil {
		logging.WarnWithContext(logger, "failed to finish catalog run", "catalog_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run stays marked as running in the catalog"),
		)
	}
}

func catalogRun(s *Summary) catalog.Run {
	rep := s.Report
	run := catalog.Run{
		ID:          s.RunID,
		Command:     s.Command,
		FinishedAt:  rep.FinishedAt,
		Status:      rep.Status,
		FailureKind: rep.FailureKind,
		Error:       rep.Error,
		Renamed:     len(s.Renames),
	}
	if a := rep.Archive; a != nil {
		run.ArchiveFormat = a.Format
		run.ArchiveEncoding = a.Encoding
		run.FilesExtracted = a.Files
		run.BytesExtracted = a.Bytes
	}
	if m := rep.Manifest; m != nil {
		run.ManifestEncoding = m.Encoding
		run.ManifestRewritten = m.Rewritten
	}
	if rc := rep.Reconcile; rc != nil {
		run.Matched = rc.Matched
		run.Missing = rc.Missing
		run.Skipped = len(rc.Skipped)
	}
	if l := rep.Labels; l != nil {
		run.DictionarySize = l.Characters
	}
	return run
}

func (r *Runner) preflightStage(ctx context.Context, logger *slog.Logger, s *Summary) error {
	results, err := r.Check(ctx)
	s.Preflight = results
	for _, res := range results {
		logger.Debug("preflight check",
			logging.String("check", res.Name),
			logging.Bool("passed", res.Passed),
			logging.String("detail", res.Detail),
		)
	}
	return err
}

func (r *Runner) extractStage(ctx context.Context, logger *slog.Logger, s *Summary, clean bool) error {
	target := r.cfg.Paths.ExtractDir
	if clean {
		if err := os.RemoveAll(target); err != nil {
			return classify(StageExtract, "clean", err)
		}
		logger.Info("extraction directory cleared", logging.String(logging.FieldPath, target))
	}
	extractor := archive.NewExtractor(archive.Options{
		Guess:         r.guess,
		Policy:        r.policy,
		SampleEntries: r.cfg.Encoding.SampleEntries,
		Logger:        r.base,
	})
	result, err := extractor.Extract(ctx, r.cfg.Paths.Archive, target)
	if err != nil {
		return classify(StageExtract, "extract archive", err)
	}
	s.Extraction = result
	s.Files = result.Files
	return nil
}

func (r *Runner) normalizeStage(ctx context.Context, logger *slog.Logger, s *Summary) error {
	files, renames, err := nfc.NewNormalizer(r.base).Normalize(ctx, r.cfg.Paths.ExtractDir, s.Files)
	s.Renames = renames
	if err != nil {
		var conflict *nfc.ConflictError
		if errors.As(err, &conflict) {
			for _, c := range conflict.Conflicts {
				logging.ErrorWithContext(logger, "names collide after nfc normalization", "rename_conflict",
					logging.String("dir", c.Dir),
					logging.String("normalized", c.Normalized),
					logging.Strings("originals", c.Originals),
					logging.String(logging.FieldErrorHint, "rerun with prepare --clean if an earlier run left normalized files behind; otherwise remove one of the colliding entries from the archive"),
				)
			}
		}
		return classify(StageNormalize, "normalize names", err)
	}
	s.Files = files
	return nil
}

func (r *Runner) manifestStage(ctx context.Context, s *Summary) error {
	decoded, err := manifest.NewDecoder(r.guess, r.base).DecodeFile(ctx, r.cfg.Paths.Manifest)
	if err != nil {
		return classify(StageManifest, "decode manifest", err)
	}
	s.Manifest = decoded
	return nil
}

func (r *Runner) reconcileStage(logger *slog.Logger, s *Summary) error {
	parsed, err := manifest.Parse(strings.NewReader(s.Manifest.Text), manifest.ParseOptions{
		Delimiter:    r.cfg.Delimiter(),
		HeaderTokens: r.cfg.Manifest.HeaderTokens,
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, StageReconcile, "parse manifest", r.cfg.Paths.Manifest, err)
	}
	result := manifest.Reconcile(parsed, manifest.NewFileSet(s.Files, r.cfg.Paths.ImageRoot))
	s.Reconcile = result

	logger.Info("manifest reconciled",
		logging.Int("rows", result.Rows),
		logging.Int("matched", len(result.Matched)),
		logging.Int("missing", len(result.Missing)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Bool("header_skipped", result.HeaderSkipped),
	)
	for _, skipped := range result.Skipped {
		logger.Debug("manifest row skipped",
			logging.Int("row", skipped.Row),
			logging.Int("line", skipped.Line),
			logging.String("reason", skipped.Reason),
		)
	}
	if len(result.Missing) > 0 {
		logging.WarnWithContext(logger, "manifest entries missing from extraction", "reconcile_shortfall",
			logging.Int("missing", len(result.Missing)),
			logging.Strings("sample", result.MissingSample(r.cfg.Manifest.MissingSample)),
			logging.String("image_dir", r.cfg.ImageDir()),
			logging.String(logging.FieldErrorHint, "check paths.image_root and the archive contents"),
			logging.String(logging.FieldImpact, "missing rows are left out of the label file"),
		)
	}
	return nil
}

func (r *Runner) labelsStage(logger *slog.Logger, s *Summary) error {
	out, err := labels.Project(s.Reconcile.Matched, labels.Options{
		LabelPath:  r.cfg.Paths.LabelFile,
		DictPath:   r.cfg.Paths.DictFile,
		PathPrefix: r.cfg.Labels.PathPrefix,
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, StageLabels, "project labels", "", err)
	}
	s.Labels = out
	logger.Info("labels written",
		logging.String("label_file", out.LabelPath),
		logging.String("dict_file", out.DictPath),
		logging.Int("lines", out.Lines),
		logging.Int("characters", out.Characters),
	)
	if out.Flattened > 0 {
		logging.WarnWithContext(logger, "labels contained tabs or line breaks", "label_flattened",
			logging.Int("labels", out.Flattened),
			logging.String(logging.FieldErrorHint, "inspect the manifest label column"),
			logging.String(logging.FieldImpact, "affected labels were written with spaces"),
		)
	}
	return nil
}
