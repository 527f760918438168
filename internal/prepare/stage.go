package prepare

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"htrprep/internal/logging"
	"htrprep/internal/services"
)

// Stage names, also used as the stage field of log records.
const (
	StagePreflight = "preflight"
	StageFetch     = "fetch"
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StageManifest  = "manifest"
	StageReconcile = "reconcile"
	StageLabels    = "labels"
)

type stageFunc func(ctx context.Context, logger *slog.Logger) error

// runStage executes fn with the stage stamped on ctx and logs its start,
// completion or failure.
func runStage(ctx context.Context, base *slog.Logger, name string, fn stageFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, base)

	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	started := time.Now()

	if err := fn(stageCtx, logger); err != nil {
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("failure_kind", services.FailureKind(err)),
			logging.String("error_message", strings.TrimSpace(err.Error())),
			logging.Error(err),
		)
		return err
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return nil
}
