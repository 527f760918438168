package prepare

import (
	"context"
	"errors"
	"net/http"

	"htrprep/internal/archive"
	"htrprep/internal/fetch"
	"htrprep/internal/nfc"
	"htrprep/internal/services"
	"htrprep/internal/textenc"
)

// classify tags err with the services marker matching its cause.
func classify(stage, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		exhausted  *textenc.ExhaustedError
		structural *archive.StructuralError
		conflict   *nfc.ConflictError
		status     *fetch.StatusError
	)
	switch {
	case errors.As(err, &exhausted):
		return services.Wrap(services.ErrDecodeExhausted, stage, op, "no candidate encoding decodes every name", err)
	case errors.As(err, &structural):
		return services.Wrap(services.ErrArchiveCorrupt, stage, op, "archive is corrupt or unsafe", err)
	case errors.As(err, &conflict):
		return services.Wrap(services.ErrRenameConflict, stage, op, "distinct names share an NFC form", err)
	case errors.Is(err, fetch.ErrNoSource):
		return services.Wrap(services.ErrConfiguration, stage, op, "input missing and no download url configured", err)
	case errors.As(err, &status):
		if status.Code == http.StatusNotFound || status.Code == http.StatusGone {
			return services.Wrap(services.ErrNotFound, stage, op, "source url not found", err)
		}
		return services.Wrap(services.ErrTransient, stage, op, "download failed", err)
	default:
		return services.Wrap(services.ErrTransient, stage, op, "", err)
	}
}
