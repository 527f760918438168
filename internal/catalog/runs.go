package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"htrprep/internal/archive"
	"htrprep/internal/manifest"
	"htrprep/internal/services"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one recorded command invocation.
type Run struct {
	ID                string    `json:"id"`
	Command           string    `json:"command"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Status            string    `json:"status"`
	FailureKind       string    `json:"failure_kind,omitempty"`
	Error             string    `json:"error,omitempty"`
	ArchivePath       string    `json:"archive_path"`
	ManifestPath      string    `json:"manifest_path"`
	ArchiveFormat     string    `json:"archive_format"`
	ArchiveEncoding   string    `json:"archive_encoding"`
	ManifestEncoding  string    `json:"manifest_encoding"`
	ManifestRewritten bool      `json:"manifest_rewritten"`
	FilesExtracted    int       `json:"files_extracted"`
	BytesExtracted    int64     `json:"bytes_extracted"`
	Renamed           int       `json:"renamed"`
	Matched           int       `json:"matched"`
	Missing           int       `json:"missing"`
	Skipped           int       `json:"skipped"`
	DictionarySize    int       `json:"dictionary_size"`
}

// MissingName is a manifest row that did not resolve in a run.
type MissingName struct {
	Row      int
	Filename string
	Label    string
}

// FileDigest is the recorded digest of one extracted file.
type FileDigest struct {
	Rel    string
	Kind   string
	Size   int64
	Digest string
}

const runColumns = `id, command, started_at, finished_at, status, failure_kind, error_message,
	archive_path, manifest_path, archive_format, archive_encoding, manifest_encoding,
	manifest_rewritten, files_extracted, bytes_extracted, renamed, matched, missing,
	skipped, dictionary_size`

// BeginRun records a run in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	return s.execWithRetry(ctx,
		`INSERT INTO runs (id, command, started_at, status, archive_path, manifest_path) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, commandOrDefault(run.Command), formatTime(run.StartedAt), StatusRunning, run.ArchivePath, run.ManifestPath,
	)
}

// FinishRun stores the final state and counters of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	return s.execWithRetry(ctx, `UPDATE runs SET
		finished_at = ?, status = ?, failure_kind = ?, error_message = ?,
		archive_format = ?, archive_encoding = ?, manifest_encoding = ?, manifest_rewritten = ?,
		files_extracted = ?, bytes_extracted = ?, renamed = ?, matched = ?, missing = ?,
		skipped = ?, dictionary_size = ?
		WHERE id = ?`,
		formatTime(run.FinishedAt), run.Status, run.FailureKind, run.Error,
		run.ArchiveFormat, run.ArchiveEncoding, run.ManifestEncoding, boolToInt(run.ManifestRewritten),
		run.FilesExtracted, run.BytesExtracted, run.Renamed, run.Matched, run.Missing,
		run.Skipped, run.DictionarySize,
		run.ID,
	)
}

// RecordFiles stores the extracted set of a run.
func (s *Store) RecordFiles(ctx context.Context, runID string, files []archive.ExtractedFile) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO files (run_id, rel_path, kind, size, digest) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, runID, f.Rel, f.Kind.String(), f.Size, f.Digest); err != nil {
				return fmt.Errorf("insert file %s: %w", f.Rel, err)
			}
		}
		return nil
	})
}

// RecordMissing stores the unresolved manifest rows of a run.
func (s *Store) RecordMissing(ctx context.Context, runID string, records []manifest.Record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO missing (run_id, row_index, filename, label) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx, runID, rec.Row, rec.Filename, rec.Label); err != nil {
				return fmt.Errorf("insert missing row %d: %w", rec.Row, err)
			}
		}
		return nil
	})
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun loads one run by ID. An empty id selects the latest run.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var row *sql.Row
	if id == "" {
		row = s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	}
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		if id == "" {
			return nil, fmt.Errorf("%w: no runs recorded", services.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: run %s", services.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// MissingNames returns the unresolved rows of a run in manifest order.
func (s *Store) MissingNames(ctx context.Context, runID string, limit int) ([]MissingName, error) {
	query := `SELECT row_index, filename, label FROM missing WHERE run_id = ? ORDER BY row_index`
	args := []any{runID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list missing: %w", err)
	}
	defer rows.Close()

	var out []MissingName
	for rows.Next() {
		var m MissingName
		if err := rows.Scan(&m.Row, &m.Filename, &m.Label); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FileDigests returns the recorded files of a run ordered by path.
func (s *Store) FileDigests(ctx context.Context, runID string) ([]FileDigest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rel_path, kind, size, digest FROM files WHERE run_id = ? ORDER BY rel_path`, runID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []FileDigest
	for rows.Next() {
		var f FileDigest
		if err := rows.Scan(&f.Rel, &f.Kind, &f.Size, &f.Digest); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		started   string
		finished  sql.NullString
		rewritten int
	)
	err := row.Scan(&run.ID, &run.Command, &started, &finished, &run.Status, &run.FailureKind, &run.Error,
		&run.ArchivePath, &run.ManifestPath, &run.ArchiveFormat, &run.ArchiveEncoding, &run.ManifestEncoding,
		&rewritten, &run.FilesExtracted, &run.BytesExtracted, &run.Renamed, &run.Matched, &run.Missing,
		&run.Skipped, &run.DictionarySize)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = parseTime(started)
	if finished.Valid {
		run.FinishedAt = parseTime(finished.String)
	}
	run.ManifestRewritten = rewritten != 0
	return run, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func commandOrDefault(command string) string {
	if command == "" {
		return "prepare"
	}
	return command
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
