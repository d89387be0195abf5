package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analysis_jobs (id, status, current_step, progress_percent, config, created_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)`
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.CurrentStep,
		job.ProgressPercent,
		cfg,
		job.CreatedAt,
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Job, error) {
	const query = `
SELECT id, status, current_step, progress_percent, config, results, skipped_channels,
       degraded_channels, error_code, error_summary, created_at, started_at, completed_at
FROM analysis_jobs
WHERE id = $1
LIMIT 1`
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return job, err
}

// List returns jobs ordered newest-first.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, status, current_step, progress_percent, config, results, skipped_channels,
       degraded_channels, error_code, error_summary, created_at, started_at, completed_at
FROM analysis_jobs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// MarkProcessing transitions a pending job to processing.
func (r *PGRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	const query = `
UPDATE analysis_jobs
SET status = $1, started_at = $2
WHERE id = $3 AND status = $4`
	return r.execActive(ctx, id, query, StatusProcessing, startedAt, id, StatusPending)
}

// UpdateProgress records step and percent without touching payload columns.
// Only live jobs accept progress writes; a collector finishing after a
// cancellation gets ErrTerminal instead of mutating the cancelled row.
func (r *PGRepo) UpdateProgress(ctx context.Context, id string, step, percent int) error {
	const query = `
UPDATE analysis_jobs
SET current_step = $1, progress_percent = $2
WHERE id = $3 AND status IN ($4, $5)`
	return r.execActive(ctx, id, query, step, percent, id, StatusPending, StatusProcessing)
}

// Complete stores results and marks the job completed.
func (r *PGRepo) Complete(ctx context.Context, id string, results []OutlierResult, skipped []SkippedChannel, degraded []string, completedAt time.Time) error {
	const query = `
UPDATE analysis_jobs
SET status = $1, current_step = $2, progress_percent = 100,
    results = $3::jsonb, skipped_channels = $4::jsonb, degraded_channels = $5::jsonb, completed_at = $6
WHERE id = $7 AND status IN ($8, $9)`
	resultPayload, err := marshalJSONB(results)
	if err != nil {
		return err
	}
	skippedPayload, err := marshalJSONB(skipped)
	if err != nil {
		return err
	}
	degradedPayload, err := marshalJSONB(degraded)
	if err != nil {
		return err
	}
	return r.execActive(ctx, id, query, StatusCompleted, StepFinalize, resultPayload, skippedPayload, degradedPayload, completedAt, id, StatusPending, StatusProcessing)
}

// Fail marks the job failed with a classified error.
func (r *PGRepo) Fail(ctx context.Context, id, code, summary string, skipped []SkippedChannel, completedAt time.Time) error {
	const query = `
UPDATE analysis_jobs
SET status = $1, error_code = $2, error_summary = $3,
    skipped_channels = $4::jsonb, completed_at = $5
WHERE id = $6 AND status IN ($7, $8)`
	skippedPayload, err := marshalJSONB(skipped)
	if err != nil {
		return err
	}
	return r.execActive(ctx, id, query, StatusFailed, code, summary, skippedPayload, completedAt, id, StatusPending, StatusProcessing)
}

// MarkCancelled transitions a non-terminal job to cancelled.
func (r *PGRepo) MarkCancelled(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	const query = `
UPDATE analysis_jobs
SET status = $1, completed_at = $2
WHERE id = $3 AND status IN ($4, $5)`
	res, err := r.DB.ExecContext(ctx, query, StatusCancelled, completedAt, id, StatusPending, StatusProcessing)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// distinguish missing from already terminal
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// execActive runs a status-guarded update and maps a zero-row result on an
// existing job to ErrTerminal.
func (r *PGRepo) execActive(ctx context.Context, id, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrTerminal
	}
	return nil
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(value)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var config []byte
	var results, skipped, degraded sql.NullString
	var errorCode, errorSummary sql.NullString
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.CurrentStep,
		&job.ProgressPercent,
		&config,
		&results,
		&skipped,
		&degraded,
		&errorCode,
		&errorSummary,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return Job{}, err
	}

	if err := json.Unmarshal(config, &job.Config); err != nil {
		return Job{}, err
	}
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &job.Results); err != nil {
			return Job{}, err
		}
	}
	if skipped.Valid && skipped.String != "" {
		if err := json.Unmarshal([]byte(skipped.String), &job.SkippedChannels); err != nil {
			return Job{}, err
		}
	}
	if degraded.Valid && degraded.String != "" {
		if err := json.Unmarshal([]byte(degraded.String), &job.DegradedChannels); err != nil {
			return Job{}, err
		}
	}
	job.ErrorCode = errorCode.String
	job.ErrorSummary = errorSummary.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}
