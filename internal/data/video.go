package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobPending               JobStatus = "Pending"
	JobProcessing            JobStatus = "Processing"
	JobCompleted             JobStatus = "Completed"
	JobCompletedWithWarnings JobStatus = "CompletedWithWarnings"
	JobFailed                JobStatus = "Failed"
)

// VideoJob tracks one submitted video through the pipeline. Progress is
// monotonic non-decreasing within a single Processing run; Status only ever
// moves forward along Pending -> Processing -> {Completed, CompletedWithWarnings, Failed}.
type VideoJob struct {
	ID                 int64
	Path               string
	Status             JobStatus
	Progress           int
	Error              sql.NullString
	FramesProcessed    int
	UniqueGoatsDetected int
	Metadata           json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type VideoJobModel struct {
	DB DBTX
}

func (m VideoJobModel) Create(ctx context.Context, path string) (*VideoJob, error) {
	now := time.Now().UTC()
	j := &VideoJob{Path: path, Status: JobPending, CreatedAt: now, UpdatedAt: now}
	query := `
		INSERT INTO video_jobs (path, status, progress, frames_processed, unique_goats_detected, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, $3, $3)
		RETURNING id`
	if err := m.DB.QueryRowContext(ctx, query, path, j.Status, now).Scan(&j.ID); err != nil {
		return nil, err
	}
	return j, nil
}

func (m VideoJobModel) Get(ctx context.Context, id int64) (*VideoJob, error) {
	query := `
		SELECT id, path, status, progress, error, frames_processed, unique_goats_detected, metadata_json, created_at, updated_at
		FROM video_jobs WHERE id = $1`
	j := &VideoJob{}
	var meta []byte
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&j.ID, &j.Path, &j.Status, &j.Progress, &j.Error, &j.FramesProcessed,
		&j.UniqueGoatsDetected, &meta, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		j.Metadata = json.RawMessage(meta)
	}
	return j, nil
}

// Claim atomically transitions a Pending job to Processing so two worker
// processes racing the same queue never both pick up the same video.
// Returns false (no error) if another worker claimed it first.
func (m VideoJobModel) Claim(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE video_jobs SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := m.DB.ExecContext(ctx, query, id, JobProcessing, time.Now().UTC(), JobPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AdvanceProgress sets status and progress together. The WHERE clause
// enforces progress monotonicity at the database boundary: a stale worker
// retrying an update cannot regress a job's reported progress.
func (m VideoJobModel) AdvanceProgress(ctx context.Context, id int64, status JobStatus, progress int) error {
	query := `
		UPDATE video_jobs SET status = $2, progress = $3, updated_at = $4
		WHERE id = $1 AND progress <= $3`
	_, err := m.DB.ExecContext(ctx, query, id, status, progress, time.Now().UTC())
	return err
}

// ListPending returns up to limit jobs still waiting to be picked up by a
// worker, oldest first, so the scheduler dispatches in submission order.
func (m VideoJobModel) ListPending(ctx context.Context, limit int) ([]*VideoJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, path, status, progress, error, frames_processed, unique_goats_detected, metadata_json, created_at, updated_at
		FROM video_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := m.DB.QueryContext(ctx, query, JobPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*VideoJob
	for rows.Next() {
		j := &VideoJob{}
		var meta []byte
		if err := rows.Scan(
			&j.ID, &j.Path, &j.Status, &j.Progress, &j.Error, &j.FramesProcessed,
			&j.UniqueGoatsDetected, &meta, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			j.Metadata = json.RawMessage(meta)
		}
		out = append(out, j)
	}
	return out, nil
}

func (m VideoJobModel) IncrementFramesProcessed(ctx context.Context, id int64, delta int) error {
	query := `UPDATE video_jobs SET frames_processed = frames_processed + $2, updated_at = $3 WHERE id = $1`
	_, err := m.DB.ExecContext(ctx, query, id, delta, time.Now().UTC())
	return err
}

// Finish terminates a job with a final status, the unique-animal count
// determined by the Count Verifier, and optional error text / result metadata.
// Progress only jumps to 100 on a successful terminal status (Completed or
// CompletedWithWarnings); a Failed job keeps whatever progress it last
// reported, since it never reached 100% of the frames.
func (m VideoJobModel) Finish(ctx context.Context, id int64, status JobStatus, uniqueCount int, errText string, metadata json.RawMessage) error {
	var errVal sql.NullString
	if errText != "" {
		errVal = sql.NullString{String: errText, Valid: true}
	}
	query := `
		UPDATE video_jobs
		SET status = $2,
		    progress = CASE WHEN $2 IN ($7, $8) THEN 100 ELSE progress END,
		    unique_goats_detected = $3, error = $4, metadata_json = $5, updated_at = $6
		WHERE id = $1`
	_, err := m.DB.ExecContext(ctx, query, id, status, uniqueCount, errVal, []byte(metadata), time.Now().UTC(),
		JobCompleted, JobCompletedWithWarnings)
	return err
}
