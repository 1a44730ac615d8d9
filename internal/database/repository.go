package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/metrics"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// Repository provides database operations
type Repository struct {
	db     *DB
	logger *logging.Logger
}

// NewRepository creates a new repository. logger may be nil.
func NewRepository(db *DB, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) observe(operation string, start time.Time, err error) {
	elapsed := time.Since(start)
	status := "success"
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		status = "error"
	} else {
		err = nil
	}
	metrics.RecordDatabaseOperation(operation, status, elapsed.Seconds())
	r.logger.LogDatabaseOperation(operation, elapsed, err)
}

// Timelines

// SaveTimeline inserts or replaces a timeline document
func (r *Repository) SaveTimeline(ctx context.Context, record *models.TimelineRecord) (err error) {
	defer func(start time.Time) { r.observe("save_timeline", start, err) }(time.Now())

	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	data, err := json.Marshal(record.Timeline)
	if err != nil {
		return fmt.Errorf("failed to marshal timeline: %w", err)
	}

	query := `
		INSERT INTO timelines (id, data)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`

	if _, err = r.db.Pool.Exec(ctx, query, record.ID, data); err != nil {
		return fmt.Errorf("failed to save timeline: %w", err)
	}

	return nil
}

// GetTimeline retrieves a timeline by ID
func (r *Repository) GetTimeline(ctx context.Context, id string) (rec *models.TimelineRecord, err error) {
	defer func(start time.Time) { r.observe("get_timeline", start, err) }(time.Now())

	var (
		record models.TimelineRecord
		data   []byte
	)

	query := `
		SELECT id, data, active_render_id
		FROM timelines
		WHERE id = $1
	`

	err = r.db.Pool.QueryRow(ctx, query, id).Scan(&record.ID, &data, &record.ActiveRenderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("timeline %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timeline: %w", err)
	}

	if err = json.Unmarshal(data, &record.Timeline); err != nil {
		return nil, fmt.Errorf("failed to decode timeline %s: %w", id, err)
	}

	return &record, nil
}

// Render jobs

const renderJobColumns = `
	id, timeline_id, render_id, bucket, frames_per_chunk, chunk_count, status,
	output_url, output_size, error_message, completed_at, created_at, updated_at
`

func scanRenderJob(row pgx.Row) (*models.RenderJob, error) {
	var job models.RenderJob
	err := row.Scan(
		&job.ID, &job.TimelineID, &job.RenderID, &job.Bucket, &job.FramesPerChunk,
		&job.ChunkCount, &job.Status, &job.OutputURL, &job.OutputSize,
		&job.ErrorMessage, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateRenderJob records a launched render and points its timeline at it
func (r *Repository) CreateRenderJob(ctx context.Context, job *models.RenderJob) (err error) {
	defer func(start time.Time) { r.observe("create_render_job", start, err) }(time.Now())

	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO render_jobs (id, timeline_id, render_id, bucket, frames_per_chunk, chunk_count, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			job.ID, job.TimelineID, job.RenderID, job.Bucket,
			job.FramesPerChunk, job.ChunkCount, job.Status,
		).Scan(&job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create render job: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE timelines SET active_render_id = $2, updated_at = NOW() WHERE id = $1`,
			job.TimelineID, job.RenderID,
		)
		if err != nil {
			return fmt.Errorf("failed to set active render: %w", err)
		}

		return nil
	})
}

// GetRenderJobByRenderID retrieves a render job by the farm's render ID
func (r *Repository) GetRenderJobByRenderID(ctx context.Context, renderID string) (job *models.RenderJob, err error) {
	defer func(start time.Time) { r.observe("get_render_job", start, err) }(time.Now())

	query := `SELECT ` + renderJobColumns + ` FROM render_jobs WHERE render_id = $1`

	job, err = scanRenderJob(r.db.Pool.QueryRow(ctx, query, renderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("render %s: %w", renderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render job: %w", err)
	}

	return job, nil
}

// MarkRenderCompleted moves a rendering job to rendered. It reports false
// when the job had already left the rendering state.
func (r *Repository) MarkRenderCompleted(ctx context.Context, renderID, outputURL string, sizeBytes int64) (changed bool, err error) {
	defer func(start time.Time) { r.observe("mark_render_completed", start, err) }(time.Now())

	query := `
		UPDATE render_jobs
		SET status = $2, output_url = $3, output_size = $4, completed_at = NOW(), updated_at = NOW()
		WHERE render_id = $1 AND status = $5
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		renderID, models.RenderStatusRendered, outputURL, sizeBytes, models.RenderStatusRendering,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark render completed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkRenderFailed moves a rendering job to failed. It reports false when
// the job had already left the rendering state.
func (r *Repository) MarkRenderFailed(ctx context.Context, renderID, message string) (changed bool, err error) {
	defer func(start time.Time) { r.observe("mark_render_failed", start, err) }(time.Now())

	query := `
		UPDATE render_jobs
		SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
		WHERE render_id = $1 AND status = $4
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		renderID, models.RenderStatusFailed, models.TruncateMessage(message), models.RenderStatusRendering,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark render failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListRenderingJobs returns in-flight renders, oldest first
func (r *Repository) ListRenderingJobs(ctx context.Context, limit int) (jobs []*models.RenderJob, err error) {
	defer func(start time.Time) { r.observe("list_rendering_jobs", start, err) }(time.Now())

	query := `SELECT ` + renderJobColumns + `
		FROM render_jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, models.RenderStatusRendering, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendering jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanRenderJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan render job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}
