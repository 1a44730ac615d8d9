package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// Proxy records

const proxyColumns = `
	id, original_url, stream_id, status, proxy_url, playback_url, thumbnail_url,
	duration_seconds, error_message, created_at, updated_at
`

func scanProxy(row pgx.Row) (*models.ProxyRecord, error) {
	var p models.ProxyRecord
	err := row.Scan(
		&p.ID, &p.OriginalURL, &p.StreamID, &p.Status, &p.ProxyURL, &p.PlaybackURL,
		&p.ThumbnailURL, &p.DurationSeconds, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProxiesByURLs returns the records for the given source URLs keyed by URL
func (r *Repository) GetProxiesByURLs(ctx context.Context, urls []string) (out map[string]*models.ProxyRecord, err error) {
	defer func(start time.Time) { r.observe("get_proxies", start, err) }(time.Now())

	out = make(map[string]*models.ProxyRecord, len(urls))
	if len(urls) == 0 {
		return out, nil
	}

	query := `SELECT ` + proxyColumns + ` FROM proxy_records WHERE original_url = ANY($1)`

	rows, err := r.db.Pool.Query(ctx, query, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to get proxies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proxy: %w", err)
		}
		out[p.OriginalURL] = p
	}

	return out, rows.Err()
}

// CreateProxy inserts a new proxy record
func (r *Repository) CreateProxy(ctx context.Context, p *models.ProxyRecord) (err error) {
	defer func(start time.Time) { r.observe("create_proxy", start, err) }(time.Now())

	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO proxy_records (id, original_url, stream_id, status, proxy_url, playback_url,
		                           thumbnail_url, duration_seconds, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		p.ID, p.OriginalURL, p.StreamID, p.Status, p.ProxyURL, p.PlaybackURL,
		p.ThumbnailURL, p.DurationSeconds, p.ErrorMessage,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}

	return nil
}

// UpdateProxy writes the mutable fields of a proxy record
func (r *Repository) UpdateProxy(ctx context.Context, p *models.ProxyRecord) (err error) {
	defer func(start time.Time) { r.observe("update_proxy", start, err) }(time.Now())

	query := `
		UPDATE proxy_records
		SET status = $2, proxy_url = $3, playback_url = $4, thumbnail_url = $5,
		    duration_seconds = $6, error_message = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		p.ID, p.Status, p.ProxyURL, p.PlaybackURL, p.ThumbnailURL, p.DurationSeconds, p.ErrorMessage,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("proxy %s: %w", p.ID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update proxy: %w", err)
	}

	return nil
}

// DeleteProxy removes a proxy record
func (r *Repository) DeleteProxy(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { r.observe("delete_proxy", start, err) }(time.Now())

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM proxy_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete proxy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("proxy %s: %w", id, models.ErrNotFound)
	}

	return nil
}

// ListPendingProxies returns unsettled records with a stream handle, least
// recently updated first
func (r *Repository) ListPendingProxies(ctx context.Context, limit int) (records []*models.ProxyRecord, err error) {
	defer func(start time.Time) { r.observe("list_pending_proxies", start, err) }(time.Now())

	query := `SELECT ` + proxyColumns + `
		FROM proxy_records
		WHERE status IN ($1, $2) AND stream_id <> ''
		ORDER BY updated_at ASC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, models.ProxyStatusUploading, models.ProxyStatusProcessing, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending proxies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proxy: %w", err)
		}
		records = append(records, p)
	}

	return records, rows.Err()
}
