package models

import "time"

// ProxyRecord tracks the transcode lifecycle of one source URL
type ProxyRecord struct {
	ID              string    `json:"id" db:"id"`
	OriginalURL     string    `json:"original_url" db:"original_url"`
	StreamID        string    `json:"stream_id,omitempty" db:"stream_id"`
	Status          string    `json:"status" db:"status"`
	ProxyURL        string    `json:"proxy_url,omitempty" db:"proxy_url"`
	PlaybackURL     string    `json:"playback_url,omitempty" db:"playback_url"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	DurationSeconds float64   `json:"duration_seconds,omitempty" db:"duration_seconds"`
	ErrorMessage    string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ProxyStatus constants
const (
	ProxyStatusUploading  = "uploading"
	ProxyStatusProcessing = "processing"
	ProxyStatusReady      = "ready"
	ProxyStatusError      = "error"
)

// IsSettled reports whether the record needs no further polling
func (p *ProxyRecord) IsSettled() bool {
	return p.Status == ProxyStatusReady || p.Status == ProxyStatusError
}

// AcceleratedURL returns the best URL for substitution: the downloadable
// proxy when present, otherwise empty.
func (p *ProxyRecord) AcceleratedURL() string {
	if p.Status != ProxyStatusReady {
		return ""
	}
	return p.ProxyURL
}
