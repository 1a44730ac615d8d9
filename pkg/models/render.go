package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when no record matches
var ErrNotFound = errors.New("record not found")

// RenderJob tracks one launched render and its outcome
type RenderJob struct {
	ID             string     `json:"id" db:"id"`
	TimelineID     string     `json:"timeline_id" db:"timeline_id"`
	RenderID       string     `json:"render_id" db:"render_id"`
	Bucket         string     `json:"bucket" db:"bucket"`
	FramesPerChunk int        `json:"frames_per_chunk" db:"frames_per_chunk"`
	ChunkCount     int        `json:"chunk_count" db:"chunk_count"`
	Status         string     `json:"status" db:"status"`
	OutputURL      string     `json:"output_url,omitempty" db:"output_url"`
	OutputSize     int64      `json:"output_size,omitempty" db:"output_size"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// RenderStatus constants
const (
	RenderStatusRendering = "rendering"
	RenderStatusRendered  = "rendered"
	RenderStatusFailed    = "failed"
)

// IsTerminal reports whether the job has left the rendering state
func (j *RenderJob) IsTerminal() bool {
	return j.Status == RenderStatusRendered || j.Status == RenderStatusFailed
}

// ProgressState classifies a single progress poll
type ProgressState int

// ProgressState values
const (
	ProgressRunning ProgressState = iota
	ProgressCompleted
	ProgressFailed
)

func (s ProgressState) String() string {
	switch s {
	case ProgressRunning:
		return "running"
	case ProgressCompleted:
		return "completed"
	case ProgressFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProgressResult is the outcome of one poll. Only the fields relevant to
// State are set: Fraction while running, OutputURL and SizeBytes on
// completion, Message on failure.
type ProgressResult struct {
	State     ProgressState
	Fraction  float64
	OutputURL string
	SizeBytes int64
	Message   string
}

// Running builds a running result
func Running(fraction float64) ProgressResult {
	return ProgressResult{State: ProgressRunning, Fraction: fraction}
}

// Completed builds a completed result
func Completed(outputURL string, sizeBytes int64) ProgressResult {
	return ProgressResult{State: ProgressCompleted, Fraction: 1, OutputURL: outputURL, SizeBytes: sizeBytes}
}

// FatallyFailed builds a failed result
func FatallyFailed(message string) ProgressResult {
	return ProgressResult{State: ProgressFailed, Message: message}
}

// MaxErrorMessageLength bounds persisted, user-facing error text
const MaxErrorMessageLength = 300

// TruncateMessage shortens msg to MaxErrorMessageLength characters
func TruncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorMessageLength {
		return msg
	}
	return string(runes[:MaxErrorMessageLength])
}
