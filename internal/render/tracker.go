package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/metrics"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// OutputLocator resolves facts about a finished render's output object
type OutputLocator interface {
	ObjectSize(ctx context.Context, bucket, key string) (int64, error)
}

// TerminalCache remembers renders that already reached a terminal state
type TerminalCache interface {
	GetRenderJob(ctx context.Context, renderID string) (*models.RenderJob, error)
	SetRenderJob(ctx context.Context, job *models.RenderJob, ttl time.Duration) error
}

// Notifier is told about terminal transitions exactly once per job
type Notifier interface {
	RenderFinished(ctx context.Context, job *models.RenderJob)
}

const terminalCacheTTL = 24 * time.Hour

// Tracker polls the farm for render progress and records terminal states.
// It is the only component that moves a job out of rendering.
type Tracker struct {
	farm     Farm
	store    JobStore
	logger   *logging.Logger
	locator  OutputLocator
	cache    TerminalCache
	notifier Notifier
}

// TrackerOption configures optional tracker collaborators
type TrackerOption func(*Tracker)

// WithOutputLocator sets the fallback used when the farm omits output size
func WithOutputLocator(locator OutputLocator) TrackerOption {
	return func(t *Tracker) { t.locator = locator }
}

// WithTerminalCache sets the cache consulted before the store
func WithTerminalCache(cache TerminalCache) TrackerOption {
	return func(t *Tracker) { t.cache = cache }
}

// WithNotifier sets the terminal transition notifier
func WithNotifier(n Notifier) TrackerOption {
	return func(t *Tracker) { t.notifier = n }
}

// NewTracker creates a progress tracker
func NewTracker(farm Farm, store JobStore, logger *logging.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{farm: farm, store: store, logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Poll queries the farm once. Renders already known to be terminal are
// answered from the stored record without contacting the farm.
func (t *Tracker) Poll(ctx context.Context, renderID, bucket string) (models.ProgressResult, error) {
	logger := t.logger.WithRenderID(renderID)

	job, err := t.lookup(ctx, renderID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return models.ProgressResult{}, err
	}
	if job != nil && job.IsTerminal() {
		metrics.RecordPoll("cached_" + job.Status)
		return resultFromJob(job), nil
	}
	if job == nil {
		logger.Warn("polling render with no job record, result will not be persisted")
	}

	resp, err := t.farm.Progress(ctx, renderID, bucket)
	if err != nil {
		metrics.RecordPoll("error")
		return models.ProgressResult{}, fmt.Errorf("failed to get render progress: %w", err)
	}

	switch {
	case resp.Fatal():
		msg := models.TruncateMessage(resp.FatalMessage())
		metrics.RecordPoll("failed")
		if job == nil {
			return models.FatallyFailed(msg), nil
		}
		return t.fail(ctx, renderID, msg)

	case resp.Done:
		size := resp.OutputSizeInBytes
		if size == 0 && t.locator != nil && resp.OutputKey != "" {
			if n, err := t.locator.ObjectSize(ctx, bucket, resp.OutputKey); err == nil {
				size = n
			} else {
				logger.WithError(err).Warn("failed to stat render output")
			}
		}
		metrics.RecordPoll("completed")
		if job == nil {
			return models.Completed(resp.OutputFile, size), nil
		}
		return t.complete(ctx, renderID, resp.OutputFile, size)

	default:
		metrics.RecordPoll("running")
		return models.Running(clampFraction(resp.OverallProgress)), nil
	}
}

// Abandon marks a still-rendering job as failed. The worker uses it when a
// render outlives its deadline.
func (t *Tracker) Abandon(ctx context.Context, renderID, reason string) (models.ProgressResult, error) {
	return t.fail(ctx, renderID, models.TruncateMessage(reason))
}

func (t *Tracker) complete(ctx context.Context, renderID, outputURL string, size int64) (models.ProgressResult, error) {
	changed, err := t.store.MarkRenderCompleted(ctx, renderID, outputURL, size)
	if err != nil {
		return models.ProgressResult{}, fmt.Errorf("failed to record render completion: %w", err)
	}
	return t.settle(ctx, renderID, changed)
}

func (t *Tracker) fail(ctx context.Context, renderID, msg string) (models.ProgressResult, error) {
	changed, err := t.store.MarkRenderFailed(ctx, renderID, msg)
	if err != nil {
		return models.ProgressResult{}, fmt.Errorf("failed to record render failure: %w", err)
	}
	return t.settle(ctx, renderID, changed)
}

// settle re-reads the job after a terminal write. When another poll got there
// first the stored state wins, so a failed render never turns into a finished
// one or the other way round.
func (t *Tracker) settle(ctx context.Context, renderID string, changed bool) (models.ProgressResult, error) {
	job, err := t.store.GetRenderJobByRenderID(ctx, renderID)
	if err != nil {
		return models.ProgressResult{}, fmt.Errorf("failed to reload render job: %w", err)
	}

	if t.cache != nil && job.IsTerminal() {
		if err := t.cache.SetRenderJob(ctx, job, terminalCacheTTL); err != nil {
			t.logger.WithRenderID(renderID).WithError(err).Warn("failed to cache terminal render")
		}
	}

	if changed {
		t.logger.LogRenderEvent(renderID, "finished", job.Status, map[string]interface{}{
			"output_url": job.OutputURL,
			"error":      job.ErrorMessage,
		})
		metrics.RecordRenderFinished(job.Status, time.Since(job.CreatedAt).Seconds())
		if t.notifier != nil {
			t.notifier.RenderFinished(ctx, job)
		}
	}

	return resultFromJob(job), nil
}

func (t *Tracker) lookup(ctx context.Context, renderID string) (*models.RenderJob, error) {
	if t.cache != nil {
		if job, err := t.cache.GetRenderJob(ctx, renderID); err == nil && job != nil && job.IsTerminal() {
			metrics.RecordCacheAccess("render", true)
			return job, nil
		}
		metrics.RecordCacheAccess("render", false)
	}
	return t.store.GetRenderJobByRenderID(ctx, renderID)
}

func resultFromJob(job *models.RenderJob) models.ProgressResult {
	switch job.Status {
	case models.RenderStatusRendered:
		return models.Completed(job.OutputURL, job.OutputSize)
	case models.RenderStatusFailed:
		return models.FatallyFailed(job.ErrorMessage)
	default:
		return models.Running(0)
	}
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
