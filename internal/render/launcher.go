package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/metrics"
	"github.com/therealutkarshpriyadarshi/render/internal/proxy"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// DefaultMaxAttempts bounds the adaptive launch loop
const DefaultMaxAttempts = 3

// ErrRetriesExhausted wraps the last farm error when every attempt was rejected
var ErrRetriesExhausted = errors.New("render launch retries exhausted")

// JobStore persists render jobs
type JobStore interface {
	CreateRenderJob(ctx context.Context, job *models.RenderJob) error
	GetRenderJobByRenderID(ctx context.Context, renderID string) (*models.RenderJob, error)
	// MarkRenderCompleted and MarkRenderFailed only transition jobs that are
	// still rendering and report whether they did.
	MarkRenderCompleted(ctx context.Context, renderID, outputURL string, sizeBytes int64) (bool, error)
	MarkRenderFailed(ctx context.Context, renderID, message string) (bool, error)
}

// ProxyLookup is a read-only view of ready proxy URLs keyed by source URL
type ProxyLookup interface {
	ReadyProxies(ctx context.Context, urls []string) (map[string]string, error)
}

// LaunchResult describes a successful launch and the plan that was accepted
type LaunchResult struct {
	Job            *models.RenderJob
	FramesPerChunk int
	ChunkCount     int
	WorkerCeiling  int
	Attempt        int
}

// Launcher starts renders, shrinking the chunk plan when the farm rejects it
type Launcher struct {
	farm        Farm
	store       JobStore
	proxies     ProxyLookup
	logger      *logging.Logger
	composition string
	codec       string
	maxAttempts int
}

// NewLauncher creates a launcher. proxies may be nil.
func NewLauncher(cfg config.FarmConfig, farm Farm, store JobStore, proxies ProxyLookup, logger *logging.Logger) *Launcher {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}

	return &Launcher{
		farm:        farm,
		store:       store,
		proxies:     proxies,
		logger:      logger,
		composition: cfg.Composition,
		codec:       cfg.Codec,
		maxAttempts: attempts,
	}
}

// Launch renders timeline on the farm. accountConcurrency is the account-wide
// worker ceiling shared by all renders; hardCap is the farm's per-render cap.
// A job record is written only after the farm accepts the render.
func (l *Launcher) Launch(ctx context.Context, timelineID string, timeline *models.Timeline, accountConcurrency, hardCap int) (*LaunchResult, error) {
	if err := timeline.Validate(); err != nil {
		return nil, err
	}

	logger := l.logger.WithTimelineID(timelineID)
	working := l.acceleratedCopy(ctx, timeline, logger)

	totalFrames := timeline.DurationInFrames
	ceiling := InitialWorkerCeiling(accountConcurrency, hardCap)

	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		framesPerChunk := PlanChunks(totalFrames, ceiling)
		metrics.RecordLaunchAttempt(attempt)

		resp, err := l.farm.Launch(ctx, LaunchRequest{
			Composition:    l.composition,
			Codec:          l.codec,
			FramesPerChunk: framesPerChunk,
			InputProps:     working,
		})
		logger.LogLaunchAttempt(attempt, ceiling, framesPerChunk, err)

		if err == nil {
			return l.persist(ctx, timelineID, resp, totalFrames, framesPerChunk, ceiling, attempt)
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		class := ClassifyFarmError(err)
		metrics.RecordLaunchRejection(class.String())
		if class == RejectionFatal {
			metrics.RecordLaunch("rejected")
			return nil, fmt.Errorf("render farm rejected launch: %w", err)
		}

		next := NextWorkerCeiling(ceiling, class, farmMessage(err))
		if spawn, ok := ParseWouldSpawn(farmMessage(err)); ok {
			logger.Infof("farm rejected %d workers, shrinking ceiling %d -> %d", spawn, ceiling, next)
		}
		ceiling = next
	}

	metrics.RecordLaunch("exhausted")
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, l.maxAttempts, lastErr)
}

func (l *Launcher) persist(ctx context.Context, timelineID string, resp *LaunchResponse, totalFrames, framesPerChunk, ceiling, attempt int) (*LaunchResult, error) {
	job := &models.RenderJob{
		ID:             uuid.New().String(),
		TimelineID:     timelineID,
		RenderID:       resp.RenderID,
		Bucket:         resp.BucketName,
		FramesPerChunk: framesPerChunk,
		ChunkCount:     ChunkCount(totalFrames, framesPerChunk),
		Status:         models.RenderStatusRendering,
	}

	if err := l.store.CreateRenderJob(ctx, job); err != nil {
		// The farm is already rendering; surface the handle so it isn't lost.
		l.logger.WithRenderID(resp.RenderID).ErrorWithErr("failed to persist render job", err)
		return nil, fmt.Errorf("render %s launched but not recorded: %w", resp.RenderID, err)
	}

	metrics.RecordLaunch("launched")
	metrics.ObserveWorkerCeiling(ceiling)
	l.logger.LogRenderEvent(job.RenderID, "launched", job.Status, map[string]interface{}{
		"timeline_id":      timelineID,
		"frames_per_chunk": framesPerChunk,
		"chunk_count":      job.ChunkCount,
		"attempt":          attempt,
	})

	return &LaunchResult{
		Job:            job,
		FramesPerChunk: framesPerChunk,
		ChunkCount:     job.ChunkCount,
		WorkerCeiling:  ceiling,
		Attempt:        attempt,
	}, nil
}

// acceleratedCopy substitutes ready video proxies into a copy of the timeline.
// Lookup failures only cost the acceleration.
func (l *Launcher) acceleratedCopy(ctx context.Context, timeline *models.Timeline, logger *logging.Logger) *models.Timeline {
	if l.proxies == nil {
		return timeline.Clone()
	}

	urls := timeline.MediaURLs(models.ClipTypeVideo)
	if len(urls) == 0 {
		return timeline.Clone()
	}

	ready, err := l.proxies.ReadyProxies(ctx, urls)
	if err != nil {
		logger.WithError(err).Warn("proxy lookup failed, rendering from original sources")
		return timeline.Clone()
	}

	return proxy.BuildAcceleratedCopy(timeline, ready, proxy.ModeRender)
}

func farmMessage(err error) string {
	var farmErr *FarmError
	if errors.As(err, &farmErr) {
		return farmErr.Message
	}
	return err.Error()
}
