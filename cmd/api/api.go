package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/proxy"
	"github.com/therealutkarshpriyadarshi/render/internal/queue"
	"github.com/therealutkarshpriyadarshi/render/internal/render"
	"github.com/therealutkarshpriyadarshi/render/internal/storage"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// TimelineStore resolves timelines and render jobs
type TimelineStore interface {
	GetTimeline(ctx context.Context, id string) (*models.TimelineRecord, error)
	SaveTimeline(ctx context.Context, record *models.TimelineRecord) error
	GetRenderJobByRenderID(ctx context.Context, renderID string) (*models.RenderJob, error)
}

// RenderLauncher starts renders on the farm
type RenderLauncher interface {
	Launch(ctx context.Context, timelineID string, timeline *models.Timeline, accountConcurrency, hardCap int) (*render.LaunchResult, error)
}

// ProgressPoller polls a render once
type ProgressPoller interface {
	Poll(ctx context.Context, renderID, bucket string) (models.ProgressResult, error)
}

// ProxyManager drives proxy lifecycles
type ProxyManager interface {
	Ensure(ctx context.Context, urls []string) ([]proxy.Outcome, error)
	Status(ctx context.Context, urls []string) (map[string]*models.ProxyRecord, error)
	Cleanup(ctx context.Context, urls []string) (int, error)
	PreviewProxies(ctx context.Context, urls []string) (map[string]string, error)
}

// PollScheduler hands launched renders to the background poller
type PollScheduler interface {
	PublishPoll(ctx context.Context, msg *queue.RenderPollMessage) error
}

// OutputPresigner signs render output URLs
type OutputPresigner interface {
	PresignedOutputURL(ctx context.Context, bucket, outputURL string) (string, error)
}

// LaunchNotifier announces launched renders
type LaunchNotifier interface {
	RenderLaunched(ctx context.Context, job *models.RenderJob)
}

// HealthChecker reports dependency health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// API holds the HTTP handlers' collaborators. launcher, tracker and proxies
// are nil when their external service has no credentials.
type API struct {
	timelines TimelineStore
	launcher  RenderLauncher
	tracker   ProgressPoller
	proxies   ProxyManager
	polls     PollScheduler
	outputs   OutputPresigner
	notifier  LaunchNotifier
	health    HealthChecker
	logger    *logging.Logger

	accountConcurrency int
	hardCap            int
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// respondStoreError maps record store failures onto HTTP statuses
func (api *API) respondStoreError(c *gin.Context, what string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, what+" not found")
	case errors.Is(err, render.ErrNotConfigured), errors.Is(err, proxy.ErrNotConfigured), errors.Is(err, storage.ErrNotConfigured):
		respondError(c, http.StatusServiceUnavailable, err.Error())
	default:
		api.logger.WithError(err).Errorf("failed to load %s", what)
		respondError(c, http.StatusInternalServerError, "Failed to load "+what)
	}
}

func (api *API) healthCheck(c *gin.Context) {
	if api.health != nil {
		if err := api.health.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"farm":      api.launcher != nil,
		"transcode": api.proxies != nil,
	})
}
