package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/render/internal/queue"
	"github.com/therealutkarshpriyadarshi/render/internal/render"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

const farmNotConfigured = "Render farm is not configured: set farm.endpoint and farm.apiKey"

type launchRequest struct {
	TimelineID string `json:"timelineId" binding:"required"`
}

type launchResponse struct {
	RenderID         string `json:"renderId"`
	BucketName       string `json:"bucketName"`
	FramesPerLambda  int    `json:"framesPerLambda"`
	EstimatedChunks  int    `json:"estimatedChunks"`
	ConcurrencyLimit int    `json:"concurrencyLimit"`
	Attempt          int    `json:"attempt"`
}

// launchRender starts a render of a stored timeline
func (api *API) launchRender(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "timelineId is required")
		return
	}

	if api.launcher == nil {
		respondError(c, http.StatusServiceUnavailable, farmNotConfigured)
		return
	}

	ctx := c.Request.Context()
	record, err := api.timelines.GetTimeline(ctx, req.TimelineID)
	if err != nil {
		api.respondStoreError(c, "timeline", err)
		return
	}

	result, err := api.launcher.Launch(ctx, req.TimelineID, &record.Timeline, api.accountConcurrency, api.hardCap)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidTimeline):
			respondError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, render.ErrNotConfigured):
			respondError(c, http.StatusServiceUnavailable, farmNotConfigured)
		default:
			api.logger.WithTimelineID(req.TimelineID).WithError(err).Error("render launch failed")
			respondError(c, http.StatusBadGateway, err.Error())
		}
		return
	}

	job := result.Job
	api.schedulePoll(ctx, job)
	if api.notifier != nil {
		api.notifier.RenderLaunched(ctx, job)
	}

	c.JSON(http.StatusOK, launchResponse{
		RenderID:         job.RenderID,
		BucketName:       job.Bucket,
		FramesPerLambda:  result.FramesPerChunk,
		EstimatedChunks:  result.ChunkCount,
		ConcurrencyLimit: result.WorkerCeiling,
		Attempt:          result.Attempt,
	})
}

// schedulePoll hands the render to the worker. A failure is not fatal: the
// worker's sweeper republishes polls for every rendering job on start.
func (api *API) schedulePoll(ctx context.Context, job *models.RenderJob) {
	if api.polls == nil {
		return
	}

	msg := &queue.RenderPollMessage{
		RenderID:   job.RenderID,
		Bucket:     job.Bucket,
		TimelineID: job.TimelineID,
		LaunchedAt: time.Now().UTC(),
	}
	if err := api.polls.PublishPoll(ctx, msg); err != nil {
		api.logger.WithRenderID(job.RenderID).WithError(err).Warn("failed to schedule background poll")
	}
}

// getRenderProgress polls a render once
func (api *API) getRenderProgress(c *gin.Context) {
	renderID := c.Query("renderId")
	bucket := c.Query("bucketName")
	if renderID == "" {
		respondError(c, http.StatusBadRequest, "renderId is required")
		return
	}

	if api.tracker == nil {
		respondError(c, http.StatusServiceUnavailable, farmNotConfigured)
		return
	}

	ctx := c.Request.Context()
	if bucket == "" {
		job, err := api.timelines.GetRenderJobByRenderID(ctx, renderID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				respondError(c, http.StatusBadRequest, "bucketName is required for unknown renders")
				return
			}
			api.respondStoreError(c, "render", err)
			return
		}
		bucket = job.Bucket
	}

	result, err := api.tracker.Poll(ctx, renderID, bucket)
	if err != nil {
		api.logger.WithRenderID(renderID).WithError(err).Warn("progress poll failed")
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}

	switch result.State {
	case models.ProgressCompleted:
		c.JSON(http.StatusOK, gin.H{
			"done": true,
			"url":  api.outputURL(ctx, bucket, result.OutputURL),
			"size": result.SizeBytes,
		})
	case models.ProgressFailed:
		c.JSON(http.StatusOK, gin.H{
			"done":   false,
			"failed": true,
			"error":  result.Message,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"done":     false,
			"progress": result.Fraction,
		})
	}
}

func (api *API) outputURL(ctx context.Context, bucket, outputURL string) string {
	if api.outputs == nil || outputURL == "" {
		return outputURL
	}

	signed, err := api.outputs.PresignedOutputURL(ctx, bucket, outputURL)
	if err != nil {
		api.logger.WithError(err).Warn("failed to presign render output")
		return outputURL
	}
	return signed
}
