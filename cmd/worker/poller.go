package main

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/queue"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

const renderTimedOut = "render timed out"

// ProgressTracker polls renders and records their outcome
type ProgressTracker interface {
	Poll(ctx context.Context, renderID, bucket string) (models.ProgressResult, error)
	Abandon(ctx context.Context, renderID, reason string) (models.ProgressResult, error)
}

// PollQueue reschedules poll messages
type PollQueue interface {
	PublishPollDelayed(ctx context.Context, msg *queue.RenderPollMessage, delay time.Duration) error
	PublishToDeadLetterQueue(ctx context.Context, msg *queue.RenderPollMessage, reason string) error
}

// pollHandler drives one render per message until it is terminal
type pollHandler struct {
	tracker       ProgressTracker
	queue         PollQueue
	pollInterval  time.Duration
	renderTimeout time.Duration
	logger        *logging.Logger
	now           func() time.Time
}

func newPollHandler(tracker ProgressTracker, q PollQueue, pollInterval, renderTimeout time.Duration, logger *logging.Logger) *pollHandler {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &pollHandler{
		tracker:       tracker,
		queue:         q,
		pollInterval:  pollInterval,
		renderTimeout: renderTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// Handle polls the render once and schedules the next poll while it is
// running. Renders still running, or unreachable, past the render timeout
// are abandoned. A returned error requeues the message.
func (h *pollHandler) Handle(ctx context.Context, msg *queue.RenderPollMessage) error {
	logger := h.logger.WithRenderID(msg.RenderID)

	result, err := h.tracker.Poll(ctx, msg.RenderID, msg.Bucket)
	if err != nil {
		if h.expired(msg) {
			logger.WithError(err).Warn("poll failed after render timeout")
			return h.abandon(ctx, msg, logger)
		}
		return h.retry(ctx, msg, err, logger)
	}

	switch result.State {
	case models.ProgressRunning:
		if h.expired(msg) {
			return h.abandon(ctx, msg, logger)
		}
		msg.Failures = 0
		logger.Debugf("render %.0f%% complete", result.Fraction*100)
		return h.queue.PublishPollDelayed(ctx, msg, h.pollInterval)
	case models.ProgressCompleted:
		logger.Info("render completed")
	case models.ProgressFailed:
		logger.WithField("reason", result.Message).Warn("render failed")
	}
	return nil
}

func (h *pollHandler) abandon(ctx context.Context, msg *queue.RenderPollMessage, logger *logging.Logger) error {
	if _, err := h.tracker.Abandon(ctx, msg.RenderID, renderTimedOut); err != nil {
		return fmt.Errorf("failed to abandon render %s: %w", msg.RenderID, err)
	}
	logger.Warnf("render abandoned after %s", h.renderTimeout)
	return nil
}

func (h *pollHandler) expired(msg *queue.RenderPollMessage) bool {
	if h.renderTimeout <= 0 || msg.LaunchedAt.IsZero() {
		return false
	}
	return h.now().Sub(msg.LaunchedAt) > h.renderTimeout
}

// retry backs off after a poll that could not reach the farm, parking the
// message once it has failed too often
func (h *pollHandler) retry(ctx context.Context, msg *queue.RenderPollMessage, pollErr error, logger *logging.Logger) error {
	msg.Failures++
	if msg.Failures > queue.MaxPollFailures {
		logger.WithError(pollErr).Errorf("giving up polling after %d failures", msg.Failures)
		return h.queue.PublishToDeadLetterQueue(ctx, msg, pollErr.Error())
	}

	delay := queue.BackoffDelay(h.pollInterval, msg.Failures)
	logger.WithError(pollErr).Warnf("poll failed, retrying in %s", delay)
	return h.queue.PublishPollDelayed(ctx, msg, delay)
}
