package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/metrics"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// Service delivers signed event notifications to configured endpoints
type Service struct {
	client      *http.Client
	endpoints   []models.Webhook
	logger      *logging.Logger
	retryDelays []time.Duration
	wg          sync.WaitGroup
}

// NewService creates a new webhook service
func NewService(cfg config.WebhookConfig, logger *logging.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Service{
		client:    &http.Client{Timeout: timeout},
		endpoints: cfg.Endpoints,
		logger:    logger,
		// Delays between attempts; one initial attempt plus one per entry
		retryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			15 * time.Second,
		},
	}
}

// RenderLaunched announces a newly launched render
func (s *Service) RenderLaunched(ctx context.Context, job *models.RenderJob) {
	s.Notify(ctx, models.WebhookEventRenderLaunched, job)
}

// RenderFinished announces a render that reached a terminal state
func (s *Service) RenderFinished(ctx context.Context, job *models.RenderJob) {
	event := models.WebhookEventRenderCompleted
	if job.Status == models.RenderStatusFailed {
		event = models.WebhookEventRenderFailed
	}
	s.Notify(ctx, event, job)
}

// Notify sends event to every subscribed endpoint in the background.
// Delivery failures are logged, never returned.
func (s *Service) Notify(ctx context.Context, event string, data interface{}) {
	if len(s.endpoints) == 0 {
		return
	}

	payload := models.WebhookEvent{
		ID:        uuid.New().String(),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorWithErr("failed to marshal webhook payload", err)
		return
	}

	for _, endpoint := range s.endpoints {
		if !endpoint.Subscribes(event) {
			continue
		}

		s.wg.Add(1)
		go func(endpoint models.Webhook) {
			defer s.wg.Done()
			// Deliveries outlive the request that triggered them.
			s.deliverWithRetry(context.WithoutCancel(ctx), endpoint, payload.ID, event, body)
		}(endpoint)
	}
}

// Wait blocks until in-flight deliveries finish
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) deliverWithRetry(ctx context.Context, endpoint models.Webhook, deliveryID, event string, body []byte) {
	logger := s.logger.WithFields(map[string]interface{}{
		"webhook_url": endpoint.URL,
		"event":       event,
		"delivery_id": deliveryID,
	})

	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := s.deliver(ctx, endpoint, deliveryID, event, body)
		metrics.RecordExternalCall("webhook", event, err, time.Since(start).Seconds())
		if err == nil {
			logger.Debug("webhook delivered")
			return
		}

		if attempt >= len(s.retryDelays) {
			logger.WithError(err).Error("webhook delivery failed, giving up")
			metrics.RecordError("webhook", "delivery_failed")
			return
		}

		logger.WithError(err).Warnf("webhook delivery failed, retrying in %s", s.retryDelays[attempt])
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelays[attempt]):
		}
	}
}

func (s *Service) deliver(ctx context.Context, endpoint models.Webhook, deliveryID, event string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Render-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Delivery", deliveryID)
	if endpoint.Secret != "" {
		req.Header.Set("X-Webhook-Signature", generateSignature(body, endpoint.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// generateSignature generates HMAC-SHA256 signature for webhook payload
func generateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
