package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/render/internal/config"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/metrics"
	"github.com/therealutkarshpriyadarshi/render/internal/tracing"
)

// APIError is a non-success answer from the transcode service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transcode service: %s", e.Message)
	}
	return fmt.Sprintf("transcode service returned %d: %s", e.StatusCode, e.Message)
}

// envelope is the service's standard response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiMessage    `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type streamResult struct {
	UID       string  `json:"uid"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	Status    struct {
		State           string `json:"state"`
		ErrorReasonText string `json:"errorReasonText"`
	} `json:"status"`
	Playback struct {
		HLS  string `json:"hls"`
		Dash string `json:"dash"`
	} `json:"playback"`
}

type downloadResult struct {
	Default struct {
		Status string `json:"status"`
		URL    string `json:"url"`
	} `json:"default"`
}

// Client talks to the transcode service's HTTP API
type Client struct {
	client        *http.Client
	baseURL       string
	token         string
	uploadTimeout time.Duration
	pollTimeout   time.Duration
	logger        *logging.Logger
}

// NewClient creates a transcode client. It returns ErrNotConfigured when
// credentials are missing. logger may be nil.
func NewClient(cfg config.TranscodeConfig, logger *logging.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 90 * time.Second
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Client{
		client:        &http.Client{},
		baseURL:       fmt.Sprintf("%s/accounts/%s/stream", strings.TrimRight(cfg.Endpoint, "/"), url.PathEscape(cfg.AccountID)),
		token:         cfg.APIToken,
		uploadTimeout: uploadTimeout,
		pollTimeout:   pollTimeout,
		logger:        logger,
	}, nil
}

// CopyFromURL starts a transcode of a publicly reachable source
func (c *Client) CopyFromURL(ctx context.Context, sourceURL string) (string, error) {
	span, ctx := tracing.StartSpan(ctx, "transcode.copy")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "url", sourceURL)

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{
		"url":  sourceURL,
		"meta": map[string]string{"name": sourceURL},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal copy request: %w", err)
	}

	var result streamResult
	start := time.Now()
	err = c.do(ctx, http.MethodPost, c.baseURL+"/copy", body, &result)
	c.observe("copy", start, err)
	if err != nil {
		tracing.LogError(span, err)
		return "", err
	}
	if result.UID == "" {
		return "", &APIError{Message: "no stream id in copy response"}
	}

	return result.UID, nil
}

// Get fetches the current state of a stream
func (c *Client) Get(ctx context.Context, streamID string) (*StreamInfo, error) {
	span, ctx := tracing.StartSpan(ctx, "transcode.get")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "stream_id", streamID)

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	var result streamResult
	start := time.Now()
	err := c.do(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(streamID), nil, &result)
	c.observe("get", start, err)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	return &StreamInfo{
		UID:             streamID,
		State:           result.Status.State,
		ErrorText:       result.Status.ErrorReasonText,
		PlaybackURL:     result.Playback.HLS,
		ThumbnailURL:    result.Thumbnail,
		DurationSeconds: result.Duration,
	}, nil
}

// EnableDownload creates (or returns) the downloadable MP4 rendition
func (c *Client) EnableDownload(ctx context.Context, streamID string) (string, bool, error) {
	span, ctx := tracing.StartSpan(ctx, "transcode.download")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "stream_id", streamID)

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	var result downloadResult
	start := time.Now()
	err := c.do(ctx, http.MethodPost, c.baseURL+"/"+url.PathEscape(streamID)+"/downloads", []byte("{}"), &result)
	c.observe("download", start, err)
	if err != nil {
		tracing.LogError(span, err)
		return "", false, err
	}

	return result.Default.URL, result.Default.Status == StreamStateReady, nil
}

// Delete removes a stream from the service
func (c *Client) Delete(ctx context.Context, streamID string) error {
	span, ctx := tracing.StartSpan(ctx, "transcode.delete")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "stream_id", streamID)

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	start := time.Now()
	err := c.do(ctx, http.MethodDelete, c.baseURL+"/"+url.PathEscape(streamID), nil, nil)
	c.observe("delete", start, err)
	if err != nil {
		tracing.LogError(span, err)
	}
	return err
}

func (c *Client) observe(operation string, start time.Time, err error) {
	elapsed := time.Since(start)
	metrics.RecordExternalCall("transcode", operation, err, elapsed.Seconds())
	c.logger.LogExternalCall("transcode", operation, elapsed, err)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("transcode request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read transcode response: %w", err)
	}

	// Deletes answer with an empty body
	if len(bytes.TrimSpace(data)) == 0 {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}
		return fmt.Errorf("failed to decode transcode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: envelopeMessage(env)}
	}

	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode transcode result: %w", err)
	}
	return nil
}

func envelopeMessage(env envelope) string {
	msgs := make([]string, 0, len(env.Errors))
	for _, e := range env.Errors {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) == 0 {
		return "request unsuccessful"
	}
	return strings.Join(msgs, "; ")
}
