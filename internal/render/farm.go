package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// ErrNotConfigured is returned when render farm credentials are missing
var ErrNotConfigured = errors.New("render farm is not configured")

// Farm is the external distributed render service
type Farm interface {
	Launch(ctx context.Context, req LaunchRequest) (*LaunchResponse, error)
	Progress(ctx context.Context, renderID, bucket string) (*ProgressResponse, error)
}

// LaunchRequest starts a distributed render
type LaunchRequest struct {
	Composition    string           `json:"composition"`
	Codec          string           `json:"codec"`
	FramesPerChunk int              `json:"framesPerLambda"`
	InputProps     *models.Timeline `json:"inputProps"`
}

// LaunchResponse identifies a started render
type LaunchResponse struct {
	RenderID   string `json:"renderId"`
	BucketName string `json:"bucketName"`
}

// ChunkError is an error the farm reported for one chunk
type ChunkError struct {
	Chunk   int    `json:"chunk"`
	Message string `json:"message"`
	IsFatal bool   `json:"isFatal"`
}

// ProgressResponse is the farm's aggregate view of a render
type ProgressResponse struct {
	OverallProgress       float64      `json:"overallProgress"`
	Done                  bool         `json:"done"`
	OutputFile            string       `json:"outputFile"`
	OutputKey             string       `json:"outKey"`
	OutputSizeInBytes     int64        `json:"outputSizeInBytes"`
	FatalErrorEncountered bool         `json:"fatalErrorEncountered"`
	Errors                []ChunkError `json:"errors"`
}

// Fatal reports whether the farm flagged the render or any chunk as fatally failed
func (p *ProgressResponse) Fatal() bool {
	if p.FatalErrorEncountered {
		return true
	}
	for _, e := range p.Errors {
		if e.IsFatal {
			return true
		}
	}
	return false
}

// FatalMessage returns the first fatal chunk error, or a generic message
func (p *ProgressResponse) FatalMessage() string {
	for _, e := range p.Errors {
		if e.IsFatal && e.Message != "" {
			return e.Message
		}
	}
	for _, e := range p.Errors {
		if e.Message != "" {
			return e.Message
		}
	}
	return "render failed"
}

// HTTPFarm talks to the render farm's HTTP API
type HTTPFarm struct {
	client        *http.Client
	endpoint      string
	apiKey        string
	launchTimeout time.Duration
	pollTimeout   time.Duration
	logger        *logging.Logger
}

// NewHTTPFarm creates a farm client. It returns ErrNotConfigured when the
// endpoint or key is missing. logger may be nil.
func NewHTTPFarm(cfg config.FarmConfig, logger *logging.Logger) (*HTTPFarm, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	launchTimeout := cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 90 * time.Second
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &HTTPFarm{
		client:        &http.Client{},
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:        cfg.APIKey,
		launchTimeout: launchTimeout,
		pollTimeout:   pollTimeout,
		logger:        logger,
	}, nil
}

// Launch starts a render
func (f *HTTPFarm) Launch(ctx context.Context, req LaunchRequest) (*LaunchResponse, error) {
	span, ctx := tracing.StartSpan(ctx, "farm.launch")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "frames_per_chunk", req.FramesPerChunk)

	ctx, cancel := context.WithTimeout(ctx, f.launchTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal launch request: %w", err)
	}

	var resp LaunchResponse
	start := time.Now()
	err = f.do(ctx, http.MethodPost, f.endpoint+"/renders", bytes.NewReader(body), &resp)
	f.observe("launch", start, err)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}
	if resp.RenderID == "" {
		return nil, &FarmError{Message: "render farm returned no render id"}
	}

	return &resp, nil
}

// Progress fetches aggregate progress for a render
func (f *HTTPFarm) Progress(ctx context.Context, renderID, bucket string) (*ProgressResponse, error) {
	span, ctx := tracing.StartSpan(ctx, "farm.progress")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "render_id", renderID)

	ctx, cancel := context.WithTimeout(ctx, f.pollTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/renders/%s?bucketName=%s", f.endpoint, url.PathEscape(renderID), url.QueryEscape(bucket))

	var resp ProgressResponse
	start := time.Now()
	err := f.do(ctx, http.MethodGet, u, nil, &resp)
	f.observe("progress", start, err)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	return &resp, nil
}

func (f *HTTPFarm) observe(operation string, start time.Time, err error) {
	elapsed := time.Since(start)
	metrics.RecordExternalCall("farm", operation, err, elapsed.Seconds())
	f.logger.LogExternalCall("farm", operation, elapsed, err)
}

func (f *HTTPFarm) do(ctx context.Context, method, u string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("render farm request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read render farm response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FarmError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode render farm response: %w", err)
	}
	return nil
}

// errorMessage pulls a human readable message out of an error body
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}
