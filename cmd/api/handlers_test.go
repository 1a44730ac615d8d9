package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/middleware"
	"github.com/therealutkarshpriyadarshi/render/internal/proxy"
	"github.com/therealutkarshpriyadarshi/render/internal/queue"
	"github.com/therealutkarshpriyadarshi/render/internal/render"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// Mocks

type MockTimelineStore struct {
	mock.Mock
}

func (m *MockTimelineStore) GetTimeline(ctx context.Context, id string) (*models.TimelineRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TimelineRecord), args.Error(1)
}

func (m *MockTimelineStore) SaveTimeline(ctx context.Context, record *models.TimelineRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockTimelineStore) GetRenderJobByRenderID(ctx context.Context, renderID string) (*models.RenderJob, error) {
	args := m.Called(ctx, renderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RenderJob), args.Error(1)
}

type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, timelineID string, timeline *models.Timeline, accountConcurrency, hardCap int) (*render.LaunchResult, error) {
	args := m.Called(ctx, timelineID, timeline, accountConcurrency, hardCap)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*render.LaunchResult), args.Error(1)
}

type MockPoller struct {
	mock.Mock
}

func (m *MockPoller) Poll(ctx context.Context, renderID, bucket string) (models.ProgressResult, error) {
	args := m.Called(ctx, renderID, bucket)
	return args.Get(0).(models.ProgressResult), args.Error(1)
}

type MockProxyManager struct {
	mock.Mock
}

func (m *MockProxyManager) Ensure(ctx context.Context, urls []string) ([]proxy.Outcome, error) {
	args := m.Called(ctx, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]proxy.Outcome), args.Error(1)
}

func (m *MockProxyManager) Status(ctx context.Context, urls []string) (map[string]*models.ProxyRecord, error) {
	args := m.Called(ctx, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.ProxyRecord), args.Error(1)
}

func (m *MockProxyManager) Cleanup(ctx context.Context, urls []string) (int, error) {
	args := m.Called(ctx, urls)
	return args.Int(0), args.Error(1)
}

func (m *MockProxyManager) PreviewProxies(ctx context.Context, urls []string) (map[string]string, error) {
	args := m.Called(ctx, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type MockPollScheduler struct {
	mock.Mock
}

func (m *MockPollScheduler) PublishPoll(ctx context.Context, msg *queue.RenderPollMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockPresigner struct {
	mock.Mock
}

func (m *MockPresigner) PresignedOutputURL(ctx context.Context, bucket, outputURL string) (string, error) {
	args := m.Called(ctx, bucket, outputURL)
	return args.String(0), args.Error(1)
}

// Helpers

func testTimelineRecord(id string) *models.TimelineRecord {
	return &models.TimelineRecord{
		ID: id,
		Timeline: models.Timeline{
			Width:            1920,
			Height:           1080,
			FPS:              30,
			DurationInFrames: 900,
			Tracks: []models.Track{
				{
					ID: "main",
					Clips: []models.Clip{
						{Type: models.ClipTypeVideo, Src: "https://media/a.mp4"},
						{Type: models.ClipTypeImage, Src: "https://media/b.png"},
						{Type: models.ClipTypeAudio, Src: "https://media/c.mp3"},
						{Type: models.ClipTypeVideo, Src: "https://media/d.mp4"},
					},
				},
			},
		},
	}
}

func newTestRouter(api *API) *gin.Engine {
	gin.SetMode(gin.TestMode)

	if api.logger == nil {
		api.logger = logging.Nop()
	}
	router := gin.New()
	registerRoutes(router, api, func(c *gin.Context) { c.Next() })
	router.GET("/health", api.healthCheck)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

// POST /render

func TestLaunchRender(t *testing.T) {
	store := new(MockTimelineStore)
	launcher := new(MockLauncher)
	polls := new(MockPollScheduler)

	record := testTimelineRecord("tl-1")
	store.On("GetTimeline", mock.Anything, "tl-1").Return(record, nil)
	launcher.On("Launch", mock.Anything, "tl-1", mock.AnythingOfType("*models.Timeline"), 10, 200).Return(&render.LaunchResult{
		Job: &models.RenderJob{
			RenderID:   "r-1",
			Bucket:     "renders-bucket",
			TimelineID: "tl-1",
			Status:     models.RenderStatusRendering,
		},
		FramesPerChunk: 20,
		ChunkCount:     45,
		WorkerCeiling:  8,
		Attempt:        2,
	}, nil)
	polls.On("PublishPoll", mock.Anything, mock.MatchedBy(func(msg *queue.RenderPollMessage) bool {
		return msg.RenderID == "r-1" && msg.Bucket == "renders-bucket" && msg.TimelineID == "tl-1"
	})).Return(nil)

	api := &API{timelines: store, launcher: launcher, polls: polls, accountConcurrency: 10, hardCap: 200}
	w, body := doJSON(t, newTestRouter(api), "POST", "/render", gin.H{"timelineId": "tl-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r-1", body["renderId"])
	assert.Equal(t, "renders-bucket", body["bucketName"])
	assert.Equal(t, float64(20), body["framesPerLambda"])
	assert.Equal(t, float64(45), body["estimatedChunks"])
	assert.Equal(t, float64(8), body["concurrencyLimit"])
	assert.Equal(t, float64(2), body["attempt"])

	store.AssertExpectations(t)
	launcher.AssertExpectations(t)
	polls.AssertExpectations(t)
}

func TestLaunchRenderPollPublishFailureStillSucceeds(t *testing.T) {
	store := new(MockTimelineStore)
	launcher := new(MockLauncher)
	polls := new(MockPollScheduler)

	store.On("GetTimeline", mock.Anything, "tl-1").Return(testTimelineRecord("tl-1"), nil)
	launcher.On("Launch", mock.Anything, "tl-1", mock.Anything, 0, 0).Return(&render.LaunchResult{
		Job:            &models.RenderJob{RenderID: "r-1", Bucket: "b"},
		FramesPerChunk: 900,
		ChunkCount:     1,
		WorkerCeiling:  1,
		Attempt:        1,
	}, nil)
	polls.On("PublishPoll", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	api := &API{timelines: store, launcher: launcher, polls: polls}
	w, _ := doJSON(t, newTestRouter(api), "POST", "/render", gin.H{"timelineId": "tl-1"})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLaunchRenderErrors(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		configured     bool
		timelineErr    error
		launchErr      error
		expectedStatus int
	}{
		{
			name:           "missing timeline id",
			body:           gin.H{},
			configured:     true,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "farm not configured",
			body:           gin.H{"timelineId": "tl-1"},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "timeline not found",
			body:           gin.H{"timelineId": "tl-1"},
			configured:     true,
			timelineErr:    fmt.Errorf("timeline tl-1: %w", models.ErrNotFound),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid timeline",
			body:           gin.H{"timelineId": "tl-1"},
			configured:     true,
			launchErr:      fmt.Errorf("%w: tracks missing", models.ErrInvalidTimeline),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "retries exhausted",
			body:           gin.H{"timelineId": "tl-1"},
			configured:     true,
			launchErr:      fmt.Errorf("%w after 3 attempts: %w", render.ErrRetriesExhausted, &render.FarmError{StatusCode: 429, Message: "Rate Exceeded"}),
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "fatal farm rejection",
			body:           gin.H{"timelineId": "tl-1"},
			configured:     true,
			launchErr:      &render.FarmError{StatusCode: 400, Message: "composition not found"},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockTimelineStore)
			if tt.timelineErr != nil {
				store.On("GetTimeline", mock.Anything, "tl-1").Return(nil, tt.timelineErr)
			} else {
				store.On("GetTimeline", mock.Anything, "tl-1").Return(testTimelineRecord("tl-1"), nil)
			}

			api := &API{timelines: store}
			if tt.configured {
				launcher := new(MockLauncher)
				launcher.On("Launch", mock.Anything, "tl-1", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.launchErr)
				api.launcher = launcher
			}

			w, body := doJSON(t, newTestRouter(api), "POST", "/render", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

// GET /render

func TestGetRenderProgress(t *testing.T) {
	tests := []struct {
		name     string
		result   models.ProgressResult
		expected map[string]interface{}
	}{
		{
			name:     "running",
			result:   models.Running(0.42),
			expected: map[string]interface{}{"done": false, "progress": 0.42},
		},
		{
			name:     "completed",
			result:   models.Completed("https://out/video.mp4", 2048),
			expected: map[string]interface{}{"done": true, "url": "https://out/video.mp4", "size": float64(2048)},
		},
		{
			name:     "failed",
			result:   models.FatallyFailed("chunk 3 crashed"),
			expected: map[string]interface{}{"done": false, "failed": true, "error": "chunk 3 crashed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poller := new(MockPoller)
			poller.On("Poll", mock.Anything, "r-1", "b").Return(tt.result, nil)

			api := &API{timelines: new(MockTimelineStore), tracker: poller}
			w, body := doJSON(t, newTestRouter(api), "GET", "/render?renderId=r-1&bucketName=b&timelineId=tl-1", nil)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expected, body)
		})
	}
}

func TestGetRenderProgressPresignsOutput(t *testing.T) {
	poller := new(MockPoller)
	poller.On("Poll", mock.Anything, "r-1", "b").Return(models.Completed("https://b.s3/out.mp4", 10), nil)
	presigner := new(MockPresigner)
	presigner.On("PresignedOutputURL", mock.Anything, "b", "https://b.s3/out.mp4").Return("https://b.s3/out.mp4?X-Amz-Signature=abc", nil)

	api := &API{timelines: new(MockTimelineStore), tracker: poller, outputs: presigner}
	w, body := doJSON(t, newTestRouter(api), "GET", "/render?renderId=r-1&bucketName=b", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://b.s3/out.mp4?X-Amz-Signature=abc", body["url"])
}

func TestGetRenderProgressResolvesBucket(t *testing.T) {
	store := new(MockTimelineStore)
	store.On("GetRenderJobByRenderID", mock.Anything, "r-1").Return(&models.RenderJob{RenderID: "r-1", Bucket: "stored"}, nil)
	poller := new(MockPoller)
	poller.On("Poll", mock.Anything, "r-1", "stored").Return(models.Running(0.1), nil)

	api := &API{timelines: store, tracker: poller}
	w, _ := doJSON(t, newTestRouter(api), "GET", "/render?renderId=r-1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	poller.AssertExpectations(t)
}

func TestGetRenderProgressErrors(t *testing.T) {
	router := newTestRouter(&API{timelines: new(MockTimelineStore)})
	w, _ := doJSON(t, router, "GET", "/render?renderId=r-1&bucketName=b", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	poller := new(MockPoller)
	poller.On("Poll", mock.Anything, "r-1", "b").Return(models.ProgressResult{}, errors.New("farm unreachable"))
	router = newTestRouter(&API{timelines: new(MockTimelineStore), tracker: poller})

	w, _ = doJSON(t, router, "GET", "/render?bucketName=b", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, "GET", "/render?renderId=r-1&bucketName=b", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

// Proxy endpoints

func TestEnsureProxiesForTimeline(t *testing.T) {
	store := new(MockTimelineStore)
	store.On("GetTimeline", mock.Anything, "tl-1").Return(testTimelineRecord("tl-1"), nil)

	proxies := new(MockProxyManager)
	proxies.On("Ensure", mock.Anything, []string{"https://media/a.mp4", "https://media/d.mp4"}).Return([]proxy.Outcome{
		{URL: "https://media/a.mp4", Record: &models.ProxyRecord{Status: models.ProxyStatusReady, ProxyURL: "https://proxy/a.mp4"}},
		{URL: "https://media/d.mp4", Record: &models.ProxyRecord{Status: models.ProxyStatusUploading, StreamID: "s-d"}},
	}, nil)

	api := &API{timelines: store, proxies: proxies}
	w, body := doJSON(t, newTestRouter(api), "POST", "/proxy", gin.H{"timelineId": "tl-1"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(1), body["ready"])
	assert.Equal(t, float64(1), body["processing"])
	assert.Equal(t, float64(0), body["errors"])

	views := body["proxies"].([]interface{})
	require.Len(t, views, 2)
	first := views[0].(map[string]interface{})
	assert.Equal(t, "https://media/a.mp4", first["url"])
	assert.Equal(t, "https://proxy/a.mp4", first["proxyUrl"])
}

func TestEnsureProxiesForURLsWithStoreError(t *testing.T) {
	proxies := new(MockProxyManager)
	proxies.On("Ensure", mock.Anything, []string{"https://media/x.mp4"}).Return([]proxy.Outcome{
		{URL: "https://media/x.mp4", Err: errors.New("db down")},
	}, nil)

	api := &API{timelines: new(MockTimelineStore), proxies: proxies}
	w, body := doJSON(t, newTestRouter(api), "POST", "/proxy", gin.H{"urls": []string{"https://media/x.mp4", " "}})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["errors"])
	view := body["proxies"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, models.ProxyStatusError, view["status"])
	assert.Equal(t, "db down", view["error"])
}

func TestEnsureProxiesErrors(t *testing.T) {
	router := newTestRouter(&API{timelines: new(MockTimelineStore)})
	w, body := doJSON(t, router, "POST", "/proxy", gin.H{"urls": []string{"https://media/x.mp4"}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["error"], "not configured")

	router = newTestRouter(&API{timelines: new(MockTimelineStore), proxies: new(MockProxyManager)})
	w, _ = doJSON(t, router, "POST", "/proxy", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProxyStatus(t *testing.T) {
	proxies := new(MockProxyManager)
	proxies.On("Status", mock.Anything, []string{"https://media/a.mp4", "https://media/b.mp4", "https://media/c.mp4"}).Return(map[string]*models.ProxyRecord{
		"https://media/a.mp4": {Status: models.ProxyStatusReady, ProxyURL: "https://proxy/a.mp4"},
		"https://media/b.mp4": {Status: models.ProxyStatusProcessing, StreamID: "s-b"},
	}, nil)

	api := &API{timelines: new(MockTimelineStore), proxies: proxies}
	w, body := doJSON(t, newTestRouter(api), "GET", "/proxy?urls=https://media/a.mp4,https://media/b.mp4&urls=https://media/c.mp4", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(1), body["ready"])
	assert.Equal(t, false, body["allReady"])

	views := body["proxies"].(map[string]interface{})
	assert.Len(t, views, 2)
	assert.Contains(t, views, "https://media/a.mp4")
	assert.NotContains(t, views, "https://media/c.mp4")
}

func TestGetProxyStatusCountsDistinctURLs(t *testing.T) {
	proxies := new(MockProxyManager)
	proxies.On("Status", mock.Anything, mock.Anything).Return(map[string]*models.ProxyRecord{
		"https://media/a.mp4": {Status: models.ProxyStatusReady},
		"https://media/b.mp4": {Status: models.ProxyStatusReady},
	}, nil)

	api := &API{timelines: new(MockTimelineStore), proxies: proxies}
	w, body := doJSON(t, newTestRouter(api), "GET", "/proxy?urls=https://media/a.mp4,https://media/b.mp4,https://media/a.mp4", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, true, body["allReady"])
}

func TestGetProxyStatusAllReady(t *testing.T) {
	store := new(MockTimelineStore)
	store.On("GetTimeline", mock.Anything, "tl-1").Return(testTimelineRecord("tl-1"), nil)
	proxies := new(MockProxyManager)
	proxies.On("Status", mock.Anything, []string{"https://media/a.mp4", "https://media/d.mp4"}).Return(map[string]*models.ProxyRecord{
		"https://media/a.mp4": {Status: models.ProxyStatusReady},
		"https://media/d.mp4": {Status: models.ProxyStatusReady},
	}, nil)

	api := &API{timelines: store, proxies: proxies}
	w, body := doJSON(t, newTestRouter(api), "GET", "/proxy?timelineId=tl-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["allReady"])
}

func TestDeleteProxies(t *testing.T) {
	store := new(MockTimelineStore)
	store.On("GetTimeline", mock.Anything, "tl-1").Return(testTimelineRecord("tl-1"), nil)
	proxies := new(MockProxyManager)
	proxies.On("Cleanup", mock.Anything, []string{"https://media/a.mp4", "https://media/d.mp4"}).Return(1, errors.New("partial failure"))

	api := &API{timelines: store, proxies: proxies}
	w, body := doJSON(t, newTestRouter(api), "DELETE", "/proxy?timelineId=tl-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["deleted"])
}

func TestDeleteProxiesUnknownTimeline(t *testing.T) {
	store := new(MockTimelineStore)
	store.On("GetTimeline", mock.Anything, "missing").Return(nil, models.ErrNotFound)

	api := &API{timelines: store, proxies: new(MockProxyManager)}
	w, _ := doJSON(t, newTestRouter(api), "DELETE", "/proxy?timelineId=missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Timelines

func TestPreviewTimeline(t *testing.T) {
	store := new(MockTimelineStore)
	store.On("GetTimeline", mock.Anything, "tl-1").Return(testTimelineRecord("tl-1"), nil)
	proxies := new(MockProxyManager)
	proxies.On("PreviewProxies", mock.Anything, mock.Anything).Return(map[string]string{
		"https://media/a.mp4": "https://proxy/a.mp4",
		"https://media/b.png": "https://proxy/b.png",
	}, nil)

	api := &API{timelines: store, proxies: proxies}
	router := newTestRouter(api)

	req := httptest.NewRequest("GET", "/timelines/tl-1/preview", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Decode loosely: clips drop proxySrc when unmarshalled into models.Clip
	var timeline struct {
		Tracks []struct {
			Clips []map[string]interface{} `json:"clips"`
		} `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &timeline))
	clips := timeline.Tracks[0].Clips
	assert.Equal(t, "https://proxy/a.mp4", clips[0]["proxySrc"])
	assert.Equal(t, "https://proxy/b.png?quality=70&width=640", clips[1]["proxySrc"])
	assert.NotContains(t, clips[2], "proxySrc")
	assert.Equal(t, "https://media/a.mp4", clips[0]["src"])
}

func TestSaveTimeline(t *testing.T) {
	store := new(MockTimelineStore)
	store.On("SaveTimeline", mock.Anything, mock.MatchedBy(func(r *models.TimelineRecord) bool {
		return r.ID == "tl-9" && r.Timeline.DurationInFrames == 900
	})).Return(nil)

	api := &API{timelines: store}
	w, body := doJSON(t, newTestRouter(api), "PUT", "/timelines/tl-9", testTimelineRecord("tl-9").Timeline)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tl-9", body["id"])
	store.AssertExpectations(t)

	w, _ = doJSON(t, newTestRouter(api), "PUT", "/timelines/tl-9", gin.H{"durationInFrames": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// Router

func TestRouterRequiresAuth(t *testing.T) {
	cfg := &config.Config{
		Auth:      config.AuthConfig{JWTSecret: "secret", SharedSecret: "shared"},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	api := &API{timelines: new(MockTimelineStore), logger: logging.Nop()}
	router := setupRouter(api, cfg, nil)

	w, _ := doJSON(t, router, "POST", "/render", gin.H{"timelineId": "tl-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.GenerateToken("secret", "editor-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/render", bytes.NewBufferString(`{"timelineId":"tl-1"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = doJSON(t, router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterRefusesRendersWithoutAuthConfig(t *testing.T) {
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	launcher := new(MockLauncher)
	api := &API{timelines: new(MockTimelineStore), launcher: launcher, logger: logging.Nop()}
	router := setupRouter(api, cfg, nil)

	w, body := doJSON(t, router, "POST", "/render", gin.H{"timelineId": "tl-1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "auth is not configured", body["error"])
	launcher.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
