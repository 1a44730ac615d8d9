package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// scriptedFarm answers launches from a fixed list of errors, then succeeds
type scriptedFarm struct {
	mu sync.Mutex

	launchErrs []error
	requests   []LaunchRequest

	progress    *ProgressResponse
	progressErr error
	polls       int
}

func (f *scriptedFarm) Launch(ctx context.Context, req LaunchRequest) (*LaunchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if i := len(f.requests) - 1; i < len(f.launchErrs) && f.launchErrs[i] != nil {
		return nil, f.launchErrs[i]
	}
	return &LaunchResponse{RenderID: "r-123", BucketName: "renders-bucket"}, nil
}

func (f *scriptedFarm) Progress(ctx context.Context, renderID, bucket string) (*ProgressResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if f.progressErr != nil {
		return nil, f.progressErr
	}
	cp := *f.progress
	return &cp, nil
}

func (f *scriptedFarm) framesPerChunk() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.FramesPerChunk
	}
	return out
}

// memStore is an in-memory JobStore with the same conditional terminal
// writes as the database repository.
type memStore struct {
	mu        sync.Mutex
	jobs      map[string]*models.RenderJob
	createErr error
	writes    int
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*models.RenderJob)}
}

func (s *memStore) CreateRenderJob(ctx context.Context, job *models.RenderJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *job
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.jobs[job.RenderID] = &cp
	return nil
}

func (s *memStore) GetRenderJobByRenderID(ctx context.Context, renderID string) (*models.RenderJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[renderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) MarkRenderCompleted(ctx context.Context, renderID, outputURL string, sizeBytes int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[renderID]
	if !ok || job.Status != models.RenderStatusRendering {
		return false, nil
	}
	now := time.Now()
	job.Status = models.RenderStatusRendered
	job.OutputURL = outputURL
	job.OutputSize = sizeBytes
	job.CompletedAt = &now
	s.writes++
	return true, nil
}

func (s *memStore) MarkRenderFailed(ctx context.Context, renderID, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[renderID]
	if !ok || job.Status != models.RenderStatusRendering {
		return false, nil
	}
	now := time.Now()
	job.Status = models.RenderStatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	s.writes++
	return true, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *memStore) put(job *models.RenderJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.RenderID] = &cp
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) RenderFinished(ctx context.Context, job *models.RenderJob) {
	m.Called(ctx, job)
}

// MockProxyLookup is a mock implementation of ProxyLookup
type MockProxyLookup struct {
	mock.Mock
}

func (m *MockProxyLookup) ReadyProxies(ctx context.Context, urls []string) (map[string]string, error) {
	args := m.Called(ctx, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type staticLocator struct {
	size int64
	err  error
}

func (l staticLocator) ObjectSize(ctx context.Context, bucket, key string) (int64, error) {
	return l.size, l.err
}

var errBoom = errors.New("boom")
