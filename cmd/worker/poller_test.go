package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/queue"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) Poll(ctx context.Context, renderID, bucket string) (models.ProgressResult, error) {
	args := m.Called(ctx, renderID, bucket)
	return args.Get(0).(models.ProgressResult), args.Error(1)
}

func (m *MockTracker) Abandon(ctx context.Context, renderID, reason string) (models.ProgressResult, error) {
	args := m.Called(ctx, renderID, reason)
	return args.Get(0).(models.ProgressResult), args.Error(1)
}

type published struct {
	msg   queue.RenderPollMessage
	delay time.Duration
}

type fakePollQueue struct {
	delayed []published
	parked  []queue.RenderPollMessage
	reasons []string
	err     error
}

func (q *fakePollQueue) PublishPollDelayed(_ context.Context, msg *queue.RenderPollMessage, delay time.Duration) error {
	if q.err != nil {
		return q.err
	}
	q.delayed = append(q.delayed, published{msg: *msg, delay: delay})
	return nil
}

func (q *fakePollQueue) PublishToDeadLetterQueue(_ context.Context, msg *queue.RenderPollMessage, reason string) error {
	q.parked = append(q.parked, *msg)
	q.reasons = append(q.reasons, reason)
	return nil
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(tracker ProgressTracker, q PollQueue) *pollHandler {
	h := newPollHandler(tracker, q, 5*time.Second, 30*time.Minute, logging.Nop())
	h.now = func() time.Time { return testNow }
	return h
}

func testMessage() *queue.RenderPollMessage {
	return &queue.RenderPollMessage{
		RenderID:   "r-1",
		Bucket:     "b",
		TimelineID: "tl-1",
		LaunchedAt: testNow.Add(-time.Minute),
	}
}

func TestHandleRunningReschedules(t *testing.T) {
	tracker := new(MockTracker)
	tracker.On("Poll", mock.Anything, "r-1", "b").Return(models.Running(0.5), nil)
	q := &fakePollQueue{}

	msg := testMessage()
	msg.Failures = 3
	err := newTestHandler(tracker, q).Handle(context.Background(), msg)

	require.NoError(t, err)
	require.Len(t, q.delayed, 1)
	assert.Equal(t, 5*time.Second, q.delayed[0].delay)
	assert.Equal(t, 0, q.delayed[0].msg.Failures)
	assert.Equal(t, "tl-1", q.delayed[0].msg.TimelineID)
}

func TestHandleTerminalStopsPolling(t *testing.T) {
	for _, result := range []models.ProgressResult{
		models.Completed("https://out.mp4", 10),
		models.FatallyFailed("boom"),
	} {
		tracker := new(MockTracker)
		tracker.On("Poll", mock.Anything, "r-1", "b").Return(result, nil)
		q := &fakePollQueue{}

		err := newTestHandler(tracker, q).Handle(context.Background(), testMessage())

		require.NoError(t, err)
		assert.Empty(t, q.delayed, result.State.String())
		assert.Empty(t, q.parked)
	}
}

func TestHandlePollErrorBacksOff(t *testing.T) {
	tracker := new(MockTracker)
	tracker.On("Poll", mock.Anything, "r-1", "b").Return(models.ProgressResult{}, errors.New("farm unreachable"))
	q := &fakePollQueue{}

	msg := testMessage()
	msg.Failures = 1
	err := newTestHandler(tracker, q).Handle(context.Background(), msg)

	require.NoError(t, err)
	require.Len(t, q.delayed, 1)
	assert.Equal(t, 2, q.delayed[0].msg.Failures)
	assert.Equal(t, 20*time.Second, q.delayed[0].delay)
}

func TestHandlePollErrorParksAfterMaxFailures(t *testing.T) {
	tracker := new(MockTracker)
	tracker.On("Poll", mock.Anything, "r-1", "b").Return(models.ProgressResult{}, errors.New("farm unreachable"))
	q := &fakePollQueue{}

	msg := testMessage()
	msg.Failures = queue.MaxPollFailures
	err := newTestHandler(tracker, q).Handle(context.Background(), msg)

	require.NoError(t, err)
	assert.Empty(t, q.delayed)
	require.Len(t, q.parked, 1)
	assert.Equal(t, "farm unreachable", q.reasons[0])
}

func TestHandleRescheduleFailureRequeues(t *testing.T) {
	tracker := new(MockTracker)
	tracker.On("Poll", mock.Anything, "r-1", "b").Return(models.Running(0.1), nil)
	q := &fakePollQueue{err: errors.New("channel closed")}

	err := newTestHandler(tracker, q).Handle(context.Background(), testMessage())

	assert.Error(t, err)
}

func expiredMessage() *queue.RenderPollMessage {
	msg := testMessage()
	msg.LaunchedAt = testNow.Add(-31 * time.Minute)
	return msg
}

func TestHandleAbandonsExpiredRender(t *testing.T) {
	tracker := new(MockTracker)
	tracker.On("Poll", mock.Anything, "r-1", "b").Return(models.Running(0.8), nil)
	tracker.On("Abandon", mock.Anything, "r-1", renderTimedOut).Return(models.FatallyFailed(renderTimedOut), nil)
	q := &fakePollQueue{}

	err := newTestHandler(tracker, q).Handle(context.Background(), expiredMessage())

	require.NoError(t, err)
	assert.Empty(t, q.delayed)
	tracker.AssertExpectations(t)
}

func TestHandleExpiredRenderThatFinishedIsNotAbandoned(t *testing.T) {
	for _, result := range []models.ProgressResult{
		models.Completed("https://out.mp4", 10),
		models.FatallyFailed("boom"),
	} {
		tracker := new(MockTracker)
		tracker.On("Poll", mock.Anything, "r-1", "b").Return(result, nil)
		q := &fakePollQueue{}

		err := newTestHandler(tracker, q).Handle(context.Background(), expiredMessage())

		require.NoError(t, err)
		assert.Empty(t, q.delayed)
		tracker.AssertNotCalled(t, "Abandon", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestHandleExpiredRenderUnreachableIsAbandoned(t *testing.T) {
	tracker := new(MockTracker)
	tracker.On("Poll", mock.Anything, "r-1", "b").Return(models.ProgressResult{}, errors.New("farm unreachable"))
	tracker.On("Abandon", mock.Anything, "r-1", renderTimedOut).Return(models.FatallyFailed(renderTimedOut), nil)
	q := &fakePollQueue{}

	err := newTestHandler(tracker, q).Handle(context.Background(), expiredMessage())

	require.NoError(t, err)
	assert.Empty(t, q.delayed)
	assert.Empty(t, q.parked)
	tracker.AssertExpectations(t)
}

func TestHandleAbandonFailureRequeues(t *testing.T) {
	tracker := new(MockTracker)
	tracker.On("Poll", mock.Anything, "r-1", "b").Return(models.Running(0.8), nil)
	tracker.On("Abandon", mock.Anything, "r-1", renderTimedOut).Return(models.ProgressResult{}, errors.New("db down"))

	err := newTestHandler(tracker, &fakePollQueue{}).Handle(context.Background(), expiredMessage())

	assert.Error(t, err)
}

func TestHandleWithoutLaunchTimeNeverExpires(t *testing.T) {
	tracker := new(MockTracker)
	tracker.On("Poll", mock.Anything, "r-1", "b").Return(models.Running(0.9), nil)
	q := &fakePollQueue{}

	msg := testMessage()
	msg.LaunchedAt = time.Time{}
	err := newTestHandler(tracker, q).Handle(context.Background(), msg)

	require.NoError(t, err)
	assert.Len(t, q.delayed, 1)
}
