package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/queue"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

const (
	recoverLock = "sweeper:recover"
	refreshLock = "sweeper:proxies"

	recoverBatch = 1000
	refreshBatch = 100
)

// Repository lists renders that have not reached a terminal state
type Repository interface {
	ListRenderingJobs(ctx context.Context, limit int) ([]*models.RenderJob, error)
}

// PollPublisher schedules render polls
type PollPublisher interface {
	PublishPoll(ctx context.Context, msg *queue.RenderPollMessage) error
}

// ProxyRefresher advances proxies still being transcoded
type ProxyRefresher interface {
	RefreshPending(ctx context.Context, limit int) (int, error)
}

// Locker coordinates sweeps across worker replicas
type Locker interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
}

// Sweeper recovers renders orphaned by a restart and keeps pending proxies
// moving when nobody is asking about them
type Sweeper struct {
	repo      Repository
	publisher PollPublisher
	proxies   ProxyRefresher
	locker    Locker
	interval  time.Duration
	logger    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a new sweeper. proxies and locker may be nil.
func NewSweeper(repo Repository, publisher PollPublisher, proxies ProxyRefresher, locker Locker, interval time.Duration, logger *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Sweeper{
		repo:      repo,
		publisher: publisher,
		proxies:   proxies,
		locker:    locker,
		interval:  interval,
		logger:    logger.WithField("component", "sweeper"),
	}
}

// Start republishes polls for in-flight renders, then refreshes pending
// proxies every interval until Stop is called
func (s *Sweeper) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	n, err := s.RecoverRenders(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to recover renders: %w", err)
	}
	s.logger.Infof("Republished polls for %d in-flight renders", n)

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("Sweeper started")
	return nil
}

// Stop stops the sweeper and waits for the current sweep to finish
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Sweeper stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RefreshProxies(s.ctx); err != nil {
				s.logger.WithError(err).Warn("proxy sweep failed")
			}
		}
	}
}

// RecoverRenders publishes a poll for every render still marked rendering.
// Returns zero without error when another replica holds the lock.
func (s *Sweeper) RecoverRenders(ctx context.Context) (int, error) {
	release, ok, err := s.lock(ctx, recoverLock, 5*time.Minute)
	if err != nil || !ok {
		return 0, err
	}
	defer release()

	jobs, err := s.repo.ListRenderingJobs(ctx, recoverBatch)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, job := range jobs {
		msg := &queue.RenderPollMessage{
			RenderID:   job.RenderID,
			Bucket:     job.Bucket,
			TimelineID: job.TimelineID,
			LaunchedAt: job.CreatedAt,
		}
		if err := s.publisher.PublishPoll(ctx, msg); err != nil {
			s.logger.WithRenderID(job.RenderID).WithError(err).Error("Failed to republish poll")
			continue
		}
		published++
	}

	return published, nil
}

// RefreshProxies polls the transcode service for pending proxies
func (s *Sweeper) RefreshProxies(ctx context.Context) (int, error) {
	if s.proxies == nil {
		return 0, nil
	}

	release, ok, err := s.lock(ctx, refreshLock, s.interval)
	if err != nil || !ok {
		return 0, err
	}
	defer release()

	n, err := s.proxies.RefreshPending(ctx, refreshBatch)
	if n > 0 {
		s.logger.Debugf("Refreshed %d pending proxies", n)
	}
	return n, err
}

func (s *Sweeper) lock(ctx context.Context, resource string, ttl time.Duration) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}

	ok, err := s.locker.AcquireLock(ctx, resource, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire %s lock: %w", resource, err)
	}
	if !ok {
		s.logger.Debugf("%s held by another worker, skipping", resource)
		return nil, false, nil
	}

	return func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), resource); err != nil {
			s.logger.WithError(err).Warnf("failed to release %s lock", resource)
		}
	}, true, nil
}
