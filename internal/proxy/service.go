package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/metrics"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
	"golang.org/x/sync/errgroup"
)

// maxParallel bounds concurrent transcode calls within one bulk operation
const maxParallel = 4

// Store persists proxy records keyed by source URL
type Store interface {
	GetProxiesByURLs(ctx context.Context, urls []string) (map[string]*models.ProxyRecord, error)
	CreateProxy(ctx context.Context, record *models.ProxyRecord) error
	UpdateProxy(ctx context.Context, record *models.ProxyRecord) error
	DeleteProxy(ctx context.Context, id string) error
	ListPendingProxies(ctx context.Context, limit int) ([]*models.ProxyRecord, error)
}

// Cache holds accelerated URLs of ready proxies
type Cache interface {
	GetReadyProxyURLs(ctx context.Context, urls []string) (map[string]string, error)
	SetReadyProxyURL(ctx context.Context, originalURL, proxyURL string) error
	DeleteProxyURLs(ctx context.Context, urls ...string) error
}

// Outcome is the result of ensuring one URL. Err is set only when the
// record store failed; transcode failures are reflected in Record.Status.
type Outcome struct {
	URL    string
	Record *models.ProxyRecord
	Err    error
}

// Service drives the per-URL proxy state machine
type Service struct {
	transcoder Transcoder
	store      Store
	cache      Cache
	logger     *logging.Logger
}

// NewService creates a proxy service. cache may be nil.
func NewService(transcoder Transcoder, store Store, cache Cache, logger *logging.Logger) *Service {
	return &Service{
		transcoder: transcoder,
		store:      store,
		cache:      cache,
		logger:     logger,
	}
}

// Ensure moves every URL one step towards a ready proxy. Outcomes are
// returned in the order of the distinct input URLs.
func (s *Service) Ensure(ctx context.Context, urls []string) ([]Outcome, error) {
	urls = Distinct(urls)
	if len(urls) == 0 {
		return []Outcome{}, nil
	}

	existing, err := s.store.GetProxiesByURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxy records: %w", err)
	}

	outcomes := make([]Outcome, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			record, err := s.ensureOne(gctx, u, existing[u])
			outcomes[i] = Outcome{URL: u, Record: record, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, nil
}

func (s *Service) ensureOne(ctx context.Context, sourceURL string, record *models.ProxyRecord) (*models.ProxyRecord, error) {
	logger := s.logger.WithURL(sourceURL)

	if record != nil {
		switch record.Status {
		case models.ProxyStatusReady:
			metrics.RecordCacheAccess("proxy", true)
			return record, nil

		case models.ProxyStatusError:
			// Replace rather than update so stale handles never come back.
			if err := s.store.DeleteProxy(ctx, record.ID); err != nil {
				logger.ErrorWithErr("failed to delete errored proxy record", err)
				return record, err
			}
			logger.LogProxyTransition(sourceURL, models.ProxyStatusError, "deleted")
			record = nil

		default:
			if record.StreamID != "" {
				return s.refresh(ctx, record)
			}
			return record, nil
		}
	}

	metrics.RecordCacheAccess("proxy", false)
	return s.create(ctx, sourceURL)
}

// create uploads a new source and records the attempt either way
func (s *Service) create(ctx context.Context, sourceURL string) (*models.ProxyRecord, error) {
	logger := s.logger.WithURL(sourceURL)

	record := &models.ProxyRecord{
		ID:          uuid.New().String(),
		OriginalURL: sourceURL,
	}

	streamID, err := s.transcoder.CopyFromURL(ctx, sourceURL)
	if err != nil {
		logger.WithError(err).Warn("transcode upload failed")
		record.Status = models.ProxyStatusError
		record.ErrorMessage = models.TruncateMessage(err.Error())
	} else {
		record.Status = models.ProxyStatusUploading
		record.StreamID = streamID
		// The URL is recorded once the stream is ready.
		if _, _, err := s.transcoder.EnableDownload(ctx, streamID); err != nil {
			logger.WithError(err).Debug("download rendition not available yet")
		}
	}

	if err := s.store.CreateProxy(ctx, record); err != nil {
		logger.ErrorWithErr("failed to create proxy record", err)
		return record, err
	}

	logger.LogProxyTransition(sourceURL, "", record.Status)
	metrics.RecordProxyTransition("", record.Status)
	return record, nil
}

// refresh polls the transcode service once and applies the transition table.
// Poll failures leave the record as processing without persisting anything.
func (s *Service) refresh(ctx context.Context, record *models.ProxyRecord) (*models.ProxyRecord, error) {
	logger := s.logger.WithURL(record.OriginalURL)

	info, err := s.transcoder.Get(ctx, record.StreamID)
	if err != nil {
		logger.WithError(err).Warn("transcode status poll failed, assuming still processing")
		optimistic := *record
		optimistic.Status = models.ProxyStatusProcessing
		return &optimistic, nil
	}

	updated := *record
	updated.Status = localStatus(info.State)
	switch updated.Status {
	case models.ProxyStatusReady:
		if downloadURL, _, err := s.transcoder.EnableDownload(ctx, record.StreamID); err == nil && downloadURL != "" {
			updated.ProxyURL = downloadURL
		} else if err != nil {
			logger.WithError(err).Warn("failed to request download rendition")
		}
		updated.PlaybackURL = info.PlaybackURL
		updated.ThumbnailURL = info.ThumbnailURL
		updated.DurationSeconds = info.DurationSeconds
		updated.ErrorMessage = ""
	case models.ProxyStatusError:
		msg := info.ErrorText
		if msg == "" {
			msg = "transcode failed"
		}
		updated.ErrorMessage = models.TruncateMessage(msg)
	}

	if updated.Status == record.Status && updated.ProxyURL == record.ProxyURL {
		return &updated, nil
	}

	if err := s.store.UpdateProxy(ctx, &updated); err != nil {
		logger.ErrorWithErr("failed to update proxy record", err)
		return record, err
	}

	if updated.Status != record.Status {
		logger.LogProxyTransition(record.OriginalURL, record.Status, updated.Status)
		metrics.RecordProxyTransition(record.Status, updated.Status)
	}
	if updated.Status == models.ProxyStatusReady {
		s.cacheReady(ctx, &updated)
	}

	return &updated, nil
}

// Status returns the records of known URLs, refreshing unsettled ones once.
// URLs without a record are absent from the result.
func (s *Service) Status(ctx context.Context, urls []string) (map[string]*models.ProxyRecord, error) {
	urls = Distinct(urls)
	result := make(map[string]*models.ProxyRecord, len(urls))
	if len(urls) == 0 {
		return result, nil
	}

	existing, err := s.store.GetProxiesByURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxy records: %w", err)
	}

	refreshed := make([]*models.ProxyRecord, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, u := range urls {
		record, ok := existing[u]
		if !ok {
			continue
		}
		if record.IsSettled() || record.StreamID == "" {
			refreshed[i] = record
			continue
		}
		i, record := i, record
		g.Go(func() error {
			r, err := s.refresh(gctx, record)
			if err != nil {
				r = record
			}
			refreshed[i] = r
			return nil
		})
	}
	_ = g.Wait()

	for i, u := range urls {
		if refreshed[i] != nil {
			result[u] = refreshed[i]
		}
	}
	return result, nil
}

// Cleanup removes the records of the given URLs, asking the transcode
// service to delete their streams on a best-effort basis.
func (s *Service) Cleanup(ctx context.Context, urls []string) (int, error) {
	urls = Distinct(urls)
	if len(urls) == 0 {
		return 0, nil
	}

	existing, err := s.store.GetProxiesByURLs(ctx, urls)
	if err != nil {
		return 0, fmt.Errorf("failed to load proxy records: %w", err)
	}

	deleted := 0
	var errs []error
	for _, u := range urls {
		record, ok := existing[u]
		if !ok {
			continue
		}
		if record.StreamID != "" {
			if err := s.transcoder.Delete(ctx, record.StreamID); err != nil {
				s.logger.WithURL(u).WithError(err).Warn("failed to delete transcoded stream")
			}
		}
		if err := s.store.DeleteProxy(ctx, record.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete proxy for %s: %w", u, err))
			continue
		}
		deleted++
	}

	if s.cache != nil {
		if err := s.cache.DeleteProxyURLs(ctx, urls...); err != nil {
			s.logger.WithError(err).Warn("failed to evict proxy cache")
		}
	}

	metrics.RecordProxyCleanup(deleted)
	return deleted, errors.Join(errs...)
}

// ReadyProxies returns the downloadable proxy URLs of ready sources, without
// contacting the transcode service. Sources whose download rendition is
// missing are left out, since render workers cannot fetch a stream manifest.
func (s *Service) ReadyProxies(ctx context.Context, urls []string) (map[string]string, error) {
	return s.readyURLs(ctx, urls, (*models.ProxyRecord).AcceleratedURL)
}

// PreviewProxies is like ReadyProxies but falls back to the streaming URL of
// ready sources that have no download rendition.
func (s *Service) PreviewProxies(ctx context.Context, urls []string) (map[string]string, error) {
	return s.readyURLs(ctx, urls, previewURL)
}

func (s *Service) readyURLs(ctx context.Context, urls []string, pick func(*models.ProxyRecord) string) (map[string]string, error) {
	urls = Distinct(urls)
	ready := make(map[string]string, len(urls))
	if len(urls) == 0 {
		return ready, nil
	}

	missing := urls
	if s.cache != nil {
		cached, err := s.cache.GetReadyProxyURLs(ctx, urls)
		if err != nil {
			s.logger.WithError(err).Warn("proxy cache lookup failed")
		} else {
			missing = missing[:0:0]
			for _, u := range urls {
				if p, ok := cached[u]; ok && p != "" {
					ready[u] = p
					metrics.RecordCacheAccess("proxy_url", true)
					continue
				}
				metrics.RecordCacheAccess("proxy_url", false)
				missing = append(missing, u)
			}
		}
	}
	if len(missing) == 0 {
		return ready, nil
	}

	records, err := s.store.GetProxiesByURLs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxy records: %w", err)
	}
	for u, record := range records {
		if p := pick(record); p != "" {
			ready[u] = p
			s.cacheReady(ctx, record)
		}
	}
	return ready, nil
}

// RefreshPending polls up to limit unsettled records. It returns how many
// were checked.
func (s *Service) RefreshPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.store.ListPendingProxies(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending proxies: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, record := range pending {
		if record.StreamID == "" {
			continue
		}
		record := record
		g.Go(func() error {
			_, _ = s.refresh(gctx, record)
			return nil
		})
	}
	_ = g.Wait()

	return len(pending), nil
}

func (s *Service) cacheReady(ctx context.Context, record *models.ProxyRecord) {
	if s.cache == nil {
		return
	}
	p := record.AcceleratedURL()
	if p == "" {
		return
	}
	if err := s.cache.SetReadyProxyURL(ctx, record.OriginalURL, p); err != nil {
		s.logger.WithURL(record.OriginalURL).WithError(err).Warn("failed to cache proxy url")
	}
}

// previewURL prefers the downloadable rendition and falls back to streaming
func previewURL(record *models.ProxyRecord) string {
	if p := record.AcceleratedURL(); p != "" {
		return p
	}
	if record.Status != models.ProxyStatusReady {
		return ""
	}
	return record.PlaybackURL
}

// Distinct drops empty and repeated URLs, keeping first-seen order
func Distinct(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// Summary counts outcomes by status
type Summary struct {
	Total      int
	Ready      int
	Processing int
	Errors     int
}

// Summarize counts ensure outcomes
func Summarize(outcomes []Outcome) Summary {
	sum := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Record == nil {
			sum.Errors++
			continue
		}
		switch o.Record.Status {
		case models.ProxyStatusReady:
			sum.Ready++
		case models.ProxyStatusError:
			sum.Errors++
		default:
			sum.Processing++
		}
	}
	return sum
}

