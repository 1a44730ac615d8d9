package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/render/internal/proxy"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

const transcodeNotConfigured = "Transcode service is not configured: set transcode.accountID and transcode.apiToken"

var errNoURLs = errors.New("timelineId or urls is required")

type proxyRequest struct {
	TimelineID string   `json:"timelineId"`
	URLs       []string `json:"urls"`
}

type proxyView struct {
	URL          string `json:"url"`
	Status       string `json:"status"`
	StreamID     string `json:"streamId,omitempty"`
	ProxyURL     string `json:"proxyUrl,omitempty"`
	PlaybackURL  string `json:"playbackUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Error        string `json:"error,omitempty"`
}

func newProxyView(url string, record *models.ProxyRecord) proxyView {
	return proxyView{
		URL:          url,
		Status:       record.Status,
		StreamID:     record.StreamID,
		ProxyURL:     record.ProxyURL,
		PlaybackURL:  record.PlaybackURL,
		ThumbnailURL: record.ThumbnailURL,
		Error:        record.ErrorMessage,
	}
}

// resolveURLs returns the video URLs of a stored timeline, or urls as given
func (api *API) resolveURLs(ctx context.Context, timelineID string, urls []string) ([]string, error) {
	if timelineID != "" {
		record, err := api.timelines.GetTimeline(ctx, timelineID)
		if err != nil {
			return nil, err
		}
		return record.Timeline.MediaURLs(models.ClipTypeVideo), nil
	}

	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil, errNoURLs
	}
	return out, nil
}

// queryURLs accepts both repeated and comma-separated urls parameters
func queryURLs(c *gin.Context) []string {
	var urls []string
	for _, v := range c.QueryArray("urls") {
		urls = append(urls, strings.Split(v, ",")...)
	}
	return urls
}

func (api *API) respondResolveError(c *gin.Context, err error) {
	if errors.Is(err, errNoURLs) {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	api.respondStoreError(c, "timeline", err)
}

// ensureProxies advances the proxy of every video URL
func (api *API) ensureProxies(c *gin.Context) {
	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if api.proxies == nil {
		respondError(c, http.StatusServiceUnavailable, transcodeNotConfigured)
		return
	}

	ctx := c.Request.Context()
	urls, err := api.resolveURLs(ctx, req.TimelineID, req.URLs)
	if err != nil {
		api.respondResolveError(c, err)
		return
	}

	outcomes, err := api.proxies.Ensure(ctx, urls)
	if err != nil {
		api.logger.WithError(err).Error("failed to ensure proxies")
		respondError(c, http.StatusInternalServerError, "Failed to ensure proxies")
		return
	}

	views := make([]proxyView, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Record == nil {
			view := proxyView{URL: o.URL, Status: models.ProxyStatusError}
			if o.Err != nil {
				view.Error = o.Err.Error()
			}
			views = append(views, view)
			continue
		}
		views = append(views, newProxyView(o.URL, o.Record))
	}

	sum := proxy.Summarize(outcomes)
	c.JSON(http.StatusOK, gin.H{
		"total":      sum.Total,
		"ready":      sum.Ready,
		"processing": sum.Processing,
		"errors":     sum.Errors,
		"proxies":    views,
	})
}

// getProxyStatus reports known proxies without creating new ones
func (api *API) getProxyStatus(c *gin.Context) {
	if api.proxies == nil {
		respondError(c, http.StatusServiceUnavailable, transcodeNotConfigured)
		return
	}

	ctx := c.Request.Context()
	urls, err := api.resolveURLs(ctx, c.Query("timelineId"), queryURLs(c))
	if err != nil {
		api.respondResolveError(c, err)
		return
	}

	records, err := api.proxies.Status(ctx, urls)
	if err != nil {
		api.logger.WithError(err).Error("failed to load proxy status")
		respondError(c, http.StatusInternalServerError, "Failed to load proxy status")
		return
	}

	views := make(map[string]proxyView, len(records))
	ready := 0
	for u, record := range records {
		views[u] = newProxyView(u, record)
		if record.Status == models.ProxyStatusReady {
			ready++
		}
	}

	total := len(proxy.Distinct(urls))
	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"ready":    ready,
		"allReady": total > 0 && ready == total,
		"proxies":  views,
	})
}

// deleteProxies removes the proxies of a timeline's videos
func (api *API) deleteProxies(c *gin.Context) {
	if api.proxies == nil {
		respondError(c, http.StatusServiceUnavailable, transcodeNotConfigured)
		return
	}

	ctx := c.Request.Context()
	urls, err := api.resolveURLs(ctx, c.Query("timelineId"), queryURLs(c))
	if err != nil {
		api.respondResolveError(c, err)
		return
	}

	deleted, err := api.proxies.Cleanup(ctx, urls)
	if err != nil {
		api.logger.WithError(err).Warn("proxy cleanup incomplete")
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// previewTimeline returns the timeline with ready proxies substituted for
// every media kind the editor preview can use
func (api *API) previewTimeline(c *gin.Context) {
	ctx := c.Request.Context()
	record, err := api.timelines.GetTimeline(ctx, c.Param("id"))
	if err != nil {
		api.respondStoreError(c, "timeline", err)
		return
	}

	timeline := &record.Timeline
	if api.proxies == nil {
		c.JSON(http.StatusOK, timeline)
		return
	}

	var urls []string
	for _, kind := range []models.ClipType{models.ClipTypeVideo, models.ClipTypeImage, models.ClipTypeAudio} {
		urls = append(urls, timeline.MediaURLs(kind)...)
	}

	ready, err := api.proxies.PreviewProxies(ctx, urls)
	if err != nil {
		api.logger.WithTimelineID(record.ID).WithError(err).Warn("proxy lookup failed, serving original sources")
		c.JSON(http.StatusOK, timeline)
		return
	}

	c.JSON(http.StatusOK, proxy.BuildAcceleratedCopy(timeline, ready, proxy.ModePreview))
}

// saveTimeline stores a timeline document under id
func (api *API) saveTimeline(c *gin.Context) {
	var timeline models.Timeline
	if err := c.ShouldBindJSON(&timeline); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid timeline document")
		return
	}
	if err := timeline.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	record := &models.TimelineRecord{ID: c.Param("id"), Timeline: timeline}
	if err := api.timelines.SaveTimeline(c.Request.Context(), record); err != nil {
		api.logger.WithTimelineID(record.ID).WithError(err).Error("failed to save timeline")
		respondError(c, http.StatusInternalServerError, "Failed to save timeline")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": record.ID})
}
