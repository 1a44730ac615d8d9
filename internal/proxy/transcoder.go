package proxy

import (
	"context"
	"errors"

	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// ErrNotConfigured is returned when transcode credentials are missing
var ErrNotConfigured = errors.New("transcode service is not configured")

// External stream states reported by the transcode service
const (
	StreamStateReady      = "ready"
	StreamStateError      = "error"
	StreamStateInProgress = "inprogress"
)

// StreamInfo is the transcode service's view of one uploaded source
type StreamInfo struct {
	UID             string
	State           string
	ErrorText       string
	PlaybackURL     string
	ThumbnailURL    string
	DurationSeconds float64
}

// Transcoder is the external service that produces proxies
type Transcoder interface {
	// CopyFromURL asks the service to fetch and transcode url, returning its handle
	CopyFromURL(ctx context.Context, url string) (string, error)
	Get(ctx context.Context, streamID string) (*StreamInfo, error)
	// EnableDownload requests a downloadable rendition. The returned URL is
	// stable even while ready is false.
	EnableDownload(ctx context.Context, streamID string) (url string, ready bool, err error)
	Delete(ctx context.Context, streamID string) error
}

// localStatus maps an external stream state onto a proxy record status
func localStatus(state string) string {
	switch state {
	case StreamStateReady:
		return models.ProxyStatusReady
	case StreamStateError:
		return models.ProxyStatusError
	case StreamStateInProgress:
		return models.ProxyStatusProcessing
	default:
		return models.ProxyStatusUploading
	}
}
