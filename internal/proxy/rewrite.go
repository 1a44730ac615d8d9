package proxy

import (
	"net/url"
	"strconv"

	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

// Mode selects which clips the rewriter accelerates
type Mode int

const (
	// ModePreview accelerates every media clip for low bandwidth playback and
	// asks for downscaled images.
	ModePreview Mode = iota
	// ModeRender accelerates video clips only, at full quality.
	ModeRender
)

// Image hint applied to preview proxies
const (
	previewImageWidth   = 640
	previewImageQuality = 70
)

// BuildAcceleratedCopy returns a deep copy of timeline with ProxySrc set on
// every eligible clip whose source has a ready proxy. The input is never
// modified.
func BuildAcceleratedCopy(timeline *models.Timeline, ready map[string]string, mode Mode) *models.Timeline {
	out := timeline.Clone()
	if out == nil {
		return nil
	}

	for i := range out.Tracks {
		clips := out.Tracks[i].Clips
		for j := range clips {
			clip := &clips[j]
			if !accelerates(mode, clip.Type) {
				continue
			}
			proxyURL, ok := ready[clip.Src]
			if !ok || proxyURL == "" {
				continue
			}
			if mode == ModePreview && clip.Type == models.ClipTypeImage {
				proxyURL = withImageHint(proxyURL)
			}
			clip.ProxySrc = proxyURL
		}
	}

	return out
}

func accelerates(mode Mode, clipType models.ClipType) bool {
	switch clipType {
	case models.ClipTypeVideo:
		return true
	case models.ClipTypeImage, models.ClipTypeAudio:
		return mode == ModePreview
	case models.ClipTypeTemplate:
		return false
	default:
		return false
	}
}

// withImageHint appends resize and quality parameters. Unparseable URLs are
// returned as is.
func withImageHint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("width", strconv.Itoa(previewImageWidth))
	q.Set("quality", strconv.Itoa(previewImageQuality))
	u.RawQuery = q.Encode()
	return u.String()
}
