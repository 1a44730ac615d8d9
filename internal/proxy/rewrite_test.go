package proxy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

func sampleTimeline() *models.Timeline {
	return &models.Timeline{
		Width:            1920,
		Height:           1080,
		FPS:              30,
		DurationInFrames: 300,
		Tracks: []models.Track{
			{
				ID: "t1",
				Clips: []models.Clip{
					{Type: models.ClipTypeVideo, Src: "https://a/v.mp4", Extra: map[string]json.RawMessage{"from": json.RawMessage(`0`)}},
					{Type: models.ClipTypeImage, Src: "https://a/i.png"},
					{Type: models.ClipTypeAudio, Src: "https://a/a.mp3"},
					{Type: models.ClipTypeTemplate, Extra: map[string]json.RawMessage{"src": json.RawMessage(`"https://a/v.mp4"`)}},
				},
			},
		},
	}
}

var readyProxies = map[string]string{
	"https://a/v.mp4": "https://cdn/v.mp4",
	"https://a/i.png": "https://cdn/i.png",
	"https://a/a.mp3": "https://cdn/a.mp3",
}

func TestBuildAcceleratedCopyRenderMode(t *testing.T) {
	tl := sampleTimeline()

	out := BuildAcceleratedCopy(tl, readyProxies, ModeRender)
	require.NotNil(t, out)

	clips := out.Tracks[0].Clips
	assert.Equal(t, "https://cdn/v.mp4", clips[0].ProxySrc)
	assert.Empty(t, clips[1].ProxySrc, "images are not accelerated for render")
	assert.Empty(t, clips[2].ProxySrc, "audio is not accelerated for render")
	assert.Empty(t, clips[3].ProxySrc)
}

func TestBuildAcceleratedCopyPreviewMode(t *testing.T) {
	tl := sampleTimeline()

	out := BuildAcceleratedCopy(tl, readyProxies, ModePreview)

	clips := out.Tracks[0].Clips
	assert.Equal(t, "https://cdn/v.mp4", clips[0].ProxySrc)
	assert.Equal(t, "https://cdn/i.png?quality=70&width=640", clips[1].ProxySrc)
	assert.Equal(t, "https://cdn/a.mp3", clips[2].ProxySrc)
	assert.Empty(t, clips[3].ProxySrc, "templates are never touched")
	assert.JSONEq(t, `"https://a/v.mp4"`, string(clips[3].Extra["src"]))
}

func TestBuildAcceleratedCopyDoesNotMutateInput(t *testing.T) {
	tl := sampleTimeline()
	before, err := json.Marshal(tl)
	require.NoError(t, err)

	out := BuildAcceleratedCopy(tl, readyProxies, ModePreview)
	out.Tracks[0].Clips[0].Extra["from"] = json.RawMessage(`99`)

	after, err := json.Marshal(tl)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	for _, clip := range tl.Tracks[0].Clips {
		assert.Empty(t, clip.ProxySrc)
	}
}

func TestBuildAcceleratedCopyWithoutProxies(t *testing.T) {
	tl := sampleTimeline()

	out := BuildAcceleratedCopy(tl, nil, ModePreview)

	for _, clip := range out.Tracks[0].Clips {
		assert.Empty(t, clip.ProxySrc)
	}
	assert.Nil(t, BuildAcceleratedCopy(nil, readyProxies, ModeRender))
}

func TestWithImageHintKeepsExistingQuery(t *testing.T) {
	assert.Equal(t, "https://cdn/i.png?quality=70&sig=abc&width=640", withImageHint("https://cdn/i.png?sig=abc"))
}
