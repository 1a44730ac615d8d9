package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTimeline = `{
	"width": 1920,
	"height": 1080,
	"fps": 30,
	"durationInFrames": 900,
	"tracks": [
		{"id": "t1", "clips": [
			{"type": "video", "src": "https://cdn.example.com/a.mp4", "from": 0, "durationInFrames": 300},
			{"type": "template", "templateId": "lower-third", "props": {"title": "Hello"}}
		]},
		{"id": "t2", "clips": [
			{"type": "image", "src": "https://cdn.example.com/b.png", "proxySrc": "https://evil.example.com/x"},
			{"type": "audio", "src": "https://cdn.example.com/c.mp3"}
		]}
	]
}`

func TestTimelineUnmarshal(t *testing.T) {
	var tl Timeline
	require.NoError(t, json.Unmarshal([]byte(sampleTimeline), &tl))

	assert.Equal(t, 1920, tl.Width)
	assert.Equal(t, 900, tl.DurationInFrames)
	require.Len(t, tl.Tracks, 2)

	video := tl.Tracks[0].Clips[0]
	assert.Equal(t, ClipTypeVideo, video.Type)
	assert.Equal(t, "https://cdn.example.com/a.mp4", video.Src)
	assert.Contains(t, video.Extra, "from")
	assert.NotContains(t, video.Extra, "src")

	tmpl := tl.Tracks[0].Clips[1]
	assert.Equal(t, ClipTypeTemplate, tmpl.Type)
	assert.Empty(t, tmpl.Src)
	assert.Contains(t, tmpl.Extra, "props")

	// caller-supplied proxySrc is discarded
	assert.Empty(t, tl.Tracks[1].Clips[0].ProxySrc)
	assert.NotContains(t, tl.Tracks[1].Clips[0].Extra, "proxySrc")
}

func TestTimelineUnmarshalUnknownClipType(t *testing.T) {
	var tl Timeline
	err := json.Unmarshal([]byte(`{"durationInFrames": 10, "tracks": [{"clips": [{"type": "hologram"}]}]}`), &tl)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTimeline)
}

func TestClipMarshalRoundTripKeepsExtraFields(t *testing.T) {
	var tl Timeline
	require.NoError(t, json.Unmarshal([]byte(sampleTimeline), &tl))
	tl.Tracks[0].Clips[0].ProxySrc = "https://proxy.example.com/a.mp4"

	data, err := json.Marshal(tl)
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.Contains(out, `"proxySrc":"https://proxy.example.com/a.mp4"`))
	assert.True(t, strings.Contains(out, `"templateId":"lower-third"`))
	assert.True(t, strings.Contains(out, `"durationInFrames":300`))
}

func TestTimelineValidate(t *testing.T) {
	tests := []struct {
		name    string
		tl      *Timeline
		wantErr bool
	}{
		{"nil timeline", nil, true},
		{"missing tracks", &Timeline{DurationInFrames: 10}, true},
		{"track without clips", &Timeline{DurationInFrames: 10, Tracks: []Track{{ID: "a"}}}, true},
		{"zero duration", &Timeline{Tracks: []Track{}}, true},
		{"valid empty", &Timeline{DurationInFrames: 1, Tracks: []Track{}}, false},
		{"valid", &Timeline{DurationInFrames: 30, Tracks: []Track{{Clips: []Clip{}}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tl.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimeline)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTimelineCloneIsDeep(t *testing.T) {
	var tl Timeline
	require.NoError(t, json.Unmarshal([]byte(sampleTimeline), &tl))

	cp := tl.Clone()
	cp.Tracks[0].Clips[0].ProxySrc = "changed"
	cp.Tracks[0].Clips[0].Extra["from"] = json.RawMessage(`99`)
	cp.Tracks[1].Clips = append(cp.Tracks[1].Clips, Clip{Type: ClipTypeAudio})

	assert.Empty(t, tl.Tracks[0].Clips[0].ProxySrc)
	assert.Equal(t, json.RawMessage(`0`), tl.Tracks[0].Clips[0].Extra["from"])
	assert.Len(t, tl.Tracks[1].Clips, 2)
}

func TestTimelineMediaURLs(t *testing.T) {
	tl := Timeline{
		DurationInFrames: 10,
		Tracks: []Track{
			{Clips: []Clip{
				{Type: ClipTypeVideo, Src: "a"},
				{Type: ClipTypeVideo, Src: "b"},
				{Type: ClipTypeImage, Src: "c"},
			}},
			{Clips: []Clip{
				{Type: ClipTypeVideo, Src: "a"},
				{Type: ClipTypeTemplate},
			}},
		},
	}

	assert.Equal(t, []string{"a", "b"}, tl.MediaURLs(ClipTypeVideo))
	assert.Equal(t, []string{"c"}, tl.MediaURLs(ClipTypeImage))
	assert.Empty(t, tl.MediaURLs(ClipTypeAudio))
}

func TestTimelineScan(t *testing.T) {
	var tl Timeline
	require.NoError(t, tl.Scan([]byte(sampleTimeline)))
	assert.Len(t, tl.Tracks, 2)

	var fromString Timeline
	require.NoError(t, fromString.Scan(sampleTimeline))
	assert.Equal(t, 30.0, fromString.FPS)

	assert.Error(t, tl.Scan(42))
}

func TestTruncateMessage(t *testing.T) {
	short := "boom"
	assert.Equal(t, short, TruncateMessage(short))

	long := strings.Repeat("x", 500)
	assert.Len(t, TruncateMessage(long), MaxErrorMessageLength)
}

func TestRenderJobIsTerminal(t *testing.T) {
	assert.False(t, (&RenderJob{Status: RenderStatusRendering}).IsTerminal())
	assert.True(t, (&RenderJob{Status: RenderStatusRendered}).IsTerminal())
	assert.True(t, (&RenderJob{Status: RenderStatusFailed}).IsTerminal())
}

func TestProxyRecordAcceleratedURL(t *testing.T) {
	ready := &ProxyRecord{Status: ProxyStatusReady, ProxyURL: "https://proxy/a.mp4", PlaybackURL: "https://stream/a.m3u8"}
	assert.Equal(t, "https://proxy/a.mp4", ready.AcceleratedURL())
	assert.True(t, ready.IsSettled())

	processing := &ProxyRecord{Status: ProxyStatusProcessing, ProxyURL: "https://proxy/a.mp4"}
	assert.Empty(t, processing.AcceleratedURL())
	assert.False(t, processing.IsSettled())
}

func TestWebhookSubscribes(t *testing.T) {
	all := Webhook{URL: "http://x"}
	assert.True(t, all.Subscribes(WebhookEventRenderFailed))

	some := Webhook{URL: "http://x", Events: []string{WebhookEventRenderCompleted}}
	assert.True(t, some.Subscribes(WebhookEventRenderCompleted))
	assert.False(t, some.Subscribes(WebhookEventRenderFailed))
}
