package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// ClipType identifies the kind of media a clip carries
type ClipType string

// ClipType constants
const (
	ClipTypeVideo    ClipType = "video"
	ClipTypeImage    ClipType = "image"
	ClipTypeAudio    ClipType = "audio"
	ClipTypeTemplate ClipType = "template"
)

// IsMedia reports whether clips of this type reference a source URL.
func (t ClipType) IsMedia() bool {
	switch t {
	case ClipTypeVideo, ClipTypeImage, ClipTypeAudio:
		return true
	case ClipTypeTemplate:
		return false
	default:
		return false
	}
}

// Valid reports whether t is one of the known clip types
func (t ClipType) Valid() bool {
	switch t {
	case ClipTypeVideo, ClipTypeImage, ClipTypeAudio, ClipTypeTemplate:
		return true
	}
	return false
}

// ErrInvalidTimeline is returned when a timeline is missing its structural shape
var ErrInvalidTimeline = errors.New("invalid timeline")

// Timeline is the declarative description of a composition submitted for rendering.
// Only the structural fields are interpreted here; everything else on a clip is
// passed through to the render farm untouched.
type Timeline struct {
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	FPS              float64 `json:"fps"`
	DurationInFrames int     `json:"durationInFrames"`
	Tracks           []Track `json:"tracks"`
}

// Track is an ordered list of clips
type Track struct {
	ID    string `json:"id,omitempty"`
	Clips []Clip `json:"clips"`
}

// Clip is a single item on a track. Src is only meaningful for media clip
// types; template clips never carry one. ProxySrc is filled in by the proxy
// rewriter and is never accepted from callers.
type Clip struct {
	Type     ClipType
	Src      string
	ProxySrc string

	// Extra holds every other clip field verbatim.
	Extra map[string]json.RawMessage
}

// MarshalJSON flattens the clip back into a single JSON object
func (c Clip) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}

	put := func(key, value string) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}

	if err := put("type", string(c.Type)); err != nil {
		return nil, err
	}
	if c.Type.IsMedia() {
		if err := put("src", c.Src); err != nil {
			return nil, err
		}
		if c.ProxySrc != "" {
			if err := put("proxySrc", c.ProxySrc); err != nil {
				return nil, err
			}
		}
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes a clip, keeping unknown fields in Extra
func (c *Clip) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("clip must be an object: %w", err)
	}

	var clipType string
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &clipType); err != nil {
			return fmt.Errorf("clip type: %w", err)
		}
	}
	c.Type = ClipType(clipType)
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown clip type %q", ErrInvalidTimeline, clipType)
	}

	c.Src = ""
	if raw, ok := fields["src"]; ok && c.Type.IsMedia() {
		if err := json.Unmarshal(raw, &c.Src); err != nil {
			return fmt.Errorf("clip src: %w", err)
		}
	}

	// proxySrc is owned by the rewriter
	c.ProxySrc = ""

	delete(fields, "type")
	delete(fields, "proxySrc")
	if c.Type.IsMedia() {
		delete(fields, "src")
	}
	c.Extra = fields

	return nil
}

// Validate checks the structural shape of a timeline. Media-level correctness
// is the caller's responsibility.
func (t *Timeline) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: timeline is nil", ErrInvalidTimeline)
	}
	if t.Tracks == nil {
		return fmt.Errorf("%w: tracks missing", ErrInvalidTimeline)
	}
	for i, track := range t.Tracks {
		if track.Clips == nil {
			return fmt.Errorf("%w: track %d has no clips array", ErrInvalidTimeline, i)
		}
	}
	if t.DurationInFrames < 1 {
		return fmt.Errorf("%w: durationInFrames must be >= 1", ErrInvalidTimeline)
	}
	return nil
}

// Clone returns a deep copy of the timeline
func (t *Timeline) Clone() *Timeline {
	if t == nil {
		return nil
	}

	out := *t
	out.Tracks = make([]Track, len(t.Tracks))
	for i, track := range t.Tracks {
		out.Tracks[i] = Track{ID: track.ID}
		if track.Clips != nil {
			out.Tracks[i].Clips = make([]Clip, len(track.Clips))
		}
		for j, clip := range track.Clips {
			cp := clip
			if clip.Extra != nil {
				cp.Extra = make(map[string]json.RawMessage, len(clip.Extra))
				for k, v := range clip.Extra {
					cp.Extra[k] = append(json.RawMessage(nil), v...)
				}
			}
			out.Tracks[i].Clips[j] = cp
		}
	}

	return &out
}

// MediaURLs returns the distinct source URLs of clips of the given type, in
// timeline order.
func (t *Timeline) MediaURLs(clipType ClipType) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, track := range t.Tracks {
		for _, clip := range track.Clips {
			if clip.Type != clipType || clip.Src == "" || seen[clip.Src] {
				continue
			}
			seen[clip.Src] = true
			urls = append(urls, clip.Src)
		}
	}
	return urls
}

// Value implements driver.Valuer for database storage
func (t Timeline) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// Scan implements sql.Scanner for database retrieval
func (t *Timeline) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported timeline column type %T", value)
	}

	return json.Unmarshal(data, t)
}

// TimelineRecord is a stored timeline together with its active render pointer
type TimelineRecord struct {
	ID             string   `json:"id" db:"id"`
	Timeline       Timeline `json:"timeline" db:"data"`
	ActiveRenderID string   `json:"active_render_id,omitempty" db:"active_render_id"`
}
