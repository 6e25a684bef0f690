package astiplayer

import (
	"context"
	"time"
)

// Media types
const (
	MediaTypeAudio      = "audio"
	MediaTypeAttachment = "attachment"
	MediaTypeData       = "data"
	MediaTypeSubtitle   = "subtitle"
	MediaTypeUnknown    = "unknown"
	MediaTypeVideo      = "video"
)

// MediaProber represents an object capable of inspecting a media before it is loaded
type MediaProber interface {
	Probe(ctx context.Context, path string) (Media, error)
}

// Media represents a probed media
type Media struct {
	Duration time.Duration `json:"duration"`
	Path     string        `json:"path"`
	Streams  []MediaStream `json:"streams"`
}

// MediaStream represents a probed elementary stream
type MediaStream struct {
	Codec     string `json:"codec,omitempty"`
	FrameRate string `json:"frame_rate,omitempty"`
	Index     int    `json:"index"`
	MediaType string `json:"media_type"`
	TimeBase  string `json:"time_base,omitempty"`
}

// HasMediaType checks whether the media contains at least one stream of the provided media type
func (m Media) HasMediaType(t string) bool {
	for _, s := range m.Streams {
		if s.MediaType == t {
			return true
		}
	}
	return false
}
