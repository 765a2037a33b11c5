// Package youtube resolves YouTube video URLs into normalized metadata and
// playable media streams.
//
// The package is built around a fallback resolution pipeline: an ordered
// chain of independent extraction strategies (yt-dlp engine variants, the
// internal player API, a watch-page scrape, Invidious and Piped mirrors),
// each normalizing its source-specific response into one canonical
// VideoMetadata record. A pure stream selector then picks a concrete
// downloadable rendition out of heterogeneous mirror data, and a download
// orchestrator turns it into a local file.
package youtube

import (
	"fmt"

	"ytfetch/proxy"
)

// Quality is the requested download quality class.
type Quality string

const (
	// QualityBest selects the best muxed video rendition.
	QualityBest Quality = "best"
	// QualityAudio selects the best audio-only rendition.
	QualityAudio Quality = "audio"
)

// ParseQuality validates a client-supplied quality string. Empty input
// defaults to best; anything outside the enumerated set is a validation
// error and never reaches the extraction chain.
func ParseQuality(s string) (Quality, error) {
	switch Quality(s) {
	case "":
		return QualityBest, nil
	case QualityBest, QualityAudio:
		return Quality(s), nil
	default:
		return "", &ValidationError{Field: "quality", Reason: fmt.Sprintf("must be %q or %q", QualityBest, QualityAudio)}
	}
}

// MirrorType identifies the mirror family a record's stream bag came from.
type MirrorType string

const (
	// MirrorInvidious marks the formatStreams/adaptiveFormats shape. The
	// internal player API and the watch-page scrape produce the same shape.
	MirrorInvidious MirrorType = "invidious"
	// MirrorPiped marks the videoStreams/audioStreams shape.
	MirrorPiped MirrorType = "piped"
)

// Thumbnail is one entry of a video's thumbnail list.
type Thumbnail struct {
	URL     string `json:"url"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// Chapter is one chapter marker of a video.
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time,omitempty"`
}

// VideoMetadata is the canonical metadata record all sources are mapped
// into. Exported fields are the public projection returned to callers;
// provenance and raw stream descriptors live in unexported fields and never
// serialize.
//
// Title is the single required field: a strategy result without it is a
// failure, not a partial success.
type VideoMetadata struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	Description       string      `json:"description"`
	Uploader          string      `json:"uploader"`
	UploaderID        string      `json:"uploader_id"`
	UploaderURL       string      `json:"uploader_url"`
	Channel           string      `json:"channel"`
	ChannelID         string      `json:"channel_id"`
	ChannelURL        string      `json:"channel_url"`
	Duration          *int64      `json:"duration"`
	DurationString    string      `json:"duration_string"`
	ViewCount         *int64      `json:"view_count"`
	LikeCount         *int64      `json:"like_count"`
	CommentCount      *int64      `json:"comment_count"`
	UploadDate        string      `json:"upload_date"`
	ReleaseDate       string      `json:"release_date"`
	Thumbnail         string      `json:"thumbnail"`
	Thumbnails        []Thumbnail `json:"thumbnails"`
	Tags              []string    `json:"tags"`
	Categories        []string    `json:"categories"`
	AgeLimit          *int        `json:"age_limit"`
	IsLive            bool        `json:"is_live"`
	WasLive           bool        `json:"was_live"`
	LiveStatus        string      `json:"live_status"`
	WebpageURL        string      `json:"webpage_url"`
	OriginalURL       string      `json:"original_url"`
	Availability      string      `json:"availability"`
	PlayableInEmbed   bool        `json:"playable_in_embed"`
	AverageRating     *float64    `json:"average_rating"`
	Chapters          []Chapter   `json:"chapters"`
	Subtitles         []string    `json:"subtitles"`
	AutomaticCaptions []string    `json:"automatic_captions"`

	// Internal-only provenance; stripped from JSON by being unexported.
	strategy       string
	proxyUsed      proxy.Candidate
	mirrorType     MirrorType
	mirrorInstance string
	verifyTLS      bool
	streams        StreamBag
}

// Strategy returns the name of the strategy that produced the record.
func (m *VideoMetadata) Strategy() string {
	return m.strategy
}

// ProxyUsed returns the proxy candidate the producing strategy went through.
func (m *VideoMetadata) ProxyUsed() proxy.Candidate {
	return m.proxyUsed
}

// MirrorInstance returns the mirror base URL for mirror-sourced records.
func (m *VideoMetadata) MirrorInstance() string {
	return m.mirrorInstance
}

// HasMirrorStreams reports whether the record carries raw stream
// descriptors that the stream selector can work with.
func (m *VideoMetadata) HasMirrorStreams() bool {
	return !m.streams.Empty()
}

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func liveStatus(isLive bool) string {
	if isLive {
		return "live"
	}
	return "not_live"
}
