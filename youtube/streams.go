package youtube

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexInt tolerates the numeric sloppiness of mirror APIs: values arrive as
// JSON numbers, numeric strings, or decorated strings like "505905" vs
// "128kbps". Non-digit characters are stripped before parsing; anything left
// unparseable decodes to zero.
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		digits := make([]byte, 0, len(s))
		for i := 0; i < len(s); i++ {
			if s[i] >= '0' && s[i] <= '9' {
				digits = append(digits, s[i])
			}
		}
		if len(digits) == 0 {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(string(digits), 10, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexInt(n)
		return nil
	}

	// Plain number; tolerate floats by truncating.
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		*f = 0
		return nil
	}
	*f = FlexInt(int64(n))
	return nil
}

// MirrorStream is one raw stream entry as exposed by a mirror or player
// response. Field coverage is the union of the Invidious, Piped, and player
// API shapes; absent fields stay zero.
type MirrorStream struct {
	URL            string  `json:"url"`
	MimeType       string  `json:"mimeType,omitempty"`
	Type           string  `json:"type,omitempty"` // legacy Invidious mime field
	Container      string  `json:"container,omitempty"`
	Quality        string  `json:"quality,omitempty"`
	QualityLabel   string  `json:"qualityLabel,omitempty"`
	Bitrate        FlexInt `json:"bitrate,omitempty"`
	AverageBitrate FlexInt `json:"averageBitrate,omitempty"`
	Height         int     `json:"height,omitempty"`
	Width          int     `json:"width,omitempty"`
	FPS            int     `json:"fps,omitempty"`
	AudioQuality   string  `json:"audioQuality,omitempty"`
	VideoOnly      bool    `json:"videoOnly,omitempty"` // Piped
	HasAudio       bool    `json:"hasAudio,omitempty"`  // Piped
}

// mime returns whichever mime hint the source populated.
func (s MirrorStream) mime() string {
	if s.MimeType != "" {
		return s.MimeType
	}
	return s.Type
}

// StreamBag holds a source's native stream lists verbatim, keyed the way the
// stream selector expects them per mirror shape. Derived, never persisted.
type StreamBag struct {
	// Invidious / player API shape.
	FormatStreams   []MirrorStream
	AdaptiveFormats []MirrorStream

	// Piped shape.
	VideoStreams []MirrorStream
	AudioStreams []MirrorStream
	ProxyURL     string
}

// Empty reports whether the bag carries no streams at all.
func (b StreamBag) Empty() bool {
	return len(b.FormatStreams) == 0 && len(b.AdaptiveFormats) == 0 &&
		len(b.VideoStreams) == 0 && len(b.AudioStreams) == 0
}

// isPipedShape reports whether the Piped-shaped keys are the populated ones.
func (b StreamBag) isPipedShape() bool {
	return len(b.VideoStreams) > 0 || len(b.AudioStreams) > 0
}

// StreamDescriptor is one concrete downloadable rendition selected out of a
// stream bag.
type StreamDescriptor struct {
	URL        string
	MimeType   string
	Container  string
	Quality    string
	Bitrate    int64
	Height     int
	AudioOnly  bool
	VideoOnly  bool
	MirrorType MirrorType
}
