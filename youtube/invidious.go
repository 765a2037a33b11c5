package youtube

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	httpx "ytfetch/http"
	"ytfetch/proxy"
)

const invidiousTimeout = 15 * time.Second

// DefaultInvidiousInstances is the built-in public Invidious instance pool.
var DefaultInvidiousInstances = []string{
	"https://yt.artemislena.eu",
	"https://invidious.protokolla.fi",
	"https://invidious.jing.rocks",
	"https://invidious.privacydev.net",
	"https://invidious.fdn.fr",
	"https://yt.mnt.lv",
}

// flexStringList tolerates fields that arrive either as a single string or a
// list of strings (the Invidious genre field does both).
type flexStringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *flexStringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*l = nil
		} else {
			*l = []string{s}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	*l = nil
	return nil
}

// invidiousVideo is the /api/v1/videos response subset consumed here.
type invidiousVideo struct {
	Title             string          `json:"title"`
	VideoID           string          `json:"videoId"`
	Description       string          `json:"description"`
	Author            string          `json:"author"`
	AuthorID          string          `json:"authorId"`
	AuthorURL         string          `json:"authorUrl"`
	LengthSeconds     json.RawMessage `json:"lengthSeconds"`
	ViewCount         json.RawMessage `json:"viewCount"`
	LikeCount         json.RawMessage `json:"likeCount"`
	CommentCount      json.RawMessage `json:"commentCount"`
	Published         int64           `json:"published"`
	PremiereTimestamp int64           `json:"premiereTimestamp"`
	Genre             flexStringList  `json:"genre"`
	Keywords          []string        `json:"keywords"`
	LiveNow           bool            `json:"liveNow"`
	AverageRating     *float64        `json:"averageRating"`
	Chapters          []Chapter       `json:"chapters"`
	VideoThumbnails   []Thumbnail     `json:"videoThumbnails"`
	Captions          []struct {
		LanguageCode string `json:"languageCode"`
	} `json:"captions"`
	FormatStreams   []MirrorStream `json:"formatStreams"`
	AdaptiveFormats []MirrorStream `json:"adaptiveFormats"`
}

// InvidiousStrategy extracts metadata from one Invidious instance. The
// resolver registers one strategy per instance, in shuffled order, so a dead
// instance costs a single soft failure.
type InvidiousStrategy struct {
	Client   *httpx.Client
	Instance string

	// VerifyTLS controls certificate verification; community instances run
	// expired or self-signed certs often enough to make this a knob.
	VerifyTLS bool
}

// Name implements Strategy.
func (s *InvidiousStrategy) Name() string {
	return "invidious:" + instanceHost(s.Instance)
}

// Proxied implements Strategy.
func (s *InvidiousStrategy) Proxied() bool { return true }

// Extract implements Strategy.
func (s *InvidiousStrategy) Extract(ctx context.Context, req Request, via proxy.Candidate) (*VideoMetadata, error) {
	endpoint := strings.TrimSuffix(s.Instance, "/") + "/api/v1/videos/" + req.VideoID

	opts := httpx.RequestOptions{
		Proxy:       via.URL(),
		InsecureTLS: !s.VerifyTLS,
		Timeout:     invidiousTimeout,
	}
	var v invidiousVideo
	if err := s.Client.GetJSON(ctx, endpoint, opts, &v); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(v.Title)
	if title == "" {
		return nil, ErrNoTitle
	}

	videoID := v.VideoID
	if videoID == "" {
		videoID = req.VideoID
	}

	duration := coerceSeconds(v.LengthSeconds)
	thumbnails := absoluteThumbnails(v.VideoThumbnails, s.Instance)

	var uploaderURL string
	if v.AuthorURL != "" {
		uploaderURL = strings.TrimSuffix(s.Instance, "/") + v.AuthorURL
	}

	var subtitles []string
	for _, c := range v.Captions {
		if c.LanguageCode != "" {
			subtitles = append(subtitles, c.LanguageCode)
		}
	}

	meta := &VideoMetadata{
		ID:             videoID,
		Title:          title,
		Description:    v.Description,
		Uploader:       v.Author,
		UploaderID:     v.AuthorID,
		UploaderURL:    uploaderURL,
		Channel:        v.Author,
		ChannelID:      v.AuthorID,
		ChannelURL:     "https://www.youtube.com/channel/" + v.AuthorID,
		Duration:       duration,
		DurationString: secondsString(duration),
		ViewCount:      coerceSeconds(v.ViewCount),
		LikeCount:      coerceSeconds(v.LikeCount),
		CommentCount:   coerceSeconds(v.CommentCount),
		UploadDate:     epochToDate(v.Published),
		ReleaseDate:    epochToDate(v.PremiereTimestamp),
		Thumbnail:      lastThumbnail(thumbnails),
		Thumbnails:     thumbnails,
		Tags:           v.Keywords,
		Categories:     v.Genre,
		AverageRating:  v.AverageRating,
		Chapters:       v.Chapters,
		Subtitles:      subtitles,
		IsLive:         v.LiveNow,
		WasLive:        v.LiveNow,
		LiveStatus:     liveStatus(v.LiveNow),
		WebpageURL:     watchURL(videoID),
		OriginalURL:    watchURL(videoID),
		Availability:   "public",

		mirrorType:     MirrorInvidious,
		mirrorInstance: s.Instance,
		verifyTLS:      s.VerifyTLS,
		streams: StreamBag{
			FormatStreams:   v.FormatStreams,
			AdaptiveFormats: v.AdaptiveFormats,
		},
	}
	return meta, nil
}

// absoluteThumbnails resolves instance-relative thumbnail paths.
func absoluteThumbnails(thumbs []Thumbnail, instance string) []Thumbnail {
	base := strings.TrimSuffix(instance, "/")
	out := make([]Thumbnail, len(thumbs))
	for i, t := range thumbs {
		if strings.HasPrefix(t.URL, "/") {
			t.URL = base + t.URL
		}
		out[i] = t
	}
	return out
}

// lastThumbnail returns the final entry of a thumbnail list, the
// representative pick shared by every normalizer.
func lastThumbnail(thumbs []Thumbnail) string {
	if len(thumbs) == 0 {
		return ""
	}
	return thumbs[len(thumbs)-1].URL
}

func instanceHost(instance string) string {
	if u, err := url.Parse(instance); err == nil && u.Host != "" {
		return u.Host
	}
	return instance
}
