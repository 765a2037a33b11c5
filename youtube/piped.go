package youtube

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	httpx "ytfetch/http"
	"ytfetch/proxy"
)

const pipedTimeout = 25 * time.Second

// DefaultPipedInstances is the built-in public Piped API instance pool.
var DefaultPipedInstances = []string{
	"https://pipedapi.kavin.rocks",
	"https://pipedapi-libre.kavin.rocks",
	"https://pipedapi.leptons.xyz",
	"https://pipedapi.nosebs.ru",
	"https://piped-api.codespace.cz",
	"https://pipedapi.reallyaweso.me",
	"https://api.piped.private.coffee",
	"https://pipedapi.ducks.party",
	"https://pipedapi.darkness.services",
	"https://pipedapi.orangenet.cc",
}

// pipedStreams is the /streams response subset consumed here.
type pipedStreams struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Uploader     string          `json:"uploader"`
	UploaderURL  string          `json:"uploaderUrl"`
	UploadDate   string          `json:"uploadDate"`
	Duration     json.RawMessage `json:"duration"`
	Views        json.RawMessage `json:"views"`
	Likes        json.RawMessage `json:"likes"`
	ThumbnailURL string          `json:"thumbnailUrl"`
	Category     string          `json:"category"`
	Tags         []string        `json:"tags"`
	Livestream   bool            `json:"livestream"`
	NSFW         bool            `json:"nsfw"`
	Subtitles    []struct {
		Code string `json:"code"`
	} `json:"subtitles"`
	VideoStreams []MirrorStream `json:"videoStreams"`
	AudioStreams []MirrorStream `json:"audioStreams"`
	ProxyURL     string         `json:"proxyUrl"`
}

// PipedStrategy extracts metadata from one Piped API instance. Piped
// instances aggressively block datacenter proxies, so the strategy is
// attempted direct only.
type PipedStrategy struct {
	Client   *httpx.Client
	Instance string
}

// Name implements Strategy.
func (s *PipedStrategy) Name() string {
	return "piped:" + instanceHost(s.Instance)
}

// Proxied implements Strategy.
func (s *PipedStrategy) Proxied() bool { return false }

// Extract implements Strategy.
func (s *PipedStrategy) Extract(ctx context.Context, req Request, _ proxy.Candidate) (*VideoMetadata, error) {
	endpoint := strings.TrimSuffix(s.Instance, "/") + "/streams/" + req.VideoID

	var p pipedStreams
	if err := s.Client.GetJSON(ctx, endpoint, httpx.RequestOptions{Timeout: pipedTimeout}, &p); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, ErrNoTitle
	}

	// Piped responses carry no video id of their own.
	videoID := req.VideoID

	duration := coerceSeconds(p.Duration)
	channelID := strings.TrimPrefix(p.UploaderURL, "/channel/")

	var uploaderURL string
	if p.UploaderURL != "" {
		uploaderURL = "https://www.youtube.com" + p.UploaderURL
	}

	var categories []string
	if p.Category != "" {
		categories = []string{p.Category}
	}

	var thumbnails []Thumbnail
	if p.ThumbnailURL != "" {
		thumbnails = []Thumbnail{{URL: p.ThumbnailURL}}
	}

	var subtitles []string
	for _, sub := range p.Subtitles {
		if sub.Code != "" {
			subtitles = append(subtitles, sub.Code)
		}
	}

	var ageLimit *int
	if p.NSFW {
		limit := 18
		ageLimit = &limit
	}

	meta := &VideoMetadata{
		ID:             videoID,
		Title:          title,
		Description:    p.Description,
		Uploader:       p.Uploader,
		UploaderID:     channelID,
		UploaderURL:    uploaderURL,
		Channel:        p.Uploader,
		ChannelID:      channelID,
		ChannelURL:     uploaderURL,
		Duration:       duration,
		DurationString: secondsString(duration),
		ViewCount:      coerceSeconds(p.Views),
		LikeCount:      coerceSeconds(p.Likes),
		UploadDate:     normalizeDate(p.UploadDate),
		Thumbnail:      p.ThumbnailURL,
		Thumbnails:     thumbnails,
		Tags:           p.Tags,
		Categories:     categories,
		AgeLimit:       ageLimit,
		Subtitles:      subtitles,
		IsLive:         p.Livestream,
		WasLive:        p.Livestream,
		LiveStatus:     liveStatus(p.Livestream),
		WebpageURL:     watchURL(videoID),
		OriginalURL:    watchURL(videoID),
		Availability:   "public",

		mirrorType:     MirrorPiped,
		mirrorInstance: s.Instance,
		verifyTLS:      true,
		streams: StreamBag{
			VideoStreams: p.VideoStreams,
			AudioStreams: p.AudioStreams,
			ProxyURL:     p.ProxyURL,
		},
	}
	return meta, nil
}
