package youtube

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"ytfetch/proxy"
)

// DataAPIStrategy extracts metadata through the official YouTube Data API.
// It yields no stream URLs, so records from it always download via the
// engine, but it is quota-bound rather than block-prone and therefore makes
// a reliable terminal fallback when an API key is configured.
type DataAPIStrategy struct {
	APIKey string

	initOnce sync.Once
	svc      *yt.Service
	initErr  error
}

// Name implements Strategy.
func (s *DataAPIStrategy) Name() string { return "data_api" }

// Proxied implements Strategy. Quota is tied to the key, not the IP, so
// proxy rotation buys nothing here.
func (s *DataAPIStrategy) Proxied() bool { return false }

// Extract implements Strategy.
func (s *DataAPIStrategy) Extract(ctx context.Context, req Request, _ proxy.Candidate) (*VideoMetadata, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Videos.
		List([]string{"snippet", "statistics", "contentDetails"}).
		Id(req.VideoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("data api: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("data api: video %s not found", req.VideoID)
	}

	item := resp.Items[0]
	sn := item.Snippet
	if sn == nil || strings.TrimSpace(sn.Title) == "" {
		return nil, ErrNoTitle
	}

	videoID := item.Id
	if videoID == "" {
		videoID = req.VideoID
	}

	var duration *int64
	if item.ContentDetails != nil {
		duration = parseISODuration(item.ContentDetails.Duration)
	}

	var viewCount, likeCount, commentCount *int64
	if st := item.Statistics; st != nil {
		viewCount = int64Ptr(int64(st.ViewCount))
		likeCount = int64Ptr(int64(st.LikeCount))
		commentCount = int64Ptr(int64(st.CommentCount))
	}

	thumbnails := apiThumbnails(sn.Thumbnails)
	var thumbnail string
	if len(thumbnails) > 0 {
		thumbnail = thumbnails[len(thumbnails)-1].URL
	}

	isLive := sn.LiveBroadcastContent == "live"

	return &VideoMetadata{
		ID:             videoID,
		Title:          sn.Title,
		Description:    sn.Description,
		Uploader:       sn.ChannelTitle,
		UploaderID:     sn.ChannelId,
		Channel:        sn.ChannelTitle,
		ChannelID:      sn.ChannelId,
		ChannelURL:     "https://www.youtube.com/channel/" + sn.ChannelId,
		Duration:       duration,
		DurationString: secondsString(duration),
		ViewCount:      viewCount,
		LikeCount:      likeCount,
		CommentCount:   commentCount,
		UploadDate:     normalizeDate(sn.PublishedAt),
		Thumbnail:      thumbnail,
		Thumbnails:     thumbnails,
		Tags:           sn.Tags,
		IsLive:         isLive,
		LiveStatus:     liveStatus(isLive),
		WebpageURL:     watchURL(videoID),
		OriginalURL:    watchURL(videoID),
		Availability:   "public",
	}, nil
}

func (s *DataAPIStrategy) service(ctx context.Context) (*yt.Service, error) {
	s.initOnce.Do(func() {
		s.svc, s.initErr = yt.NewService(context.WithoutCancel(ctx), option.WithAPIKey(s.APIKey))
	})
	if s.initErr != nil {
		return nil, fmt.Errorf("init data api client: %w", s.initErr)
	}
	return s.svc, nil
}

// apiThumbnails flattens the fixed-slot thumbnail struct into a list ordered
// smallest to largest.
func apiThumbnails(td *yt.ThumbnailDetails) []Thumbnail {
	if td == nil {
		return nil
	}
	var out []Thumbnail
	for _, t := range []*yt.Thumbnail{td.Default, td.Medium, td.High, td.Standard, td.Maxres} {
		if t == nil || t.Url == "" {
			continue
		}
		out = append(out, Thumbnail{URL: t.Url, Width: int(t.Width), Height: int(t.Height)})
	}
	return out
}

// parseISODuration converts an ISO-8601 duration (PT3M33S) to seconds.
// Returns nil on anything it cannot parse.
func parseISODuration(s string) *int64 {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "P") {
		return nil
	}
	s = s[1:]

	var total int64
	var num int64
	var inTime bool
	var sawDigit bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			num = num*10 + int64(c-'0')
			sawDigit = true
		case c == 'T':
			inTime = true
		case c == 'D':
			total += num * 86400
			num = 0
		case c == 'H' && inTime:
			total += num * 3600
			num = 0
		case c == 'M' && inTime:
			total += num * 60
			num = 0
		case c == 'S' && inTime:
			total += num
			num = 0
		default:
			return nil
		}
	}
	if !sawDigit {
		return nil
	}
	return &total
}
