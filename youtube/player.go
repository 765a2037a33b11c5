package youtube

import (
	"encoding/json"
	"strings"
)

// playerResponse models the subset of a YouTube player response consumed by
// the mapper. Both the internal player API and the watch-page scrape yield
// this shape.
type playerResponse struct {
	VideoDetails struct {
		VideoID          string          `json:"videoId"`
		Title            string          `json:"title"`
		ShortDescription string          `json:"shortDescription"`
		Author           string          `json:"author"`
		ChannelID        string          `json:"channelId"`
		LengthSeconds    json.RawMessage `json:"lengthSeconds"`
		ViewCount        json.RawMessage `json:"viewCount"`
		Keywords         []string        `json:"keywords"`
		IsLiveContent    bool            `json:"isLiveContent"`
		IsLive           bool            `json:"isLive"`
		Thumbnail        struct {
			Thumbnails []Thumbnail `json:"thumbnails"`
		} `json:"thumbnail"`
	} `json:"videoDetails"`

	Microformat struct {
		PlayerMicroformatRenderer struct {
			PublishDate     string `json:"publishDate"`
			UploadDate      string `json:"uploadDate"`
			Category        string `json:"category"`
			OwnerProfileURL string `json:"ownerProfileUrl"`
			IsFamilySafe    *bool  `json:"isFamilySafe"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`

	Captions struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []struct {
				LanguageCode string `json:"languageCode"`
			} `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`

	PlayabilityStatus struct {
		Status          string `json:"status"`
		PlayableInEmbed bool   `json:"playableInEmbed"`
	} `json:"playabilityStatus"`

	StreamingData struct {
		Formats         []MirrorStream `json:"formats"`
		AdaptiveFormats []MirrorStream `json:"adaptiveFormats"`
	} `json:"streamingData"`
}

// mapPlayerResponse normalizes a player response into the canonical record.
// Returns nil when the response carries no title, which the caller treats as
// a soft failure.
func mapPlayerResponse(pr *playerResponse, videoID string) *VideoMetadata {
	title := strings.TrimSpace(pr.VideoDetails.Title)
	if title == "" {
		return nil
	}

	if pr.VideoDetails.VideoID != "" {
		videoID = pr.VideoDetails.VideoID
	}

	mf := pr.Microformat.PlayerMicroformatRenderer
	uploadDate := normalizeDate(mf.UploadDate)
	if uploadDate == "" {
		uploadDate = normalizeDate(mf.PublishDate)
	}

	duration := coerceSeconds(pr.VideoDetails.LengthSeconds)

	var categories []string
	if mf.Category != "" {
		categories = []string{mf.Category}
	}

	thumbnails := pr.VideoDetails.Thumbnail.Thumbnails
	var thumbnail string
	if len(thumbnails) > 0 {
		// Player responses order thumbnails smallest first.
		thumbnail = thumbnails[len(thumbnails)-1].URL
	}

	availability := "public"
	if pr.PlayabilityStatus.Status != "" && pr.PlayabilityStatus.Status != "OK" {
		availability = strings.ToLower(pr.PlayabilityStatus.Status)
	}

	var ageLimit *int
	if mf.IsFamilySafe != nil {
		limit := 0
		if !*mf.IsFamilySafe {
			limit = 18
		}
		ageLimit = &limit
	}

	var subtitles []string
	for _, track := range pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks {
		if track.LanguageCode != "" {
			subtitles = append(subtitles, track.LanguageCode)
		}
	}

	isLive := pr.VideoDetails.IsLive || pr.VideoDetails.IsLiveContent

	meta := &VideoMetadata{
		ID:              videoID,
		Title:           title,
		Description:     pr.VideoDetails.ShortDescription,
		Uploader:        pr.VideoDetails.Author,
		UploaderID:      pr.VideoDetails.ChannelID,
		UploaderURL:     mf.OwnerProfileURL,
		Channel:         pr.VideoDetails.Author,
		ChannelID:       pr.VideoDetails.ChannelID,
		ChannelURL:      "https://www.youtube.com/channel/" + pr.VideoDetails.ChannelID,
		Duration:        duration,
		DurationString:  secondsString(duration),
		ViewCount:       coerceSeconds(pr.VideoDetails.ViewCount),
		UploadDate:      uploadDate,
		ReleaseDate:     normalizeDate(mf.PublishDate),
		Thumbnail:       thumbnail,
		Thumbnails:      thumbnails,
		Tags:            pr.VideoDetails.Keywords,
		Categories:      categories,
		AgeLimit:        ageLimit,
		Subtitles:       subtitles,
		IsLive:          isLive,
		WasLive:         pr.VideoDetails.IsLiveContent,
		LiveStatus:      liveStatus(isLive),
		WebpageURL:      watchURL(videoID),
		OriginalURL:     watchURL(videoID),
		Availability:    availability,
		PlayableInEmbed: pr.PlayabilityStatus.PlayableInEmbed,

		mirrorType: MirrorInvidious,
		streams: StreamBag{
			FormatStreams:   pr.StreamingData.Formats,
			AdaptiveFormats: pr.StreamingData.AdaptiveFormats,
		},
	}
	return meta
}
