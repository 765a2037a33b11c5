package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ytfetch/proxy"
)

const (
	defaultEnginePath     = "yt-dlp"
	defaultExtractTimeout = 2 * time.Minute
	defaultEngineTimeout  = 10 * time.Minute

	// Format selectors handed to the engine per quality class.
	formatBest  = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	formatAudio = "bestaudio/best"
)

// ErrEngineNotInstalled means the extraction engine binary is missing.
var ErrEngineNotInstalled = errors.New("yt-dlp not installed or not on PATH")

// VariantProfile is one engine client configuration. YouTube blocks the
// player clients unevenly, so the chain tries several before giving up on
// the engine entirely.
type VariantProfile struct {
	// Name distinguishes variants in strategy names and logs.
	Name string

	// ExtractorArgs is the --extractor-args value; empty omits the flag.
	ExtractorArgs string

	// UserAgent overrides the rotating browser user agent when set.
	UserAgent string
}

// EngineVariants returns the engine client profiles in attempt order.
func EngineVariants() []VariantProfile {
	return []VariantProfile{
		{Name: "web_skip_js", ExtractorArgs: "youtube:player_client=web;player_skip=js,webpage"},
		{Name: "web_android", ExtractorArgs: "youtube:player_client=web,android;player_skip=js"},
		{Name: "ios_client", ExtractorArgs: "youtube:player_client=ios"},
		{Name: "default_ua", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	}
}

// ExtractOptions configure one engine metadata extraction.
type ExtractOptions struct {
	Proxy   string
	Variant VariantProfile
}

// DownloadOptions configure one engine download.
type DownloadOptions struct {
	Proxy     string
	Quality   Quality
	OutputDir string
}

// Engine abstracts the external extraction/download tool so the resolver and
// downloader can be tested without a yt-dlp binary.
type Engine interface {
	Extract(ctx context.Context, rawURL string, opts ExtractOptions) (*RawInfo, error)
	Download(ctx context.Context, rawURL string, opts DownloadOptions) (string, error)
}

// YtdlpEngine runs yt-dlp as a subprocess.
type YtdlpEngine struct {
	// Path is the path to the yt-dlp executable. Defaults to "yt-dlp".
	Path string

	// CookieFile is passed via --cookies when set.
	CookieFile string

	// ExtractTimeout bounds a metadata extraction. Defaults to 2 minutes.
	ExtractTimeout time.Duration

	// DownloadTimeout bounds a full download. Defaults to 10 minutes.
	DownloadTimeout time.Duration
}

// Extract runs the engine in JSON-dump mode and parses the result.
func (e *YtdlpEngine) Extract(ctx context.Context, rawURL string, opts ExtractOptions) (*RawInfo, error) {
	args := []string{
		"-J",
		"--no-playlist",
		"--no-warnings",
		"--geo-bypass",
		"--force-ipv4",
		"--socket-timeout", "15",
	}
	args = e.appendCommonArgs(args, opts.Proxy, opts.Variant)
	args = append(args, rawURL)

	timeout := e.ExtractTimeout
	if timeout == 0 {
		timeout = defaultExtractTimeout
	}
	stdout, err := e.run(ctx, timeout, args)
	if err != nil {
		return nil, err
	}

	var info RawInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("parse engine output: %w", err)
	}
	return &info, nil
}

// Download fetches the media file and returns its final path on disk.
func (e *YtdlpEngine) Download(ctx context.Context, rawURL string, opts DownloadOptions) (string, error) {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--restrict-filenames",
		"--geo-bypass",
		"--force-ipv4",
		"--socket-timeout", "15",
		"--retries", "10",
		"--no-simulate",
		"--print", "after_move:filepath",
		"-o", filepath.Join(opts.OutputDir, "%(id)s.%(ext)s"),
	}
	if opts.Quality == QualityAudio {
		args = append(args, "-f", formatAudio, "-x", "--audio-format", "mp3", "--audio-quality", "192K")
	} else {
		args = append(args, "-f", formatBest)
	}
	args = e.appendCommonArgs(args, opts.Proxy, VariantProfile{})
	args = append(args, rawURL)

	timeout := e.DownloadTimeout
	if timeout == 0 {
		timeout = defaultEngineTimeout
	}
	stdout, err := e.run(ctx, timeout, args)
	if err != nil {
		return "", err
	}

	// The printed filepath is the last non-empty stdout line.
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	path := strings.TrimSpace(lines[len(lines)-1])
	if path == "" {
		return "", errors.New("engine reported no output file")
	}
	return path, nil
}

// appendCommonArgs adds the proxy, cookie, and variant flags shared by
// extraction and download invocations.
func (e *YtdlpEngine) appendCommonArgs(args []string, proxyURL string, variant VariantProfile) []string {
	if proxyURL != "" {
		args = append(args, "--proxy", proxyURL)
	}
	if e.CookieFile != "" {
		args = append(args, "--cookies", e.CookieFile)
	}
	if variant.ExtractorArgs != "" {
		args = append(args, "--extractor-args", variant.ExtractorArgs)
	}
	if variant.UserAgent != "" {
		args = append(args, "--user-agent", variant.UserAgent)
	}
	return args
}

func (e *YtdlpEngine) run(ctx context.Context, timeout time.Duration, args []string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, e.path(), args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() != nil {
			return nil, fmt.Errorf("engine: %w", cmdCtx.Err())
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrEngineNotInstalled
		}
		return nil, fmt.Errorf("engine failed: %w: %s", err, lastLine(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (e *YtdlpEngine) path() string {
	if e.Path != "" {
		return e.Path
	}
	return defaultEnginePath
}

// lastLine returns the final non-empty line of s, for compact error text.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// RawInfo is the engine's JSON metadata dump, already in the canonical field
// vocabulary since the engine defines it.
type RawInfo struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Uploader          string          `json:"uploader"`
	UploaderID        string          `json:"uploader_id"`
	UploaderURL       string          `json:"uploader_url"`
	Channel           string          `json:"channel"`
	ChannelID         string          `json:"channel_id"`
	ChannelURL        string          `json:"channel_url"`
	Duration          json.RawMessage `json:"duration"`
	DurationString    string          `json:"duration_string"`
	ViewCount         json.RawMessage `json:"view_count"`
	LikeCount         json.RawMessage `json:"like_count"`
	CommentCount      json.RawMessage `json:"comment_count"`
	UploadDate        string          `json:"upload_date"`
	ReleaseDate       string          `json:"release_date"`
	Thumbnail         string          `json:"thumbnail"`
	Thumbnails        []Thumbnail     `json:"thumbnails"`
	Tags              []string        `json:"tags"`
	Categories        []string        `json:"categories"`
	AgeLimit          *int            `json:"age_limit"`
	IsLive            bool            `json:"is_live"`
	WasLive           bool            `json:"was_live"`
	LiveStatus        string          `json:"live_status"`
	WebpageURL        string          `json:"webpage_url"`
	OriginalURL       string          `json:"original_url"`
	Availability      string          `json:"availability"`
	PlayableInEmbed   bool            `json:"playable_in_embed"`
	AverageRating     *float64        `json:"average_rating"`
	Chapters          []Chapter       `json:"chapters"`
	Subtitles         map[string]any  `json:"subtitles"`
	AutomaticCaptions map[string]any  `json:"automatic_captions"`
}

// mapRawInfo normalizes an engine dump into the canonical record. Returns
// nil when the dump carries no title.
func mapRawInfo(info *RawInfo, videoID string) *VideoMetadata {
	title := strings.TrimSpace(info.Title)
	if title == "" {
		return nil
	}

	id := info.ID
	if id == "" {
		id = videoID
	}

	duration := coerceSeconds(info.Duration)
	durationString := info.DurationString
	if durationString == "" {
		durationString = secondsString(duration)
	}

	webpage := info.WebpageURL
	if webpage == "" {
		webpage = watchURL(id)
	}
	original := info.OriginalURL
	if original == "" {
		original = webpage
	}

	status := info.LiveStatus
	if status == "" {
		status = liveStatus(info.IsLive)
	}

	return &VideoMetadata{
		ID:                id,
		Title:             title,
		Description:       info.Description,
		Uploader:          info.Uploader,
		UploaderID:        info.UploaderID,
		UploaderURL:       info.UploaderURL,
		Channel:           info.Channel,
		ChannelID:         info.ChannelID,
		ChannelURL:        info.ChannelURL,
		Duration:          duration,
		DurationString:    durationString,
		ViewCount:         coerceSeconds(info.ViewCount),
		LikeCount:         coerceSeconds(info.LikeCount),
		CommentCount:      coerceSeconds(info.CommentCount),
		UploadDate:        normalizeDate(info.UploadDate),
		ReleaseDate:       normalizeDate(info.ReleaseDate),
		Thumbnail:         info.Thumbnail,
		Thumbnails:        info.Thumbnails,
		Tags:              info.Tags,
		Categories:        info.Categories,
		AgeLimit:          info.AgeLimit,
		IsLive:            info.IsLive,
		WasLive:           info.WasLive,
		LiveStatus:        status,
		WebpageURL:        webpage,
		OriginalURL:       original,
		Availability:      info.Availability,
		PlayableInEmbed:   info.PlayableInEmbed,
		AverageRating:     info.AverageRating,
		Chapters:          info.Chapters,
		Subtitles:         mapKeys(info.Subtitles),
		AutomaticCaptions: mapKeys(info.AutomaticCaptions),
	}
}

// mapKeys returns the sorted language-key list of a subtitle map; the track
// payloads themselves are not carried.
func mapKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EngineStrategy adapts one engine variant into the extraction chain.
type EngineStrategy struct {
	Engine  Engine
	Variant VariantProfile
}

// Name implements Strategy.
func (s *EngineStrategy) Name() string { return "yt_dlp_" + s.Variant.Name }

// Proxied implements Strategy.
func (s *EngineStrategy) Proxied() bool { return true }

// Extract implements Strategy.
func (s *EngineStrategy) Extract(ctx context.Context, req Request, via proxy.Candidate) (*VideoMetadata, error) {
	info, err := s.Engine.Extract(ctx, req.URL, ExtractOptions{
		Proxy:   via.URL(),
		Variant: s.Variant,
	})
	if err != nil {
		return nil, err
	}

	meta := mapRawInfo(info, req.VideoID)
	if meta == nil {
		return nil, ErrNoTitle
	}
	return meta, nil
}
