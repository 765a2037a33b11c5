package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	httpx "ytfetch/http"
	"ytfetch/proxy"
)

const watchPageTimeout = 20 * time.Second

// The player response is embedded as a single JS assignment in the watch
// page. Non-greedy so trailing script content is not swallowed.
var playerResponseRe = regexp.MustCompile(`(?s)var ytInitialPlayerResponse\s*=\s*(\{.+?\});`)

var errNoPlayerResponse = errors.New("ytInitialPlayerResponse not found in watch page")

// WatchPageStrategy scrapes the embedded player response out of the plain
// watch page HTML. Last resort against YouTube itself before falling over to
// mirrors.
type WatchPageStrategy struct {
	Client *httpx.Client

	// BaseURL overrides the watch page origin in tests.
	BaseURL string
}

// Name implements Strategy.
func (s *WatchPageStrategy) Name() string { return "watch_html_scrape" }

// Proxied implements Strategy.
func (s *WatchPageStrategy) Proxied() bool { return true }

// Extract implements Strategy.
func (s *WatchPageStrategy) Extract(ctx context.Context, req Request, via proxy.Candidate) (*VideoMetadata, error) {
	params := url.Values{
		"v":            {req.VideoID},
		"hl":           {"en"},
		"bpctr":        {strconv.FormatInt(time.Now().Unix(), 10)},
		"has_verified": {"1"},
	}
	base := s.BaseURL
	if base == "" {
		base = "https://www.youtube.com"
	}
	pageURL := base + "/watch?" + params.Encode()

	opts := httpx.RequestOptions{
		Proxy:   via.URL(),
		Timeout: watchPageTimeout,
		Headers: map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
		},
	}
	resp, err := s.Client.Get(ctx, pageURL, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpx.HTTPError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read watch page: %w", err)
	}

	match := playerResponseRe.FindSubmatch(page)
	if match == nil {
		return nil, errNoPlayerResponse
	}

	var pr playerResponse
	if err := json.Unmarshal(match[1], &pr); err != nil {
		return nil, fmt.Errorf("decode embedded player response: %w", err)
	}

	meta := mapPlayerResponse(&pr, req.VideoID)
	if meta == nil {
		return nil, ErrNoTitle
	}
	return meta, nil
}
