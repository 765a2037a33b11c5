// Package proxy builds the ordered proxy candidate list used by the
// extraction chain.
//
// Candidate order is significant: a forced operator override comes first,
// then the static configured pool, then the direct connection (when
// allowed), then at most one opportunistically fetched free proxy. The list
// is rebuilt per extraction attempt and never persisted.
package proxy

import (
	"bufio"
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	httpx "ytfetch/http"
)

// Candidate is a single proxy candidate: either a proxy URL or the direct
// connection sentinel.
type Candidate struct {
	url string
}

// Direct returns the direct-connection candidate.
func Direct() Candidate {
	return Candidate{}
}

// New returns a candidate for the given proxy URL, normalizing a missing
// scheme to http.
func New(raw string) Candidate {
	return Candidate{url: NormalizeURL(raw)}
}

// IsDirect reports whether this candidate means "no proxy".
func (c Candidate) IsDirect() bool {
	return c.url == ""
}

// URL returns the proxy URL, or empty for the direct candidate.
func (c Candidate) URL() string {
	return c.url
}

// String returns the proxy URL or "DIRECT".
func (c Candidate) String() string {
	if c.IsDirect() {
		return "DIRECT"
	}
	return c.url
}

// NormalizeURL ensures a proxy entry carries a scheme so HTTP transports
// understand it. Empty input stays empty.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		return "http://" + raw
	}
	return raw
}

// DefaultSources are public proxy-list endpoints tried for the free-proxy
// fallback. Some might work.
var DefaultSources = []string{
	"https://api.proxyscrape.com/v2/?request=displayproxies&protocol=https&timeout=10000&country=all&ssl=all&anonymity=all",
	"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt",
	"https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt",
	"https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt",
}

const (
	defaultProbeURL    = "https://httpbin.org/ip"
	sourceFetchTimeout = 10 * time.Second
	probeTimeout       = 5 * time.Second
	maxProbesPerSource = 3
)

// Manager assembles proxy candidates from process-wide configuration.
// Configuration fields are read-only after construction.
type Manager struct {
	// Forced is the operator proxy override, always first when set.
	Forced string
	// Pool is the static configured proxy pool.
	Pool []string
	// AllowDirect permits the direct-connection candidate.
	AllowDirect bool
	// EnableFreeFallback enables fetching one free proxy from Sources.
	EnableFreeFallback bool
	// Sources overrides DefaultSources when non-empty.
	Sources []string
	// ProbeURL overrides the default liveness probe target.
	ProbeURL string
	// Client is the outbound HTTP client used for list fetches and probes.
	Client *httpx.Client
	// Logger is optional; slog.Default() is used when nil.
	Logger *slog.Logger
}

// BuildCandidates assembles the ordered, deduplicated candidate list.
// It never returns an empty list: with nothing configured and direct
// disallowed it still falls back to a single direct entry.
func (m *Manager) BuildCandidates(ctx context.Context, includeDirect bool) []Candidate {
	var candidates []Candidate

	if m.Forced != "" {
		candidates = append(candidates, New(m.Forced))
	}
	for _, entry := range m.Pool {
		if strings.TrimSpace(entry) != "" {
			candidates = append(candidates, New(entry))
		}
	}
	if includeDirect && m.AllowDirect {
		candidates = append(candidates, Direct())
	}
	if m.EnableFreeFallback {
		if free, ok := m.freeProxy(ctx); ok {
			candidates = append(candidates, free)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	filtered := candidates[:0]
	for _, c := range candidates {
		key := c.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		filtered = append(filtered, c)
	}

	if len(filtered) == 0 {
		return []Candidate{Direct()}
	}
	return filtered
}

// freeProxy fetches one proxy from the configured list sources. Each source
// is tried in order; up to three random entries are liveness-probed, and if
// none responds the first source with entries still contributes a random
// unverified proxy. All network failures are swallowed: a missing free proxy
// is not an error, only a missing candidate.
func (m *Manager) freeProxy(ctx context.Context) (Candidate, bool) {
	for _, source := range m.sources() {
		entries, err := m.fetchList(ctx, source)
		if err != nil {
			m.logger().Debug("free proxy source failed", "source", source, "error", err)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		scheme := "http"
		if strings.Contains(source, "https") {
			scheme = "https"
		}

		probes := maxProbesPerSource
		if len(entries) < probes {
			probes = len(entries)
		}
		for _, idx := range rand.Perm(len(entries))[:probes] {
			proxyURL := scheme + "://" + entries[idx]
			if m.probe(ctx, proxyURL) {
				m.logger().Info("free proxy verified", "proxy", proxyURL)
				return Candidate{url: proxyURL}, true
			}
		}

		// None responded; hand back a random entry unverified.
		proxyURL := scheme + "://" + entries[rand.Intn(len(entries))]
		m.logger().Debug("returning unverified free proxy", "proxy", proxyURL)
		return Candidate{url: proxyURL}, true
	}
	return Candidate{}, false
}

func (m *Manager) fetchList(ctx context.Context, source string) ([]string, error) {
	resp, err := m.Client.Get(ctx, source, httpx.RequestOptions{Timeout: sourceFetchTimeout})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpx.HTTPError{URL: source, StatusCode: resp.StatusCode}
	}

	var entries []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries, scanner.Err()
}

func (m *Manager) probe(ctx context.Context, proxyURL string) bool {
	target := m.ProbeURL
	if target == "" {
		target = defaultProbeURL
	}
	resp, err := m.Client.Get(ctx, target, httpx.RequestOptions{
		Proxy:   proxyURL,
		Timeout: probeTimeout,
	})
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (m *Manager) sources() []string {
	if len(m.Sources) > 0 {
		return m.Sources
	}
	return DefaultSources
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
