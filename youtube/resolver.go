package youtube

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	httpx "ytfetch/http"
	"ytfetch/proxy"
)

// Request identifies one video to resolve.
type Request struct {
	URL     string
	VideoID string
}

// Strategy is one independent extraction source. Implementations must treat
// every failure as soft: return an error and let the resolver move on.
type Strategy interface {
	// Name identifies the strategy in provenance and logs.
	Name() string

	// Proxied reports whether the strategy should be retried across proxy
	// candidates. Non-proxied strategies get a single direct attempt.
	Proxied() bool

	Extract(ctx context.Context, req Request, via proxy.Candidate) (*VideoMetadata, error)
}

// CandidateBuilder supplies the proxy candidates for one resolution.
type CandidateBuilder interface {
	BuildCandidates(ctx context.Context, includeDirect bool) []proxy.Candidate
}

// StrategySource produces the strategy list for one resolution.
type StrategySource interface {
	Strategies() []Strategy
}

// Chain assembles the ordered strategy list. Mirror instances are shuffled
// fresh per resolution so load and blocking risk spread across the pools.
type Chain struct {
	Engine             Engine
	Client             *httpx.Client
	InvidiousInstances []string
	PipedInstances     []string
	InvidiousVerifyTLS bool

	// DataAPI is appended as the terminal strategy when non-nil.
	DataAPI *DataAPIStrategy
}

// NewChain builds a chain with the default mirror pools.
func NewChain(engine Engine, client *httpx.Client) *Chain {
	return &Chain{
		Engine:             engine,
		Client:             client,
		InvidiousInstances: DefaultInvidiousInstances,
		PipedInstances:     DefaultPipedInstances,
		InvidiousVerifyTLS: true,
	}
}

// Strategies returns a fresh ordered strategy list: engine variants, the
// internal player API, the watch-page scrape, then the mirror pools.
func (c *Chain) Strategies() []Strategy {
	var out []Strategy

	for _, variant := range EngineVariants() {
		out = append(out, &EngineStrategy{Engine: c.Engine, Variant: variant})
	}
	out = append(out, &PlayerAPIStrategy{Client: c.Client})
	out = append(out, &WatchPageStrategy{Client: c.Client})

	for _, instance := range shuffled(c.InvidiousInstances) {
		out = append(out, &InvidiousStrategy{
			Client:    c.Client,
			Instance:  instance,
			VerifyTLS: c.InvidiousVerifyTLS,
		})
	}
	for _, instance := range shuffled(c.PipedInstances) {
		out = append(out, &PipedStrategy{Client: c.Client, Instance: instance})
	}

	if c.DataAPI != nil {
		out = append(out, c.DataAPI)
	}
	return out
}

func shuffled(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Resolver walks the extraction chain across proxy candidates until one
// attempt yields a titled record.
type Resolver struct {
	Proxies CandidateBuilder
	Chain   StrategySource

	// Timeout is the wall-clock budget for a whole resolution, spanning
	// every (strategy, proxy) attempt. Zero disables the budget.
	Timeout time.Duration

	Logger *slog.Logger
}

// Resolve turns a YouTube URL into normalized metadata. Malformed input
// fails with *ValidationError before any network traffic; a fully exhausted
// chain fails with *ExhaustedError.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*VideoMetadata, error) {
	if !IsYouTubeURL(rawURL) {
		return nil, &ValidationError{Field: "url", Reason: "not a YouTube URL"}
	}
	videoID := ExtractVideoID(rawURL)
	if videoID == "" {
		return nil, &ValidationError{Field: "url", Reason: "no video id in URL"}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	log := r.logger().With("video_id", videoID)
	req := Request{URL: rawURL, VideoID: videoID}
	candidates := r.Proxies.BuildCandidates(ctx, true)

	var attempts []AttemptError
	for _, strat := range r.Chain.Strategies() {
		vias := candidates
		if !strat.Proxied() {
			vias = []proxy.Candidate{proxy.Direct()}
		}

		for _, via := range vias {
			if err := ctx.Err(); err != nil {
				attempts = append(attempts, AttemptError{Strategy: strat.Name(), Proxy: via.String(), Err: err})
				log.Warn("resolution budget exhausted", "attempts", len(attempts))
				return nil, &ExhaustedError{URL: rawURL, Attempts: attempts}
			}

			meta, err := strat.Extract(ctx, req, via)
			if err == nil && strings.TrimSpace(meta.Title) == "" {
				err = ErrNoTitle
			}
			if err != nil {
				attempts = append(attempts, AttemptError{Strategy: strat.Name(), Proxy: via.String(), Err: err})
				log.Debug("extraction attempt failed",
					"strategy", strat.Name(), "proxy", via.String(), "error", err)
				continue
			}

			meta.strategy = strat.Name()
			meta.proxyUsed = via
			meta.OriginalURL = rawURL
			log.Info("metadata resolved",
				"strategy", strat.Name(), "proxy", via.String(), "attempts", len(attempts)+1)
			return meta, nil
		}
	}

	log.Warn("extraction chain exhausted", "attempts", len(attempts))
	return nil, &ExhaustedError{URL: rawURL, Attempts: attempts}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
