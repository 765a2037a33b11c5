package http

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter manages per-host request rate limiting using a token bucket.
// Mirror instances are independent services, so each host gets its own
// bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   RateLimiterConfig
}

// RateLimiterConfig defines rate limiting behavior.
type RateLimiterConfig struct {
	// DefaultRPS is the requests-per-second budget per host (0 = unlimited).
	DefaultRPS float64
	// Burst is the token bucket burst size.
	Burst int
	// CustomRates maps host suffixes to RPS values overriding the default.
	CustomRates map[string]float64
}

// DefaultRateLimiterConfig returns conservative per-host defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultRPS: 2.5,
		Burst:      3,
		CustomRates: map[string]float64{
			// The watch page and youtubei endpoint share YouTube's own
			// anti-abuse budget; stay extra conservative there.
			"youtube.com": 1.5,
		},
	}
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
	}
}

// Wait blocks until a token is available for the host or the context ends.
func (r *RateLimiter) Wait(ctx context.Context, host string) error {
	limiter := r.limiterFor(host)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (r *RateLimiter) limiterFor(host string) *rate.Limiter {
	rps := r.config.DefaultRPS
	for suffix, custom := range r.config.CustomRates {
		if strings.HasSuffix(host, suffix) {
			rps = custom
			break
		}
	}
	if rps <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.limiters[host]; ok {
		return limiter
	}

	burst := r.config.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	r.limiters[host] = limiter
	return limiter
}
