package ratelimit

import (
	"context"
	"math"
	"sync"
)

// Registry hands out one limiter per remote endpoint so that every request to
// the same server draws from the same bucket, whichever run issued it.
//
// A Registry with a zero rate never blocks.
type Registry struct {
	rate  float64
	burst float64

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewRegistry returns a registry allowing ratePerSecond requests per endpoint.
// The burst capacity is one second's worth of requests, at least one.
func NewRegistry(ratePerSecond float64) *Registry {
	return &Registry{
		rate:     ratePerSecond,
		burst:    math.Max(1, math.Ceil(ratePerSecond)),
		limiters: make(map[string]*RateLimiter),
	}
}

// Enabled reports whether requests are paced at all.
func (r *Registry) Enabled() bool {
	return r != nil && r.rate > 0
}

// Limiter returns the limiter for endpoint, creating it on first use.
// It returns nil when pacing is disabled.
func (r *Registry) Limiter(endpoint string) *RateLimiter {
	if !r.Enabled() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rl, ok := r.limiters[endpoint]
	if !ok {
		rl = NewRateLimiter(r.rate, r.burst)
		rl.name = endpoint
		r.limiters[endpoint] = rl
	}
	return rl
}

// Wait blocks until a request to endpoint may be sent.
func (r *Registry) Wait(ctx context.Context, endpoint string) error {
	rl := r.Limiter(endpoint)
	if rl == nil {
		return ctx.Err()
	}
	return rl.Wait(ctx)
}
