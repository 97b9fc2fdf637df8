// Package ratelimit paces requests to remote archive nodes using a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// Waits longer than this are logged, at most once per noticeInterval.
	noticeThreshold = 2 * time.Second
	noticeInterval  = 10 * time.Second
)

// RateLimiter is a token bucket holding up to burst tokens, refilled at
// rate tokens per second. Each request spends one token.
type RateLimiter struct {
	name  string
	rate  float64
	burst float64

	mu         sync.Mutex
	tokens     float64
	last       time.Time
	lastNotice time.Time
}

// NewRateLimiter returns a limiter whose bucket starts full. burst is at
// least one.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{rate: rate, burst: burst, tokens: burst, last: time.Now()}
}

// reserve takes a token if one is available; otherwise it reports how long
// until the next one.
func (rl *RateLimiter) reserve(now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = rl.level(now)
	rl.last = now
	if rl.tokens >= 1 {
		rl.tokens--
		return true, 0
	}
	if rl.rate <= 0 {
		return false, time.Hour
	}
	return false, time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
}

// level is the bucket content at now. Callers hold mu.
func (rl *RateLimiter) level(now time.Time) float64 {
	tokens := rl.tokens + now.Sub(rl.last).Seconds()*rl.rate
	if tokens > rl.burst {
		return rl.burst
	}
	return tokens
}

// Wait blocks until a token is taken or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, wait := rl.reserve(time.Now())
		if ok {
			return nil
		}
		if first {
			rl.notice(wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (rl *RateLimiter) notice(wait time.Duration) {
	if wait < noticeThreshold {
		return
	}
	rl.mu.Lock()
	due := time.Since(rl.lastNotice) > noticeInterval
	if due {
		rl.lastNotice = time.Now()
	}
	rl.mu.Unlock()

	if due {
		log.Info().Str("server", rl.name).Dur("wait", wait).Msg("Pacing requests to server")
	}
}

// TryAcquire takes a token without blocking and reports whether it got one.
func (rl *RateLimiter) TryAcquire() bool {
	ok, _ := rl.reserve(time.Now())
	return ok
}

// Tokens returns the current bucket content.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.level(time.Now())
}
