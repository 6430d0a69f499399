package gateway

import (
	"sync"
	"time"
)

// maxRateKeys bounds the limiter map so a churn of client addresses
// cannot grow memory without bound.
const maxRateKeys = 5000

// rateLimiter enforces a per-key sliding window.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string][]time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
	}
}

// Allow records one hit for key when the window has room. On denial it
// returns the whole seconds until the oldest hit expires, at least 1.
func (rl *rateLimiter) Allow(key string) (ok bool, retryAfterS int) {
	now := time.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	hits := rl.buckets[key]
	i := 0
	for i < len(hits) && hits[i].Before(cutoff) {
		i++
	}
	hits = hits[i:]

	if len(hits) >= rl.limit {
		retry := int(rl.window.Seconds() - now.Sub(hits[0]).Seconds())
		if retry < 1 {
			retry = 1
		}
		rl.buckets[key] = hits
		return false, retry
	}

	if _, known := rl.buckets[key]; !known && len(rl.buckets) >= maxRateKeys {
		rl.evictIdle(cutoff)
	}
	rl.buckets[key] = append(hits, now)
	return true, 0
}

// evictIdle drops keys whose hits all expired; if none qualify, one
// arbitrary key goes so the bound holds.
func (rl *rateLimiter) evictIdle(cutoff time.Time) {
	for k, hits := range rl.buckets {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(rl.buckets, k)
		}
	}
	if len(rl.buckets) >= maxRateKeys {
		for k := range rl.buckets {
			delete(rl.buckets, k)
			break
		}
	}
}
