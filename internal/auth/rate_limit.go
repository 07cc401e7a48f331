package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"favourites-api/internal/observability"
)

// RateLimiter caps credential requests per client IP inside a sliding window.
// State is per process; each serverless instance counts on its own.
type RateLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitByIP   map[string][]time.Time
	maxMemory int
	now       func() time.Time
}

func NewRateLimiter(maxHits int, window time.Duration) *RateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RateLimiter{
		maxHits:   maxHits,
		window:    window,
		hitByIP:   make(map[string][]time.Time),
		maxMemory: 5000,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(observability.ClientIP(r), l.now())
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "too many attempts, try again later"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow records a hit for key at now unless the key already has maxHits hits
// inside the window, in which case it reports how long until the oldest expires.
func (l *RateLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := pruneBefore(l.hitByIP[key], cutoff)
	if len(recent) >= l.maxHits {
		l.hitByIP[key] = recent
		return false, max(recent[0].Sub(cutoff), time.Second)
	}
	l.hitByIP[key] = append(recent, now)

	if len(l.hitByIP) > l.maxMemory {
		l.evictIdle(cutoff)
	}
	return true, 0
}

// pruneBefore drops the leading hits at or before cutoff. hits is oldest first.
func pruneBefore(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func (l *RateLimiter) evictIdle(cutoff time.Time) {
	for key, hits := range l.hitByIP {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hitByIP, key)
		}
	}
}
