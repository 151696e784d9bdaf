package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// minIdle is the shortest time a bucket is kept after its last request.
	minIdle = time.Minute
	// rateLimitSweep is how often the server evicts idle buckets.
	rateLimitSweep = time.Minute
)

// RateLimiter hands out one token bucket per caller identity. Buckets idle
// long enough to have refilled completely are evicted by StartCleanup.
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns a limiter allowing rps requests per second per
// identity with the given burst. It returns nil when rps is not positive.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	idle := time.Duration(float64(burst) / rps * float64(time.Second))
	if idle < minIdle {
		idle = minIdle
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*bucket),
	}
}

func (l *RateLimiter) bucket(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Cleanup evicts buckets not used since now minus the idle window. An
// evicted bucket was full, so the caller's next request sees the same budget.
func (l *RateLimiter) Cleanup(now time.Time) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until Stop is called.
func (l *RateLimiter) StartCleanup(interval time.Duration) {
	if l == nil || interval <= 0 {
		return
	}
	l.mu.Lock()
	if l.stop != nil {
		l.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	l.stop = stop
	l.mu.Unlock()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				l.Cleanup(now)
			case <-stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop started by StartCleanup.
func (l *RateLimiter) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		close(l.stop)
		l.stop = nil
	}
}

func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware rejects requests over the caller's budget with 429 and writes
// x-ratelimit-* headers on every response. Anonymous callers share a bucket
// per remote address. A nil limiter passes everything through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := Identity(r.Context())
		if key == "" {
			key = "addr:" + r.RemoteAddr
		}
		now := time.Now()
		b := l.bucket(key, now)
		allowed := b.AllowN(now, 1)

		h := w.Header()
		h.Set("x-ratelimit-limit-requests", strconv.Itoa(l.burst))
		remaining := int(b.TokensAt(now))
		if remaining < 0 {
			remaining = 0
		}
		h.Set("x-ratelimit-remaining-requests", strconv.Itoa(remaining))

		if !allowed {
			retry := time.Duration(float64(time.Second) / float64(l.limit))
			h.Set("Retry-After", strconv.Itoa(int(retry.Seconds()+0.999)))
			writeEnvelope(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
