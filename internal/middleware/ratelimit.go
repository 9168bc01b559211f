package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"codementor-backend/internal/metrics"
	"codementor-backend/internal/sanitize"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// KeyByUser charges authenticated requests to the user and everything else
// to the client address.
func KeyByUser(r *http.Request) string {
	if id := GetUserID(r.Context()); id > 0 {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return KeyByIP(r)
}

// KeyByIP charges requests to the peer address. Forwarding headers only
// count once RealIP has rewritten RemoteAddr for a trusted proxy.
func KeyByIP(r *http.Request) string {
	return "ip:" + sanitize.RemoteHost(r)
}

// RateLimiter is a token bucket per key allowing limit requests per window
// with bursts up to limit. A limit of zero or less disables it.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	keyFunc  KeyFunc
	metrics  *metrics.Metrics
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(limit int, window time.Duration, keyFunc KeyFunc, m *metrics.Metrics) *RateLimiter {
	if keyFunc == nil {
		keyFunc = KeyByIP
	}
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		keyFunc:  keyFunc,
		metrics:  m,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	if rl.Enabled() {
		go rl.cleanup()
	}
	return rl
}

func (rl *RateLimiter) Enabled() bool {
	return rl.limit > 0 && rl.window > 0
}

// Allow reports whether one more request for key fits in its bucket.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}

	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.limit)), rl.limit)}
		rl.visitors[key] = v
	}
	now := rl.now()
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.keyFunc(r)) {
			rl.metrics.RateLimited()
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.retryAfter().Seconds())))
			WriteError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) retryAfter() time.Duration {
	d := rl.window / time.Duration(rl.limit)
	if d < time.Second {
		return time.Second
	}
	return d
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.window {
			delete(rl.visitors, key)
		}
	}
}
