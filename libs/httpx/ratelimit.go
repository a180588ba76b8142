package httpx

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a per-client fixed-window limiter kept in process memory.
// Good enough for a single instance; multi-instance deployments should use
// RedisRateLimiter so clients cannot multiply their budget across replicas.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*clientWindow
}

type clientWindow struct {
	startedAt time.Time
	count     int
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*clientWindow),
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(clientKey(r), time.Now()) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.windows[key]
	if !ok || now.Sub(cw.startedAt) >= rl.window {
		rl.windows[key] = &clientWindow{startedAt: now, count: 1}
		if len(rl.windows) > 10000 {
			rl.evictExpired(now)
		}
		return true
	}
	if cw.count >= rl.limit {
		return false
	}
	cw.count++
	return true
}

// evictExpired drops windows that have already rolled over. Called under
// rl.mu when the map grows past its soft cap.
func (rl *RateLimiter) evictExpired(now time.Time) {
	for key, cw := range rl.windows {
		if now.Sub(cw.startedAt) >= rl.window {
			delete(rl.windows, key)
		}
	}
}

// clientKey identifies the caller: the first X-Forwarded-For hop when
// behind a proxy, otherwise the peer address without its port.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
