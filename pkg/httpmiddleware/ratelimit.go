package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig configures a sliding-window request limiter.
type RateLimitConfig struct {
	// Limit is the number of requests a key may make per Window.
	Limit int
	// Window is the length of one counting window.
	Window time.Duration
	// Key identifies the caller. Defaults to the client IP.
	Key func(r *http.Request) string
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// window holds the counts of the current and previous fixed windows of a key.
type window struct {
	start time.Time
	prev  int
	curr  int
}

// Limiter approximates a sliding window by weighting the previous fixed
// window by how much of it still overlaps the sliding one.
type Limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter creates a limiter. Non-positive limits fall back to 100 per minute.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	return &Limiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow records one request for key if it fits in the limit.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()
	start := now.Truncate(l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{start: start}
		l.windows[key] = w
	}
	if !w.start.Equal(start) {
		if start.Sub(w.start) == l.cfg.Window {
			w.prev = w.curr
		} else {
			w.prev = 0
		}
		w.curr = 0
		w.start = start
	}

	overlap := 1 - float64(now.Sub(start))/float64(l.cfg.Window)
	used := float64(w.prev)*overlap + float64(w.curr)
	reset := start.Add(l.cfg.Window)

	if used >= float64(l.cfg.Limit) {
		return Decision{Reset: reset}
	}
	w.curr++
	remaining := int(math.Floor(float64(l.cfg.Limit) - used - 1))
	return Decision{
		Allowed:   true,
		Remaining: max(remaining, 0),
		Reset:     reset,
	}
}

// Prune forgets keys idle for more than two windows.
func (l *Limiter) Prune() {
	cutoff := l.now().Add(-2 * l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, key)
		}
	}
}

// Run prunes idle keys once per window until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// RateLimit rejects requests over the limit with 429 and reports the quota in
// X-RateLimit-* headers.
func RateLimit(l *Limiter) Middleware {
	limit := strconv.Itoa(l.cfg.Limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(l.cfg.Key(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

			if !d.Allowed {
				retry := int(math.Ceil(time.Until(d.Reset).Seconds()))
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the remote address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
