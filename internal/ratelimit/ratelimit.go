// Package ratelimit throttles report requests per client.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jekabolt/grbpwr-analytics/internal/observability"
)

// Config sets how many requests a client may make per window. A zero Max
// disables limiting.
type Config struct {
	Window time.Duration `mapstructure:"window"`
	Max    int           `mapstructure:"max"`
}

// Limiter is a fixed window request counter keyed by client.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	window   time.Duration
	max      int
	now      func() time.Time
}

type counter struct {
	count     int
	expiresAt time.Time
}

// NewLimiter returns a limiter allowing max requests per key per window.
func NewLimiter(window time.Duration, max int) *Limiter {
	return &Limiter{
		counters: make(map[string]*counter),
		window:   window,
		max:      max,
		now:      time.Now,
	}
}

// Allow counts a request for key and reports whether it is within the limit,
// along with the time the current window resets.
func (l *Limiter) Allow(key string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &counter{expiresAt: now.Add(l.window)}
		l.counters[key] = c
	}
	if c.count >= l.max {
		return false, c.expiresAt
	}
	c.count++
	return true, c.expiresAt
}

// Remaining returns how many requests key has left in its window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || l.now().After(c.expiresAt) {
		return l.max
	}
	return max(l.max-c.count, 0)
}

// Run drops expired counters every window until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, c := range l.counters {
		if now.After(c.expiresAt) {
			delete(l.counters, key)
		}
	}
}

// Middleware rejects requests over the limit with 429, keyed by the
// request's remote IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		ok, reset := l.Allow(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(l.Remaining(key)))
		if !ok {
			observability.RateLimited.Inc()
			retry := int(reset.Sub(l.now()).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
