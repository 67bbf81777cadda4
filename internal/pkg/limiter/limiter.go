/*
Package limiter provides keyed rate limiting on top of the token bucket in golang.org/x/time/rate.

A limiter is kept per key (client IP or user id). A background goroutine evicts keys whose
bucket has refilled, so idle clients do not accumulate.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"pingup/internal/pkg/errs"
	"pingup/internal/pkg/logx"
	"pingup/internal/pkg/resp"

	"golang.org/x/time/rate"
)

// KeyFunc extracts the rate limiting key from a request. An empty key falls back to the client IP.
type KeyFunc func(r *http.Request) string

// cleanupInterval is how often idle limiters are evicted.
const cleanupInterval = 3 * time.Minute

// KeyedRateLimiter holds one token bucket per key.
type KeyedRateLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter
	r      rate.Limit
	b      int
}

// New creates a KeyedRateLimiter with rate r and burst b.
// The cleanup goroutine stops when ctx is cancelled.
func New(ctx context.Context, r rate.Limit, b int) *KeyedRateLimiter {
	l := &KeyedRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
	}

	go l.cleanUp(ctx)

	return l
}

// GetLimiter returns the limiter for key, creating it with double-checked locking.
func (l *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limits[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		limiter, exists = l.limits[key]
		if !exists {
			limiter = rate.NewLimiter(l.r, l.b)
			l.limits[key] = limiter
		}
		l.mu.Unlock()
	}

	return limiter
}

// Allow reports whether one more event for key is allowed now.
func (l *KeyedRateLimiter) Allow(key string) bool {
	return l.GetLimiter(key).Allow()
}

// Len returns the number of tracked keys.
func (l *KeyedRateLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limits)
}

func (l *KeyedRateLimiter) cleanUp(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, remaining := l.evictIdle(now)
			logx.Debug("Rate limiter cleanup finished", "removed", removed, "remaining", remaining)
		}
	}
}

// evictIdle drops every limiter whose bucket is full at now.
func (l *KeyedRateLimiter) evictIdle(now time.Time) (removed, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, limiter := range l.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(l.limits, key)
			removed++
		}
	}
	return removed, len(l.limits)
}

// ClientIP returns the request's remote host, used as the default key.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware rejects requests over the limit with ErrRateLimitExceeded (HTTP 429).
// Requests whose keyFn returns an empty key are limited by ClientIP.
func (l *KeyedRateLimiter) Middleware(keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if keyFn != nil {
				key = keyFn(r)
			}
			if key == "" {
				key = ClientIP(r)
			}

			if !l.Allow(key) {
				resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
