package limiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestAllowPerKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx, rate.Every(time.Hour), 2)

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should pass")
	}
	if l.Allow("a") {
		t.Fatal("third event should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("keys must not share a bucket")
	}
}

func TestEvictIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx, rate.Every(time.Second), 1)
	l.Allow("busy")
	l.GetLimiter("idle")

	removed, remaining := l.evictIdle(time.Now())
	if removed != 1 || remaining != 1 {
		t.Fatalf("evictIdle = %d removed, %d remaining; want 1, 1", removed, remaining)
	}

	removed, _ = l.evictIdle(time.Now().Add(time.Minute))
	if removed != 1 || l.Len() != 0 {
		t.Fatalf("refilled bucket not evicted: removed %d, len %d", removed, l.Len())
	}
}

func TestMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx, rate.Every(time.Hour), 1)
	h := l.Middleware(func(r *http.Request) string { return r.Header.Get("X-User") })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	do := func(user string) int {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	if code := do("alice"); code != http.StatusNoContent {
		t.Fatalf("first = %d", code)
	}
	if code := do("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("second = %d, want 429", code)
	}
	if code := do("bob"); code != http.StatusNoContent {
		t.Fatalf("other key = %d", code)
	}
}

func TestMiddlewareEmptyKeyUsesClientIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx, rate.Every(time.Hour), 1)
	h := l.Middleware(func(*http.Request) string { return "" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	do := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	if code := do("10.0.0.1:1000"); code != http.StatusNoContent {
		t.Fatalf("first = %d", code)
	}
	if code := do("10.0.0.1:2000"); code != http.StatusTooManyRequests {
		t.Fatalf("same host = %d, want 429", code)
	}
	if code := do("10.0.0.2:1000"); code != http.StatusNoContent {
		t.Fatalf("other host = %d", code)
	}
	if l.Len() != 2 {
		t.Fatalf("tracked keys = %d, want 2", l.Len())
	}
}
