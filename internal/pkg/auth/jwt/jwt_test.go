package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1", Username: "alice", FullName: "Alice"}, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	p, err := ParseToken(token, secret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if p.ID != "u1" || p.Username != "alice" || p.Issuer != TokenIssuer {
		t.Fatalf("payload = %+v", p)
	}

	if _, err := ParseToken(token, "other-secret"); err == nil {
		t.Fatal("token verified with the wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1"}, secret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseToken(token, secret); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestGenerateRequiresID(t *testing.T) {
	if _, err := GenerateToken(&Payload{Username: "x"}, secret, time.Hour); err == nil {
		t.Fatal("token without id was signed")
	}
}

func TestMiddlewareSources(t *testing.T) {
	token, _ := GenerateToken(&Payload{ID: "u1"}, secret, time.Hour)

	var seen string
	h := IdentityExtractorMiddleware(secret)(RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r)
	})))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = TokenQueryParam + "=" + token }, http.StatusOK},
		{"anonymous", func(r *http.Request) {}, http.StatusUnauthorized},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token "+token) }, http.StatusUnauthorized},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(r)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status == http.StatusOK && seen != "u1" {
				t.Fatalf("user id = %q", seen)
			}
		})
	}
}
