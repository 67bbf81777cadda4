package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pingup/internal/pkg/errs"
)

func bind(contentType, body string) (string, *errs.CustomError) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return BindTarget(httptest.NewRecorder(), r)
}

func TestBindTarget(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		code        int
	}{
		{"ok", "application/json", `{"id":" u2 "}`, 0},
		{"charset", "application/json; charset=utf-8", `{"id":"u2"}`, 0},
		{"wrong type", "text/plain", `{"id":"u2"}`, errs.ErrUnsupportedMediaType},
		{"syntax", "application/json", `{"id":`, errs.ErrInvalidJSONFormat},
		{"unknown field", "application/json", `{"id":"u2","x":1}`, errs.ErrInvalidJSONFormat},
		{"trailing", "application/json", `{"id":"u2"}{"id":"u3"}`, errs.ErrExtraContentInBody},
		{"empty id", "application/json", `{"id":"  "}`, errs.ErrInvalidParams},
		{"too large", "application/json", `{"id":"` + strings.Repeat("a", int(MaxJSONBodySize)) + `"}`, errs.ErrRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := bind(tt.contentType, tt.body)
			if tt.code == 0 {
				if err != nil || id != "u2" {
					t.Fatalf("BindTarget = %q, %v", id, err)
				}
				return
			}
			if err == nil || err.Code != tt.code {
				t.Fatalf("BindTarget err = %v, want code %d", err, tt.code)
			}
		})
	}
}
