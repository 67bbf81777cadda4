/*
Package req provides helper functions for HTTP request parsing and data binding.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"pingup/internal/pkg/errs"
)

// MaxJSONBodySize bounds every JSON request body (64 KB).
const MaxJSONBodySize int64 = 64 << 10

// BindJSON decodes the JSON request body into dst.
// Unknown fields, trailing content and oversized bodies are rejected.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// TargetRequest is the body shared by the relationship endpoints.
type TargetRequest struct {
	ID string `json:"id"`
}

// BindTarget binds a TargetRequest and requires a non-empty id.
func BindTarget(w http.ResponseWriter, r *http.Request) (string, *errs.CustomError) {
	var body TargetRequest
	if customErr := BindJSON(w, r, &body); customErr != nil {
		return "", customErr
	}

	id := strings.TrimSpace(body.ID)
	if id == "" {
		return "", errs.NewError(errs.ErrInvalidParams)
	}
	return id, nil
}
