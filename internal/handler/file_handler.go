package handler

import (
	"net/http"
	"strings"

	"pingup/internal/app/chat"
	"pingup/internal/pkg/auth/jwt"
	"pingup/internal/pkg/errs"
	"pingup/internal/pkg/logx"
	"pingup/internal/pkg/randx"
	"pingup/internal/pkg/req"
	"pingup/internal/pkg/resp"
)

// HandlePresignUploadURL issues a time-limited upload URL under the caller's media prefix.
// The returned key is what the client later sends as media.key.
func HandlePresignUploadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrMediaUnavailable))
			return
		}

		var input chat.UploadRequest
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := input.Validate(); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey, err := randx.MediaKey(jwt.UserID(r), input.Ext())
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		url, err := deps.StorageService.PresignUpload(
			r.Context(),
			fileKey,
			strings.ToLower(input.MimeType),
			input.FileSize,
			chat.PresignedURLDuration,
		)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		logx.Debug("Presigned media upload", "key", fileKey, "size", input.FileSize)

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
		})
	}
}

// HandlePresignDownloadURL redirects to a time-limited download URL for a media key.
func HandlePresignDownloadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrMediaUnavailable))
			return
		}

		fileKey := r.URL.Query().Get("k")
		if !strings.HasPrefix(fileKey, randx.MediaKeyPrefix) || strings.Contains(fileKey, "..") {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		url, err := deps.StorageService.PresignDownload(r.Context(), fileKey, chat.PresignedURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}
