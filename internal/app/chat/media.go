package chat

import (
	"path/filepath"
	"strings"
	"time"

	"pingup/internal/pkg/errs"
)

const (
	// MaxMediaSizeMB is the maximum allowed media size in megabytes.
	MaxMediaSizeMB = 5

	// MaxMediaSize is the maximum allowed media size in bytes.
	MaxMediaSize = MaxMediaSizeMB * 1024 * 1024

	// PresignedURLDuration is how long presigned upload and download URLs stay valid.
	PresignedURLDuration = 5 * time.Minute

	// MaxTextBytes is the maximum size of a message's text.
	MaxTextBytes = 5000
)

// AllowedMIMETypes defines the set of permitted MIME types for media.
var AllowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// ExtToMIME maps file extensions to their corresponding MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// MediaInput references an object the sender already uploaded.
type MediaInput struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// UploadRequest describes a file the client wants to upload.
type UploadRequest struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// Validate checks the declared size and type of an upload.
func (u UploadRequest) Validate() *errs.CustomError {
	if err := ValidateFileSize(u.FileSize); err != nil {
		return err
	}
	return ValidateFileType(u.FileName, u.MimeType)
}

// Ext returns the lowercase extension of the file name.
func (u UploadRequest) Ext() string {
	return strings.ToLower(filepath.Ext(u.FileName))
}

// ValidateFileSize checks that fileSize is positive and within MaxMediaSize.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxMediaSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// ValidateFileType checks that the MIME type is allowed and matches the file extension.
func ValidateFileType(fileName string, mimeType string) *errs.CustomError {
	lowerMimeType := strings.ToLower(mimeType)

	if _, ok := AllowedMIMETypes[lowerMimeType]; !ok {
		return errs.NewError(errs.ErrMediaInvalid)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return errs.NewError(errs.ErrMediaInvalid)
	}

	if expectedMIME, ok := ExtToMIME[ext]; !ok || expectedMIME != lowerMimeType {
		return errs.NewError(errs.ErrMediaInvalid)
	}

	return nil
}
