/*
Package storage hosts message media in an S3-compatible bucket. Clients upload through
presigned PUT URLs and the message dispatcher verifies the object before referencing it.
*/
package storage

import (
	"context"
	"strings"
	"time"

	"pingup/internal/app/chat"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// PublicBaseURL, when set, prefixes object keys in the URLs stored on messages.
	PublicBaseURL string
}

// objectURL returns the permanent URL of key.
func (c ServiceConfig) objectURL(key string) string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/") + "/" + key
	}
	return strings.TrimRight(c.S3Endpoint, "/") + "/" + c.S3BucketName + "/" + key
}

// StorageService defines the public interface for the media storage service.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading a file.
	PresignUpload(
		ctx context.Context,
		key string,
		mimeType string,
		fileSize int64,
		duration time.Duration,
	) (string, error)

	// PresignDownload generates a pre-signed URL for downloading a file.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Stat returns the object's type and size, or store.ErrNotFound.
	Stat(ctx context.Context, key string) (chat.ObjectInfo, error)

	// ObjectURL returns the URL recorded on messages for key.
	ObjectURL(key string) string
}

// NewStorageService is the factory function for StorageService.
// Only S3-compatible implementations are supported.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	return newS3Client(ctx, cfg)
}
