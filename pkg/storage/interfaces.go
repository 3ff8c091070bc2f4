package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Object describes a stored file
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"mimetype"`
	Size        int64  `json:"size"`
}

// Uploader stores user supplied files (task attachments, avatars)
type Uploader interface {
	// Upload stores body under key. Failures are returned as
	// apierr.KindUploadFailed.
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (*Object, error)

	// Delete removes the object stored under key. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, key string) error

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error
}

// ObjectKey builds a collision free key under prefix that keeps the
// original file extension
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 16 {
		ext = ""
	}
	return path.Join(prefix, uuid.New().String()+ext)
}
